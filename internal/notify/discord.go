package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"
)

// discordContentLimit is the webhook content limit in characters.
const discordContentLimit = 2000

// discordMarkup turns the <b> emphasis of digest bodies into markdown.
var discordMarkup = strings.NewReplacer("<b>", "**", "</b>", "**")

// discordWebhook is the subset of the webhook execute payload we send.
type discordWebhook struct {
	Username        string                 `json:"username,omitempty"`
	Content         string                 `json:"content"`
	AllowedMentions discordAllowedMentions `json:"allowed_mentions"`
}

type discordAllowedMentions struct {
	Parse []string `json:"parse"`
}

// DiscordSender posts digests to a Discord webhook.
type DiscordSender struct {
	webhookURL string
	username   string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for webhookURL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		username:   "arbscanner",
		client:     &http.Client{Timeout: 8 * time.Second},
	}
}

// Send posts title in bold followed by message. Mentions are suppressed and
// content beyond the webhook limit is cut.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	content := "**" + title + "**\n" + html.UnescapeString(discordMarkup.Replace(message))
	if r := []rune(content); len(r) > discordContentLimit {
		content = string(r[:discordContentLimit-1]) + "…"
	}

	body, err := json.Marshal(discordWebhook{
		Username:        d.username,
		Content:         content,
		AllowedMentions: discordAllowedMentions{Parse: []string{}},
	})
	if err != nil {
		return fmt.Errorf("discord: encode webhook: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord: webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// Name implements Sender.
func (d *DiscordSender) Name() string { return "discord" }
