package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	telegramAPI     = "https://api.telegram.org"
	telegramTimeout = 8 * time.Second
)

// TelegramSender delivers notifications to one or more chats via the
// Telegram Bot API. Each chat receives at most one message per minInterval;
// a message that arrives sooner is skipped for that chat.
type TelegramSender struct {
	token       string
	chatIDs     []string
	minInterval time.Duration
	client      *http.Client
	apiBase     string
	now         func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// IDs.
func NewTelegramSender(token string, chatIDs []string, minInterval time.Duration) *TelegramSender {
	return &TelegramSender{
		token:       token,
		chatIDs:     append([]string(nil), chatIDs...),
		minInterval: minInterval,
		client:      &http.Client{Timeout: telegramTimeout},
		apiBase:     telegramAPI,
		now:         time.Now,
		lastSent:    make(map[string]time.Time),
	}
}

// Send posts the message to every chat that is outside its minimum interval.
// The title is rendered in bold with HTML parse mode.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	text := fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(title), message)

	var errs []error
	for _, chatID := range t.chatIDs {
		if !t.reserve(chatID) {
			continue
		}
		if err := t.sendMessage(ctx, chatID, text); err != nil {
			errs = append(errs, fmt.Errorf("chat %s: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// reserve records a send for chatID and reports whether it is allowed.
func (t *TelegramSender) reserve(chatID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if last, ok := t.lastSent[chatID]; ok && now.Sub(last) < t.minInterval {
		return false
	}
	t.lastSent[chatID] = now
	return true
}

func (t *TelegramSender) sendMessage(ctx context.Context, chatID, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)

	payload := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
