package config

import (
	"net/url"
	"slices"
)

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging the active
// configuration.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redactURL(&out.Redis.URL)
	redact(&out.Redis.Password)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.Server.APIKey)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Scanner.Exchanges = slices.Clone(cfg.Scanner.Exchanges)
	out.Scanner.Symbols = slices.Clone(cfg.Scanner.Symbols)
	out.Scanner.SymbolUniverse = slices.Clone(cfg.Scanner.SymbolUniverse)
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	out.Notify.TelegramChatIDs = slices.Clone(cfg.Notify.TelegramChatIDs)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

// redactURL keeps scheme and host but masks credentials.
func redactURL(s *string) {
	if *s == "" {
		return
	}
	u, err := url.Parse(*s)
	if err != nil || u.Host == "" {
		*s = redacted
		return
	}
	if u.User != nil {
		u.User = url.User(redacted)
	}
	*s = u.String()
}
