package config

import (
	"fmt"
	"strings"

	"bandbot/internal/band"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Bands holds the ascending positive and negative edge lists the
	// notifier classifies scores against.
	Bands band.Set `json:"bands"`

	Source  SourceConfig   `json:"source"`
	Notify  *NotifyConfig  `json:"notify,omitempty"`
	History *HistoryConfig `json:"history,omitempty"`
	Digest  *DigestConfig  `json:"digest,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
	// MessagePrefix is prepended to every outbound notification.
	MessagePrefix string `json:"message_prefix,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SourceConfig controls the score feed.
type SourceConfig struct {
	// Provider selects the feed implementation. Only "binance" is supported.
	Provider string   `json:"provider"`
	Symbols  []string `json:"symbols"`
	// Interval is the kline interval (e.g. "1m", "5m").
	Interval string `json:"interval,omitempty"`
	// Poll is a Go duration string between fetches.
	Poll     string `json:"poll,omitempty"`
	Lookback int    `json:"lookback,omitempty"`
}

// NotifyConfig controls the async notification pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// If the whole section is omitted, runtime defaults apply.
type NotifyConfig struct {
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
	DedupWindow   string `json:"dedup_window"`
}

// HistoryConfig controls the SQLite alert history. Nil or disabled means
// alerts are not persisted.
type HistoryConfig struct {
	Enabled     bool   `json:"enabled"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
	// Retention prunes alerts older than this on startup. "0s" keeps all.
	Retention string `json:"retention,omitempty"`
}

// DigestConfig controls the scheduled alert digest.
type DigestConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // cron spec
	Window   string `json:"window,omitempty"`   // Go duration string
}

// Validate checks the config for structural problems: missing credentials,
// unparsable durations, band edge lists out of order. Called on initial load
// and again before every hot-reload commit.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram.chat_id is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}

	if err := c.Bands.Validate(); err != nil {
		return fmt.Errorf("bands: %w", err)
	}

	if p := strings.TrimSpace(c.Source.Provider); p != "" && p != "binance" {
		return fmt.Errorf("source.provider: unsupported %q", p)
	}
	if len(c.Source.Symbols) == 0 {
		return fmt.Errorf("source.symbols: at least one symbol is required")
	}
	if _, err := ParseDurationField("source.poll", c.Source.Poll); err != nil {
		return err
	}

	if n := c.Notify; n != nil {
		for _, f := range []struct{ path, raw string }{
			{"notify.retry_base", n.RetryBase},
			{"notify.retry_max_delay", n.RetryMaxDelay},
			{"notify.dedup_window", n.DedupWindow},
		} {
			if _, err := ParseDurationField(f.path, f.raw); err != nil {
				return err
			}
		}
	}

	if h := c.History; h != nil && h.Enabled {
		if strings.TrimSpace(h.Path) == "" {
			return fmt.Errorf("history.path is required when history is enabled")
		}
		if _, err := ParseDurationField("history.busy_timeout", h.BusyTimeout); err != nil {
			return err
		}
		if _, err := ParseDurationField("history.retention", h.Retention); err != nil {
			return err
		}
	}

	if d := c.Digest; d != nil {
		if _, err := ParseDurationField("digest.window", d.Window); err != nil {
			return err
		}
	}
	return nil
}
