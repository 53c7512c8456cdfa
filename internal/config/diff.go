package config

import (
	"reflect"
	"sort"
	"strings"

	logx "bandbot/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus safe
// structured attrs for logging. Secrets (the bot token) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	// Telegram (never log token)
	if oldCfg.Telegram.ChatID != newCfg.Telegram.ChatID ||
		strings.TrimSpace(oldCfg.Telegram.MessagePrefix) != strings.TrimSpace(newCfg.Telegram.MessagePrefix) ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int64("telegram.chat_id", newCfg.Telegram.ChatID),
			logx.Bool("telegram.prefix_set", strings.TrimSpace(newCfg.Telegram.MessagePrefix) != ""),
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Bands, newCfg.Bands) {
		changed = append(changed, "bands")
		attrs = append(attrs,
			logx.Int("bands.positive", len(newCfg.Bands.Positive)),
			logx.Int("bands.negative", len(newCfg.Bands.Negative)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Source, newCfg.Source) {
		changed = append(changed, "source")
		attrs = append(attrs,
			logx.String("source.provider", newCfg.Source.Provider),
			logx.Int("source.symbol_count", len(newCfg.Source.Symbols)),
			logx.String("source.interval", newCfg.Source.Interval),
		)
	}

	// Omitted sections mean runtime defaults; compare dereferenced values so
	// nil vs explicit-defaults reads as unchanged only when truly equal.
	if derefNotify(oldCfg.Notify) != derefNotify(newCfg.Notify) {
		changed = append(changed, "notify")
		n := derefNotify(newCfg.Notify)
		attrs = append(attrs,
			logx.Int("notify.workers", n.Workers),
			logx.Int("notify.rate_per_sec", n.RatePerSec),
			logx.Int("notify.retry_max", n.RetryMax),
		)
	}

	if derefHistory(oldCfg.History) != derefHistory(newCfg.History) {
		changed = append(changed, "history")
		h := derefHistory(newCfg.History)
		attrs = append(attrs,
			logx.Bool("history.enabled", h.Enabled),
			logx.Bool("history.path_set", strings.TrimSpace(h.Path) != ""),
		)
	}

	if derefDigest(oldCfg.Digest) != derefDigest(newCfg.Digest) {
		changed = append(changed, "digest")
		d := derefDigest(newCfg.Digest)
		attrs = append(attrs,
			logx.Bool("digest.enabled", d.Enabled),
			logx.String("digest.schedule", d.Schedule),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefNotify(n *NotifyConfig) NotifyConfig {
	if n == nil {
		return NotifyConfig{}
	}
	return *n
}

func derefHistory(h *HistoryConfig) HistoryConfig {
	if h == nil {
		return HistoryConfig{}
	}
	return *h
}

func derefDigest(d *DigestConfig) DigestConfig {
	if d == nil {
		return DigestConfig{}
	}
	return *d
}
