package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleYAML = `
telegram:
  token: "123:abc"
  chat_id: 42
  message_prefix: "[bot] "
  poll_timeout: "10s"
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
bands:
  positive_bands:
    - { edge: 1, sign: "↑", text: "warming", bold: false }
    - { edge: 2, sign: "↑", text: "breakout", bold: true }
  negative_bands:
    - { edge: -1, sign: "↓", text: "cooling", bold: false }
source:
  provider: binance
  symbols: [BTCUSDT, ETHUSDT]
  interval: "1m"
  poll: "30s"
  lookback: 30
notify:
  workers: 2
  rate_per_sec: 3
  retry_max: 3
  retry_base: "500ms"
  retry_max_delay: "10s"
  dedup_window: "1m"
history:
  enabled: true
  path: "./alerts.db"
  retention: "168h"
digest:
  enabled: true
  schedule: "0 9 * * *"
  window: "24h"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Telegram.Token != "123:abc" || cfg.Telegram.ChatID != 42 {
		t.Fatalf("telegram section: %+v", cfg.Telegram)
	}
	if len(cfg.Bands.Positive) != 2 || cfg.Bands.Positive[1].Text != "breakout" {
		t.Fatalf("bands section: %+v", cfg.Bands)
	}
	if len(cfg.Source.Symbols) != 2 || cfg.Source.Symbols[0] != "BTCUSDT" {
		t.Fatalf("source section: %+v", cfg.Source)
	}
	if cfg.Notify == nil || cfg.Notify.RetryBase != "500ms" {
		t.Fatalf("notify section: %+v", cfg.Notify)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed snapshot")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	js := `{
		"telegram": {"token": "123:abc", "chat_id": 42},
		"logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}},
		"bands": {"positive_bands": [{"edge": 1, "sign": "", "text": "", "bold": false}], "negative_bands": []},
		"source": {"provider": "binance", "symbols": ["BTCUSDT"]}
	}`
	m := NewManager(writeConfig(t, "config.json", js))
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	bad := sampleYAML + "\nnot_a_section:\n  x: 1\n"
	m := NewManager(writeConfig(t, "config.yaml", bad))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		m := NewManager(writeConfig(t, "config.yaml", sampleYAML))
		cfg, err := m.Parse()
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing token", func(c *Config) { c.Telegram.Token = " " }, "telegram.token"},
		{"missing chat", func(c *Config) { c.Telegram.ChatID = 0 }, "telegram.chat_id"},
		{"bad duration", func(c *Config) { c.Source.Poll = "soon" }, "source.poll"},
		{"unsorted bands", func(c *Config) {
			c.Bands.Positive[0].Edge = 5
		}, "bands"},
		{"no symbols", func(c *Config) { c.Source.Symbols = nil }, "source.symbols"},
		{"bad provider", func(c *Config) { c.Source.Provider = "kraken" }, "source.provider"},
		{"history without path", func(c *Config) { c.History.Path = "" }, "history.path"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", sampleYAML))
	oldCfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	newCfg, _ := m.Parse()
	newCfg.Bands.Positive[0].Edge = 1.5
	newCfg.Logging.Level = "warn"

	changed, _ := SummarizeConfigChange(oldCfg, newCfg)
	if len(changed) != 2 || changed[0] != "bands" || changed[1] != "logging" {
		t.Fatalf("changed = %v", changed)
	}

	if changed, _ := SummarizeConfigChange(oldCfg, oldCfg); len(changed) != 0 {
		t.Fatalf("expected no changes, got %v", changed)
	}
}

func TestSubscribePublish(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ch := m.Subscribe(1)
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("unexpected config instance")
		}
	default:
		t.Fatal("expected a published config")
	}

	// A full buffer gets the stale snapshot replaced, not blocked.
	m.publish(cfg)
	m.publish(cfg)
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		// One buffered snapshot may remain; the channel must be closed after.
		if _, ok := <-ch; ok {
			t.Fatal("expected channel closed after Unsubscribe")
		}
	}
}
