package digest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bandbot/internal/history"
	logx "bandbot/pkg/logx"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	s, err := history.Open(history.Config{Path: filepath.Join(t.TempDir(), "alerts.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRenderEmpty(t *testing.T) {
	t.Parallel()
	s := New(Config{}, openStore(t), nil, logx.Nop())
	got, err := s.Render(context.Background())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "no alerts in the last 24h" {
		t.Fatalf("unexpected render: %q", got)
	}
}

func TestRenderGroupsBySymbol(t *testing.T) {
	t.Parallel()
	hist := openStore(t)
	ctx := context.Background()
	now := time.Now()

	entries := []history.Entry{
		{At: now.Add(-3 * time.Hour), Symbol: "BTCUSDT", BandIndex: 0, Score: 0.5, Price: "64000", Message: "a"},
		{At: now.Add(-1 * time.Hour), Symbol: "BTCUSDT", BandIndex: 2, Score: 2.5, Price: "66000", Message: "b"},
		{At: now.Add(-2 * time.Hour), Symbol: "ETHUSDT", BandIndex: 1, Score: 1.5, Price: "3200", Message: "c"},
	}
	for _, e := range entries {
		if err := hist.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	s := New(Config{}, hist, nil, logx.Nop())
	got, err := s.Render(ctx)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if !strings.Contains(got, "3 alerts") {
		t.Fatalf("missing total: %q", got)
	}
	if !strings.Contains(got, "BTCUSDT: 2 alerts, last band 2") {
		t.Fatalf("missing BTC line: %q", got)
	}
	if !strings.Contains(got, "ETHUSDT: 1 alerts, last band 1") {
		t.Fatalf("missing ETH line: %q", got)
	}
	// Symbols come out sorted.
	if strings.Index(got, "BTCUSDT") > strings.Index(got, "ETHUSDT") {
		t.Fatalf("symbols not sorted: %q", got)
	}
}

func TestRenderExcludesOutsideWindow(t *testing.T) {
	t.Parallel()
	hist := openStore(t)
	ctx := context.Background()

	old := history.Entry{At: time.Now().Add(-48 * time.Hour), Symbol: "BTCUSDT", Price: "1", Message: "old"}
	if err := hist.Append(ctx, old); err != nil {
		t.Fatalf("Append: %v", err)
	}

	s := New(Config{Window: 24 * time.Hour}, hist, nil, logx.Nop())
	got, err := s.Render(ctx)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "no alerts in the last 24h" {
		t.Fatalf("expected old entry excluded: %q", got)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Schedule: "not a cron spec"}, openStore(t), nil, logx.Nop())
	if err := s.Start(); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}
