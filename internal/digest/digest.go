package digest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"

	"bandbot/internal/history"
	"bandbot/internal/notify"
	logx "bandbot/pkg/logx"
)

type Config struct {
	Enabled  bool
	Schedule string        // cron spec; default "0 9 * * *"
	Window   time.Duration // default 24h
	Channel  string        // destination channel name
}

// Service sends a periodic summary of fired alerts and renders the same
// summary on demand for the /digest command.
type Service struct {
	cfg    Config
	log    logx.Logger
	hist   *history.Store
	notify *notify.Service
	cron   *cron.Cron
}

func New(cfg Config, hist *history.Store, n *notify.Service, log logx.Logger) *Service {
	if cfg.Schedule == "" {
		cfg.Schedule = "0 9 * * *"
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.Channel == "" {
		cfg.Channel = "telegram"
	}
	return &Service{cfg: cfg, log: log, hist: hist, notify: n}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.cfg.Schedule, s.fire); err != nil {
		return fmt.Errorf("digest schedule %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.cron = c
	s.log.Info("digest scheduled", logx.String("schedule", s.cfg.Schedule))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.cron = nil
}

func (s *Service) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	text, err := s.Render(ctx)
	if err != nil {
		s.log.Warn("digest render failed", logx.Err(err))
		return
	}
	if err := s.notify.Enqueue(notify.Alert{Channel: s.cfg.Channel, Text: text}); err != nil {
		s.log.Warn("digest enqueue failed", logx.Err(err))
	}
}

// Render summarizes the alerts fired within the configured window, grouped
// by symbol.
func (s *Service) Render(ctx context.Context) (string, error) {
	since := time.Now().Add(-s.cfg.Window)
	entries, err := s.hist.Recent(ctx, since, 1000)
	if err == history.ErrDisabled {
		return "alert history is disabled", nil
	}
	if err != nil {
		return "", err
	}

	hours := int(s.cfg.Window / time.Hour)
	if len(entries) == 0 {
		return fmt.Sprintf("no alerts in the last %dh", hours), nil
	}

	bySymbol := lo.GroupBy(entries, func(e history.Entry) string { return e.Symbol })
	symbols := lo.Keys(bySymbol)
	sort.Strings(symbols)

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Alert digest (last %dh): %d alerts\n", hours, len(entries))
	for _, sym := range symbols {
		es := bySymbol[sym]
		// Entries are newest first; es[0] is the latest for the symbol.
		latest := es[0]
		fmt.Fprintf(&b, "- %s: %d alerts, last band %d (score %+.2f) at %s\n",
			sym, len(es), latest.BandIndex, latest.Score, latest.At.Format("15:04"))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
