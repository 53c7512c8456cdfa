package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bandbot/internal/band"
	"bandbot/internal/channel"
	"bandbot/internal/config"
	"bandbot/internal/digest"
	"bandbot/internal/eventbus"
	"bandbot/internal/history"
	"bandbot/internal/notify"
	"bandbot/internal/pipeline"
	rtsup "bandbot/internal/runtime/supervisor"
	"bandbot/internal/score"
	tgtransport "bandbot/internal/transport/telegram"
	logx "bandbot/pkg/logx"
)

// App owns the full component graph: config manager, logging, transport,
// channels, the notify pipeline, score sources, history and the digest
// scheduler. Construction wires; Start runs; Stop unwinds in reverse.
type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger
	bus    eventbus.Bus

	mu      sync.Mutex
	started bool

	sup      *rtsup.Supervisor
	registry *channel.Registry
	telegram *channel.Telegram
	notify   *notify.Service
	hist     *history.Store
	pipe     *pipeline.Pipeline
	digest   *digest.Service
	sources  []score.Source
	cfgSub   chan *config.Config
}

// New loads and validates the config file and builds the logging service.
// Everything else is wired in Start so a failed start leaves nothing
// half-running.
func New(configPath string) (*App, error) {
	cfgMgr := config.NewManager(configPath)
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logConfig(cfg.Logging))
	cfgMgr.SetLogger(log.With(logx.String("comp", "config")))

	return &App{
		cfgMgr: cfgMgr,
		logSvc: logSvc,
		log:    log,
		bus:    eventbus.New(),
	}, nil
}

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}
	cfg := a.cfgMgr.Get()
	if cfg == nil {
		return fmt.Errorf("no config loaded")
	}

	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "app"))))
	runCtx := a.sup.Context()

	pollTimeout, _ := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	adapter, err := tgtransport.New(tgtransport.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, a.log.With(logx.String("comp", "telegram")))
	if err != nil {
		return fmt.Errorf("build telegram adapter: %w", err)
	}

	a.telegram = channel.NewTelegram(channel.TelegramConfig{
		ChatID:        cfg.Telegram.ChatID,
		MessagePrefix: cfg.Telegram.MessagePrefix,
	}, adapter, a.log)

	a.registry = channel.NewRegistry(a.log.With(logx.String("comp", "channels")))
	a.registry.Register(a.telegram, channel.NewLog("", a.log))

	a.notify = notify.New(notifyConfig(cfg.Notify), a.registry, a.log.With(logx.String("comp", "notify")), a.bus)

	if h := cfg.History; h != nil && h.Enabled {
		busy, _ := config.ParseDurationField("history.busy_timeout", h.BusyTimeout)
		store, err := history.Open(history.Config{Path: h.Path, BusyTimeout: busy}, a.log.With(logx.String("comp", "history")))
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		a.hist = store
		if retention, _ := config.ParseDurationField("history.retention", h.Retention); retention > 0 {
			if n, err := store.Prune(runCtx, retention); err == nil && n > 0 {
				a.log.Info("history pruned", logx.Int64("removed", n))
			}
		}
	}

	pipe, err := pipeline.New(pipeline.Config{Channel: a.telegram.Name()}, cfg.Bands, a.notify, a.hist, a.bus, a.log.With(logx.String("comp", "pipeline")))
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	a.pipe = pipe

	a.digest = digest.New(digestConfig(cfg.Digest, a.telegram.Name()), a.hist, a.notify, a.log.With(logx.String("comp", "digest")))
	a.telegram.SetStatusProvider(a.statusText)
	a.telegram.SetDigestProvider(a.digest.Render)

	// Bring components up: notify first so channels can deliver, then
	// channels, then the feeds that produce work.
	a.notify.Start(runCtx)
	if err := a.registry.StartAll(runCtx); err != nil {
		a.unwind(context.Background())
		return err
	}
	if err := a.digest.Start(); err != nil {
		a.unwind(context.Background())
		return err
	}
	if err := a.startSources(runCtx, cfg.Source); err != nil {
		a.unwind(context.Background())
		return err
	}

	a.cfgSub = a.cfgMgr.Subscribe(1)
	a.sup.Go("config.watch", a.cfgMgr.Watch)
	a.sup.Go0("config.apply", func(c context.Context) {
		a.applyLoop(c, cfg)
	})

	a.started = true
	a.log.Info("bandbot started",
		logx.Int("symbols", len(cfg.Source.Symbols)),
		logx.Bool("history", a.hist != nil))
	return nil
}

func (a *App) startSources(ctx context.Context, src config.SourceConfig) error {
	poll, _ := config.ParseDurationField("source.poll", src.Poll)
	updates := make(chan score.Update, 64)

	for _, symbol := range src.Symbols {
		s, err := score.NewBinanceSource(score.BinanceConfig{
			Symbol:   symbol,
			Interval: src.Interval,
			Poll:     poll,
			Lookback: src.Lookback,
		}, a.log)
		if err != nil {
			return fmt.Errorf("build source %s: %w", symbol, err)
		}
		if err := s.Start(ctx, updates); err != nil {
			return fmt.Errorf("start source %s: %w", symbol, err)
		}
		a.sources = append(a.sources, s)
	}

	a.sup.Go0("pipeline.run", func(c context.Context) {
		a.pipe.Run(c, updates)
	})
	return nil
}

// applyLoop consumes hot-reloaded configs. Only live-tunable sections are
// applied: logging sinks and band edges. Transport, source and history
// changes need a restart and are logged as such.
func (a *App) applyLoop(ctx context.Context, prev *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.cfgSub:
			if !ok {
				return
			}
			changed, attrs := config.SummarizeConfigChange(prev, cfg)
			if len(changed) == 0 {
				continue
			}
			a.log.Info("config changed", append(attrs, logx.String("sections", strings.Join(changed, ",")))...)

			for _, section := range changed {
				switch section {
				case "logging":
					a.logSvc.Apply(logConfig(cfg.Logging))
				case "bands":
					if err := a.pipe.SetBands(cfg.Bands); err != nil {
						a.log.Warn("band swap rejected", logx.Err(err))
					}
				default:
					a.log.Warn("config section needs restart to apply", logx.String("section", section))
				}
			}
			prev = cfg
		}
	}
}

// NotifyTransaction dispatches a trade transaction alert through the same
// pipeline band alerts use.
func (a *App) NotifyTransaction(status string, profit, profitPercent decimal.Decimal) error {
	a.mu.Lock()
	pipe := a.pipe
	a.mu.Unlock()
	if pipe == nil {
		return fmt.Errorf("app not started")
	}
	return pipe.OnTransaction(status, profit, profitPercent)
}

func (a *App) statusText() string {
	var b strings.Builder
	b.WriteString(a.pipe.Status())
	if a.telegram.Muted() {
		b.WriteString("\nalerts muted")
	}
	if n := len(a.notify.Snapshot()); n > 0 {
		fmt.Fprintf(&b, "\nrecent deliveries: %d", n)
	}
	return b.String()
}

func (a *App) Stop(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return
	}
	a.started = false
	a.unwind(ctx)
	a.log.Info("bandbot stopped")
	_ = a.logSvc.Close()
}

// unwind tears components down in reverse start order. Safe to call with a
// partially built graph.
func (a *App) unwind(ctx context.Context) {
	for _, s := range a.sources {
		_ = s.Stop(ctx)
	}
	a.sources = nil

	if a.digest != nil {
		a.digest.Stop(ctx)
	}
	if a.notify != nil {
		a.notify.Stop(ctx)
	}
	if a.registry != nil {
		a.registry.StopAll(ctx)
	}
	if a.hist != nil {
		_ = a.hist.Close()
		a.hist = nil
	}
	if a.cfgSub != nil {
		a.cfgMgr.Unsubscribe(a.cfgSub)
		a.cfgSub = nil
	}
	if a.sup != nil {
		a.sup.Cancel()
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_ = a.sup.Wait(wctx)
		cancel()
		a.sup = nil
	}
}

func logConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}

func notifyConfig(c *config.NotifyConfig) notify.Config {
	if c == nil {
		return notify.Config{}
	}
	base, _ := config.ParseDurationField("notify.retry_base", c.RetryBase)
	maxDelay, _ := config.ParseDurationField("notify.retry_max_delay", c.RetryMaxDelay)
	window, _ := config.ParseDurationField("notify.dedup_window", c.DedupWindow)
	return notify.Config{
		Workers:       c.Workers,
		QueueSize:     c.QueueSize,
		RatePerSec:    c.RatePerSec,
		RetryMax:      c.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		DedupWindow:   window,
	}
}

func digestConfig(c *config.DigestConfig, channelName string) digest.Config {
	out := digest.Config{Channel: channelName}
	if c == nil {
		return out
	}
	out.Enabled = c.Enabled
	out.Schedule = c.Schedule
	window, _ := config.ParseDurationField("digest.window", c.Window)
	out.Window = window
	return out
}

// Bands returns the currently committed band set. Exposed for diagnostics.
func (a *App) Bands() band.Set {
	cfg := a.cfgMgr.Get()
	if cfg == nil {
		return band.Set{}
	}
	return cfg.Bands
}
