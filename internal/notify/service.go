package notify

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"bandbot/internal/channel"
	"bandbot/internal/eventbus"
	logx "bandbot/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notify queue full")
	ErrStopped   = errors.New("notify service stopped")
	ErrNoChannel = errors.New("unknown notification channel")
)

// Alert is one outbound notification, addressed to a named channel.
// Key, when set, enables dedup suppression within the configured window.
type Alert struct {
	Channel string
	Text    string
	Opts    map[string]any
	Key     string
}

type Config struct {
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	DedupWindow   time.Duration
}

// AlertEvent is published on the bus for alert.queued/sent/failed/dropped/
// deduped events.
type AlertEvent struct {
	Channel string
	Key     string
	At      time.Time
	Error   string
}

type HistoryItem struct {
	At   time.Time
	Text string
}

// Service is an async notification pipeline: queue + worker pool + rate
// limit + retry + dedup. The band notifier's decision is already committed
// before an alert reaches this service; a failed delivery is logged and
// dropped, never re-evaluated.
//
// Safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	reg *channel.Registry
	bus eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan Alert
	workerWG sync.WaitGroup

	runCtx    context.Context
	runCancel context.CancelFunc

	// In-memory dedup cache: key -> suppress until.
	dmu   sync.Mutex
	dedup map[string]time.Time

	// In-memory history for /status.
	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, reg *channel.Registry, log logx.Logger, bus eventbus.Bus) *Service {
	s := &Service{
		log:   log,
		reg:   reg,
		bus:   bus,
		dedup: map[string]time.Time{},
	}
	s.apply(cfg)
	return s
}

func (s *Service) apply(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan Alert, s.cfg.QueueSize)
	s.accepting = true
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	workers := s.cfg.Workers
	queue := s.queue
	runCtx := s.runCtx
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		s.workerWG.Add(1)
		go func() {
			defer s.workerWG.Done()
			for a := range queue {
				select {
				case <-runCtx.Done():
					return
				default:
				}
				s.sendWithRetry(runCtx, a)
			}
		}()
	}
}

// Stop stops intake and drains the queue best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q := s.queue
	cancel := s.runCancel
	if q == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.mu.Unlock()

	// Wait for in-flight enqueues, then close the queue so workers drain.
	enqDone := make(chan struct{})
	go func() {
		s.sendWG.Wait()
		close(enqDone)
	}()
	select {
	case <-ctx.Done():
		cancel()
		return
	case <-enqDone:
	}
	close(q)

	drained := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(drained)
	}()
	select {
	case <-ctx.Done():
	case <-drained:
	}
	cancel()

	s.mu.Lock()
	s.queue = nil
	s.runCtx = nil
	s.runCancel = nil
	s.mu.Unlock()
}

// Enqueue queues one alert for delivery. It never blocks: a full queue
// drops the alert with ErrQueueFull.
func (s *Service) Enqueue(a Alert) error {
	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	window := s.cfg.DedupWindow
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	if window > 0 && a.Key != "" && !s.dedupAllow(a.Key, window) {
		s.publish("alert.deduped", a, nil)
		return nil
	}

	select {
	case q <- a:
		s.publish("alert.queued", a, nil)
		return nil
	default:
		s.publish("alert.dropped", a, ErrQueueFull)
		return ErrQueueFull
	}
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) sendWithRetry(ctx context.Context, a Alert) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	ch, ok := s.reg.Get(a.Channel)
	if !ok {
		s.log.Warn("alert for unknown channel", logx.String("channel", a.Channel))
		s.publish("alert.failed", a, ErrNoChannel)
		return
	}

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return
			}
		}

		// Bound each delivery so a hung transport can't wedge a worker.
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := ch.SendNotification(callCtx, a.Text, a.Opts)
		cancel()
		if err == nil {
			s.appendHistory(a.Text)
			s.publish("alert.sent", a, nil)
			return
		}
		lastErr = err
		s.log.Debug("alert send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay(cfg, attempt)):
		}
	}

	s.log.Warn("alert delivery gave up", logx.String("channel", a.Channel), logx.Err(lastErr))
	s.publish("alert.failed", a, lastErr)
}

func (s *Service) publish(typ string, a Alert, err error) {
	if s.bus == nil {
		return
	}
	ev := AlertEvent{Channel: a.Channel, Key: a.Key, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

func (s *Service) appendHistory(text string) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Text: text})
	if len(s.history) > 300 {
		s.history = s.history[len(s.history)-300:]
	}
	s.hmu.Unlock()
}

func (s *Service) dedupAllow(key string, window time.Duration) bool {
	now := time.Now()
	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)
	// Prune expired entries opportunistically.
	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	return true
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// Exponential backoff: base * 2^(attempt-1), capped, with jitter.
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	// Jitter 0.7..1.3.
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	if d < 0 {
		return 0
	}
	return d
}
