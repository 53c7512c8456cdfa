package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bandbot/internal/band"
	"bandbot/internal/eventbus"
	"bandbot/internal/history"
	"bandbot/internal/notify"
	"bandbot/internal/score"
	logx "bandbot/pkg/logx"
)

type Config struct {
	Channel string // destination channel name; default "telegram"
}

// BandEvent is published on the bus when an instrument crosses into a new
// band.
type BandEvent struct {
	Symbol string
	Index  int
	Score  float64
	Price  string
	At     time.Time
}

type symbolState struct {
	Score float64
	Index int
	At    time.Time
}

// Pipeline consumes score updates, runs them through per-symbol band
// notifiers and dispatches alerts for band crossings. The crossing decision
// is committed before any delivery is attempted; a failed send is the notify
// service's problem and never re-opens the decision.
type Pipeline struct {
	cfg    Config
	log    logx.Logger
	notify *notify.Service
	hist   *history.Store
	bus    eventbus.Bus

	mu        sync.Mutex
	bands     band.Set
	notifiers map[string]*band.Notifier
	states    map[string]symbolState
	evals     uint64
	fired     uint64
}

func New(cfg Config, set band.Set, n *notify.Service, hist *history.Store, bus eventbus.Bus, log logx.Logger) (*Pipeline, error) {
	if cfg.Channel == "" {
		cfg.Channel = "telegram"
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:       cfg,
		log:       log,
		notify:    n,
		hist:      hist,
		bus:       bus,
		bands:     set,
		notifiers: map[string]*band.Notifier{},
		states:    map[string]symbolState{},
	}, nil
}

// Run consumes updates until the channel closes or ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, updates <-chan score.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := p.Handle(ctx, u); err != nil {
				p.log.Warn("score update rejected", logx.String("symbol", u.Symbol), logx.Err(err))
			}
		}
	}
}

// Handle evaluates one score update. The compare-update-decide step happens
// inside the notifier; everything after (formatting, enqueue, persistence)
// runs without holding band state.
func (p *Pipeline) Handle(ctx context.Context, u score.Update) error {
	if u.At.IsZero() {
		u.At = time.Now()
	}

	p.mu.Lock()
	set := p.bands
	n, ok := p.notifiers[u.Symbol]
	if !ok {
		n = band.NewNotifier()
		p.notifiers[u.Symbol] = n
	}
	p.mu.Unlock()

	res, err := n.Evaluate(u.Score, set)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.evals++
	p.states[u.Symbol] = symbolState{Score: u.Score, Index: res.Index, At: u.At}
	if res.Notify {
		p.fired++
	}
	p.mu.Unlock()

	if !res.Notify {
		return nil
	}

	msg := band.FormatScoreMessage(u.ClosePrice, u.Score, res.Band, u.Symbol)
	alert := notify.Alert{
		Channel: p.cfg.Channel,
		Text:    msg,
		Key:     fmt.Sprintf("%s:%d", u.Symbol, res.Index),
	}
	if err := p.notify.Enqueue(alert); err != nil {
		p.log.Warn("alert enqueue failed", logx.String("symbol", u.Symbol), logx.Err(err))
	}

	if err := p.hist.Append(ctx, history.Entry{
		At:        u.At,
		Symbol:    u.Symbol,
		BandIndex: res.Index,
		Score:     u.Score,
		Price:     u.ClosePrice.String(),
		Message:   msg,
	}); err != nil && err != history.ErrDisabled {
		p.log.Warn("history append failed", logx.Err(err))
	}

	if p.bus != nil {
		p.bus.Publish(eventbus.Event{Type: "band.crossed", Time: u.At, Data: BandEvent{
			Symbol: u.Symbol,
			Index:  res.Index,
			Score:  u.Score,
			Price:  u.ClosePrice.String(),
			At:     u.At,
		}})
	}

	p.log.Info("band crossed",
		logx.String("symbol", u.Symbol),
		logx.Int("band", res.Index),
		logx.Float64("score", u.Score))
	return nil
}

// OnTransaction dispatches a trade transaction notification. Transactions
// bypass band state entirely.
func (p *Pipeline) OnTransaction(status string, profit, profitPercent decimal.Decimal) error {
	msg := band.FormatTransactionMessage(status, profit, profitPercent)
	err := p.notify.Enqueue(notify.Alert{Channel: p.cfg.Channel, Text: msg})
	if err != nil {
		return err
	}
	if p.bus != nil {
		p.bus.Publish(eventbus.Event{Type: "transaction", Data: msg})
	}
	return nil
}

// SetBands swaps the band configuration at runtime. Every per-symbol
// notifier is reset, so the next update for each symbol notifies
// unconditionally against the new edges.
func (p *Pipeline) SetBands(set band.Set) error {
	if err := set.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.bands = set
	for _, n := range p.notifiers {
		n.Reset()
	}
	p.mu.Unlock()
	p.log.Info("band configuration swapped",
		logx.Int("positive", len(set.Positive)),
		logx.Int("negative", len(set.Negative)))
	return nil
}

// Status renders an operational snapshot for the /status command.
func (p *Pipeline) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "evaluations: %d, alerts fired: %d\n", p.evals, p.fired)
	if len(p.states) == 0 {
		b.WriteString("no score updates yet")
		return b.String()
	}

	symbols := make([]string, 0, len(p.states))
	for s := range p.states {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		st := p.states[sym]
		fmt.Fprintf(&b, "%s: band %d, score %+.2f at %s\n", sym, st.Index, st.Score, st.At.Format("15:04:05"))
	}
	return strings.TrimRight(b.String(), "\n")
}
