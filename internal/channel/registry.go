package channel

import (
	"context"
	"fmt"
	"sync"

	logx "bandbot/pkg/logx"
)

// Registry holds the configured channels and drives their lifecycle.
type Registry struct {
	log logx.Logger

	mu    sync.Mutex
	order []string
	reg   map[string]Channel
}

func NewRegistry(log logx.Logger) *Registry {
	return &Registry{log: log, reg: map[string]Channel{}}
}

func (r *Registry) Register(chs ...Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range chs {
		if ch == nil {
			continue
		}
		name := ch.Name()
		if _, dup := r.reg[name]; !dup {
			r.order = append(r.order, name)
		}
		r.reg[name] = ch
	}
}

func (r *Registry) Get(name string) (Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.reg[name]
	return ch, ok
}

func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// StartAll starts every registered channel in registration order. A channel
// that fails to start is reported but does not block the others.
func (r *Registry) StartAll(ctx context.Context) error {
	var firstErr error
	for _, name := range r.Names() {
		ch, ok := r.Get(name)
		if !ok {
			continue
		}
		if err := ch.OnStart(ctx); err != nil {
			r.log.Error("channel start failed", logx.String("channel", name), logx.Err(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("start channel %s: %w", name, err)
			}
			continue
		}
		r.log.Info("channel started", logx.String("channel", name))
	}
	return firstErr
}

// StopAll stops channels in reverse registration order.
func (r *Registry) StopAll(ctx context.Context) {
	names := r.Names()
	for i := len(names) - 1; i >= 0; i-- {
		ch, ok := r.Get(names[i])
		if !ok {
			continue
		}
		if err := ch.OnStop(ctx); err != nil {
			r.log.Warn("channel stop failed", logx.String("channel", names[i]), logx.Err(err))
			continue
		}
		r.log.Info("channel stopped", logx.String("channel", names[i]))
	}
}
