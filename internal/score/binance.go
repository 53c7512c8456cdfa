package score

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	rtsup "bandbot/internal/runtime/supervisor"
	logx "bandbot/pkg/logx"
)

type BinanceConfig struct {
	Symbol   string
	Interval string
	Poll     time.Duration
	Lookback int
}

// BinanceSource polls spot klines and derives a momentum score: the z-score
// of the latest close against the lookback window. It exists so the bot can
// run end to end without a trading model attached; a real model source
// implements the same Source interface.
type BinanceSource struct {
	cfg BinanceConfig
	log logx.Logger
	cli *binance.Client

	mu      sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

func NewBinanceSource(cfg BinanceConfig, log logx.Logger) (*BinanceSource, error) {
	if strings.TrimSpace(cfg.Symbol) == "" {
		return nil, errors.New("binance source: symbol is required")
	}
	if cfg.Interval == "" {
		cfg.Interval = "1m"
	}
	if cfg.Poll <= 0 {
		cfg.Poll = time.Minute
	}
	if cfg.Lookback < 3 {
		cfg.Lookback = 30
	}
	// Market data endpoints need no API credentials.
	return &BinanceSource{
		cfg: cfg,
		log: log.With(logx.String("comp", "score.binance"), logx.String("symbol", cfg.Symbol)),
		cli: binance.NewClient("", ""),
	}, nil
}

func (s *BinanceSource) Start(ctx context.Context, out chan<- Update) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	sup := s.sup
	s.mu.Unlock()

	sup.GoRestart("binance.poll", func(c context.Context) error {
		ticker := time.NewTicker(s.cfg.Poll)
		defer ticker.Stop()
		for {
			up, err := s.observe(c)
			if err != nil {
				return err
			}
			select {
			case out <- up:
			case <-c.Done():
				return c.Err()
			}
			select {
			case <-ticker.C:
			case <-c.Done():
				return c.Err()
			}
		}
	},
		rtsup.WithRestartBackoff(time.Second, time.Minute),
	)
	return nil
}

func (s *BinanceSource) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.running = false
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	sup.Cancel()
	return sup.Wait(ctx)
}

func (s *BinanceSource) observe(ctx context.Context) (Update, error) {
	klines, err := s.cli.NewKlinesService().
		Symbol(s.cfg.Symbol).
		Interval(s.cfg.Interval).
		Limit(s.cfg.Lookback).
		Do(ctx)
	if err != nil {
		return Update{}, fmt.Errorf("fetch klines: %w", err)
	}
	if len(klines) < 3 {
		return Update{}, fmt.Errorf("fetch klines: got %d, need at least 3", len(klines))
	}

	closes := make([]float64, 0, len(klines))
	for _, k := range klines {
		d, err := decimal.NewFromString(k.Close)
		if err != nil {
			return Update{}, fmt.Errorf("parse close %q: %w", k.Close, err)
		}
		closes = append(closes, d.InexactFloat64())
	}

	last, err := decimal.NewFromString(klines[len(klines)-1].Close)
	if err != nil {
		return Update{}, fmt.Errorf("parse close %q: %w", klines[len(klines)-1].Close, err)
	}

	return Update{
		Symbol:     s.cfg.Symbol,
		ClosePrice: last,
		Score:      zscore(closes),
		At:         time.UnixMilli(klines[len(klines)-1].CloseTime),
	}, nil
}

// zscore scores the last sample against the mean and deviation of the rest.
// A flat window scores zero.
func zscore(samples []float64) float64 {
	n := len(samples) - 1
	if n < 2 {
		return 0
	}
	window := samples[:n]
	last := samples[n]

	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(n)

	var variance float64
	for _, v := range window {
		d := v - mean
		variance += d * d
	}
	variance /= float64(n)
	if variance == 0 {
		return 0
	}
	return (last - mean) / math.Sqrt(variance)
}
