package score

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Update is one observation of the model score for an instrument.
type Update struct {
	Symbol     string
	ClosePrice decimal.Decimal
	Score      float64
	At         time.Time
}

// Source produces a stream of score updates. How scores are computed (a
// model, an exchange feed, a replay) is the source's business; the pipeline
// only consumes Updates.
//
// Start must not block beyond initial setup; updates flow to out until the
// context is cancelled or Stop is called. Stop is best-effort graceful.
type Source interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}
