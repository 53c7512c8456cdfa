package band

import (
	"fmt"
	"math"
	"sync"
)

// Result is the outcome of one evaluation.
//
// Band is nil when the score exceeded every configured edge (the implicit
// terminal overflow band, Index == len(list)). A band change into overflow
// still sets Notify: the alert fires with empty band metadata rather than
// being suppressed.
type Result struct {
	Index  int
	Band   *Band
	Notify bool
}

// Notifier decides whether a new score warrants a fresh alert. It keeps a
// single piece of state: the band index computed on the most recent
// evaluation. The first evaluation always notifies.
//
// Evaluate is safe for concurrent use; the compare-update-decide sequence is
// atomic under an internal mutex. The mutex is never held during sends —
// callers perform I/O after Evaluate returns.
type Notifier struct {
	mu      sync.Mutex
	prev    int
	prevSet bool
}

func NewNotifier() *Notifier { return &Notifier{} }

// Evaluate classifies score against set and reports whether the active band
// changed since the previous evaluation.
//
// Scores > 0 are classified with the positive list; everything else,
// including exactly zero, routes to the negative list. Zero routing to the
// negative side mirrors the alert history this detector replaces and is kept
// deliberately.
//
// A non-finite score returns ErrInvalidScore and leaves state untouched.
func (n *Notifier) Evaluate(score float64, set Set) (Result, error) {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidScore, score)
	}

	bands := set.Negative
	if score > 0 {
		bands = set.Positive
	}

	idx := len(bands)
	var hit *Band
	for i := range bands {
		// A score exactly on an edge belongs to that band, not the next.
		if score <= bands[i].Edge {
			idx = i
			b := bands[i]
			hit = &b
			break
		}
	}

	n.mu.Lock()
	notify := !n.prevSet || n.prev != idx
	n.prev = idx
	n.prevSet = true
	n.mu.Unlock()

	return Result{Index: idx, Band: hit, Notify: notify}, nil
}

// Reset clears the previous-band state so the next evaluation notifies
// unconditionally. Used when the band configuration is swapped at runtime.
func (n *Notifier) Reset() {
	n.mu.Lock()
	n.prevSet = false
	n.prev = 0
	n.mu.Unlock()
}

// Last returns the band index recorded by the most recent evaluation.
func (n *Notifier) Last() (int, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.prev, n.prevSet
}
