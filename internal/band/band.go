package band

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrInvalidScore rejects scores that are not finite numbers before
	// any state is touched.
	ErrInvalidScore = errors.New("score is not a finite number")
	// ErrUnsortedBands rejects a band list whose edges are not ascending.
	// Raised at configuration-load time, never during evaluation.
	ErrUnsortedBands = errors.New("band edges must be ascending")
)

// Band is one alert threshold. Immutable, supplied by configuration.
type Band struct {
	Edge float64 `json:"edge"`
	Sign string  `json:"sign"`
	Text string  `json:"text"`
	Bold bool    `json:"bold"`
}

// Set holds the thresholds for positive and negative scores.
// Each list must be sorted ascending by Edge (see Validate).
type Set struct {
	Positive []Band `json:"positive_bands"`
	Negative []Band `json:"negative_bands"`
}

// Validate rejects unsorted band lists. Empty lists are valid: every score
// of that sign then resolves to the overflow band.
func (s Set) Validate() error {
	if !edgesAscending(s.Positive) {
		return fmt.Errorf("positive_bands: %w", ErrUnsortedBands)
	}
	if !edgesAscending(s.Negative) {
		return fmt.Errorf("negative_bands: %w", ErrUnsortedBands)
	}
	return nil
}

func edgesAscending(bands []Band) bool {
	return sort.SliceIsSorted(bands, func(i, j int) bool {
		return bands[i].Edge < bands[j].Edge
	})
}
