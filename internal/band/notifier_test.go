package band

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeBands() Set {
	return Set{
		Positive: []Band{
			{Edge: 1.0, Sign: "·"},
			{Edge: 2.0, Sign: "↑"},
			{Edge: 3.0, Sign: "⇈", Bold: true},
		},
		Negative: []Band{
			{Edge: -1.0, Sign: "↓"},
			{Edge: 0.0, Sign: "·"},
		},
	}
}

func TestEvaluateFirstCallAlwaysNotifies(t *testing.T) {
	t.Parallel()
	n := NewNotifier()
	res, err := n.Evaluate(0.5, threeBands())
	require.NoError(t, err)
	assert.True(t, res.Notify)
	assert.Equal(t, 0, res.Index)
	require.NotNil(t, res.Band)
	assert.Equal(t, 1.0, res.Band.Edge)
}

func TestEvaluateSameBandDoesNotRenotify(t *testing.T) {
	t.Parallel()
	n := NewNotifier()
	set := threeBands()

	res, err := n.Evaluate(0.5, set)
	require.NoError(t, err)
	require.True(t, res.Notify)

	// All scores stay strictly within band 0.
	for _, score := range []float64{0.2, 0.9, 0.5, 0.5} {
		res, err = n.Evaluate(score, set)
		require.NoError(t, err)
		assert.False(t, res.Notify, "score %v should not re-notify", score)
		assert.Equal(t, 0, res.Index)
	}
}

func TestEvaluateCrossingNotifiesOnce(t *testing.T) {
	t.Parallel()
	n := NewNotifier()
	set := threeBands()

	first, err := n.Evaluate(0.5, set)
	require.NoError(t, err)
	require.Equal(t, 0, first.Index)

	// Monotonically increasing sequence crossing the 1.0 edge: exactly one
	// notification at the crossing, index moves up by exactly one.
	crossed, err := n.Evaluate(1.5, set)
	require.NoError(t, err)
	assert.True(t, crossed.Notify)
	assert.Equal(t, 1, crossed.Index)

	again, err := n.Evaluate(1.9, set)
	require.NoError(t, err)
	assert.False(t, again.Notify)
}

func TestEvaluateScenarioFromSpecifiedSequence(t *testing.T) {
	t.Parallel()
	set := Set{Positive: []Band{{Edge: 1.0}, {Edge: 2.0}, {Edge: 3.0}}}
	n := NewNotifier()

	steps := []struct {
		score      float64
		wantIndex  int
		wantNotify bool
	}{
		{0.5, 0, true},
		{1.5, 1, true},
		{1.8, 1, false},
		{2.5, 2, true},
	}
	for _, st := range steps {
		res, err := n.Evaluate(st.score, set)
		require.NoError(t, err)
		assert.Equal(t, st.wantIndex, res.Index, "score %v", st.score)
		assert.Equal(t, st.wantNotify, res.Notify, "score %v", st.score)
	}
}

func TestEvaluateEdgeBelongsToBand(t *testing.T) {
	t.Parallel()
	n := NewNotifier()
	res, err := n.Evaluate(1.0, threeBands())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Index)
	require.NotNil(t, res.Band)
	assert.Equal(t, 1.0, res.Band.Edge)
}

func TestEvaluateOverflowHasNoBandMetadata(t *testing.T) {
	t.Parallel()
	n := NewNotifier()
	set := threeBands()

	res, err := n.Evaluate(99.0, set)
	require.NoError(t, err)
	assert.Equal(t, len(set.Positive), res.Index)
	assert.Nil(t, res.Band)
	// Moving into overflow still notifies, just without metadata.
	assert.True(t, res.Notify)
}

func TestEvaluateEmptyBandListResolvesToOverflow(t *testing.T) {
	t.Parallel()
	n := NewNotifier()
	set := Set{}

	res, err := n.Evaluate(1.23, set)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Index)
	assert.Nil(t, res.Band)
	assert.True(t, res.Notify)

	// Index stays 0 for every further positive score: never notifies again.
	for _, score := range []float64{0.1, 5.0, 42.0} {
		res, err = n.Evaluate(score, set)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Index)
		assert.False(t, res.Notify)
	}
}

func TestEvaluateZeroRoutesToNegativeList(t *testing.T) {
	t.Parallel()
	set := Set{
		Positive: []Band{{Edge: 1.0, Text: "pos"}},
		Negative: []Band{{Edge: 0.0, Text: "neg"}},
	}
	n := NewNotifier()
	res, err := n.Evaluate(0, set)
	require.NoError(t, err)
	require.NotNil(t, res.Band)
	assert.Equal(t, "neg", res.Band.Text)
}

func TestEvaluateRejectsNonFiniteScores(t *testing.T) {
	t.Parallel()
	n := NewNotifier()
	set := threeBands()

	for _, score := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := n.Evaluate(score, set)
		require.ErrorIs(t, err, ErrInvalidScore)
	}

	// Rejection must not have touched state: the next valid evaluation is
	// still the first-ever one and notifies.
	res, err := n.Evaluate(0.5, set)
	require.NoError(t, err)
	assert.True(t, res.Notify)
}

func TestResetForcesNextNotification(t *testing.T) {
	t.Parallel()
	n := NewNotifier()
	set := threeBands()

	_, err := n.Evaluate(0.5, set)
	require.NoError(t, err)
	res, err := n.Evaluate(0.5, set)
	require.NoError(t, err)
	require.False(t, res.Notify)

	n.Reset()
	res, err = n.Evaluate(0.5, set)
	require.NoError(t, err)
	assert.True(t, res.Notify)
}

func TestSetValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		set     Set
		wantErr bool
	}{
		{name: "empty", set: Set{}},
		{name: "sorted", set: threeBands()},
		{
			name:    "unsorted positive",
			set:     Set{Positive: []Band{{Edge: 2.0}, {Edge: 1.0}}},
			wantErr: true,
		},
		{
			name:    "unsorted negative",
			set:     Set{Negative: []Band{{Edge: 0.0}, {Edge: -1.0}}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnsortedBands)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
