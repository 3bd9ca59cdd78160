package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NewTimeframe(t *testing.T) {
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

	tf, err := NewTimeframe(start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, tf.Duration())
	assert.False(t, tf.Inclusive)

	_, err = NewTimeframe(start, start.Add(-time.Second))
	assert.ErrorIs(t, err, ErrInvalidTimeframe)
}

func Test_Timeframe_Contains(t *testing.T) {
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	tests := []struct {
		name      string
		inclusive bool
		instant   time.Time
		want      bool
	}{
		{name: "before start", instant: start.Add(-time.Nanosecond), want: false},
		{name: "at start", instant: start, want: true},
		{name: "inside", instant: start.Add(30 * time.Minute), want: true},
		{name: "at end half-open", instant: end, want: false},
		{name: "at end inclusive", inclusive: true, instant: end, want: true},
		{name: "after end", inclusive: true, instant: end.Add(time.Nanosecond), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tf := Timeframe{Start: start, End: end, Inclusive: tt.inclusive}
			assert.Equal(t, tt.want, tf.Contains(tt.instant))
		})
	}
}

func Test_Timeframe_Compare(t *testing.T) {
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	tf := Timeframe{Start: start, End: start.Add(time.Hour)}

	assert.Positive(t, tf.Compare(start.Add(-time.Second)), "timeframe entirely after the instant")
	assert.Zero(t, tf.Compare(start.Add(time.Minute)))
	assert.Negative(t, tf.Compare(start.Add(2*time.Hour)), "timeframe entirely before the instant")
}

func Test_Timeframe_Extend(t *testing.T) {
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	tf := Timeframe{Start: start, End: start.Add(time.Hour)}

	extended := tf.Extend(30 * time.Minute)
	assert.Equal(t, start, extended.Start, "start is unchanged")
	assert.Equal(t, 90*time.Minute, extended.Duration())
}

func Test_Timeframe_Union(t *testing.T) {
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	a := Timeframe{Start: start, End: start.Add(time.Hour)}
	b := Timeframe{Start: start.Add(30 * time.Minute), End: start.Add(2 * time.Hour)}

	union := a.Union(b)
	assert.Equal(t, start, union.Start)
	assert.Equal(t, start.Add(2*time.Hour), union.End)

	assert.Equal(t, a, a.Union(Timeframe{}), "zero value is ignored")
	assert.Equal(t, a, Timeframe{}.Union(a))
}

func Test_Timeframe_IsZero(t *testing.T) {
	assert.True(t, Timeframe{}.IsZero())
	assert.False(t, InfiniteTimeframe().IsZero())
	assert.True(t, InfiniteTimeframe().Contains(time.Now()))
}
