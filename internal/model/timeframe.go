package model

import (
	"errors"
	"fmt"
	"time"
)

// MinTime and MaxTime bound the representable streaming horizon. They serve
// as the endpoints of the unbounded Timeframe.
var (
	MinTime = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)
	MaxTime = time.Date(2200, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// ErrInvalidTimeframe indicates that a timeframe's end precedes its start.
var ErrInvalidTimeframe = errors.New("timeframe end before start")

// Timeframe is an immutable time interval used to clip and terminate event
// streams.
//
// The interval is half-open [Start, End) by default; setting Inclusive makes
// the end instant part of the interval. The zero value is treated as the
// unbounded timeframe by components that accept one.
type Timeframe struct {
	Start     time.Time // Beginning of the interval (inclusive)
	End       time.Time // End of the interval
	Inclusive bool      // Whether End itself belongs to the interval
}

// NewTimeframe creates a half-open timeframe [start, end).
func NewTimeframe(start, end time.Time) (Timeframe, error) {
	if end.Before(start) {
		return Timeframe{}, fmt.Errorf("%w: start=%s end=%s", ErrInvalidTimeframe, start, end)
	}
	return Timeframe{Start: start, End: end}, nil
}

// InfiniteTimeframe returns the unbounded timeframe covering the whole
// representable horizon.
func InfiniteTimeframe() Timeframe {
	return Timeframe{Start: MinTime, End: MaxTime, Inclusive: true}
}

// IsZero reports whether the timeframe is the zero value, which components
// interpret as "no restriction".
func (tf Timeframe) IsZero() bool {
	return tf.Start.IsZero() && tf.End.IsZero()
}

// Contains reports whether the instant t falls within the timeframe.
func (tf Timeframe) Contains(t time.Time) bool {
	if t.Before(tf.Start) {
		return false
	}
	if tf.Inclusive {
		return !t.After(tf.End)
	}
	return t.Before(tf.End)
}

// Compare orders the timeframe against a single instant. It returns a
// positive number when the timeframe lies entirely after t, a negative
// number when it lies entirely before t, and zero when it contains t.
func (tf Timeframe) Compare(t time.Time) int {
	if tf.Start.After(t) {
		return 1
	}
	if !tf.Contains(t) {
		return -1
	}
	return 0
}

// Extend returns a new timeframe with the end moved forward by d.
func (tf Timeframe) Extend(d time.Duration) Timeframe {
	return Timeframe{Start: tf.Start, End: tf.End.Add(d), Inclusive: tf.Inclusive}
}

// Duration returns the length of the timeframe.
func (tf Timeframe) Duration() time.Duration {
	return tf.End.Sub(tf.Start)
}

// Union returns the smallest timeframe covering both tf and other. Zero
// values are treated as empty and ignored.
func (tf Timeframe) Union(other Timeframe) Timeframe {
	if tf.IsZero() {
		return other
	}
	if other.IsZero() {
		return tf
	}
	result := tf
	if other.Start.Before(result.Start) {
		result.Start = other.Start
	}
	if other.End.After(result.End) {
		result.End = other.End
		result.Inclusive = other.Inclusive
	} else if other.End.Equal(result.End) && other.Inclusive {
		result.Inclusive = true
	}
	return result
}

// String returns the interval in a compact [start, end) notation.
func (tf Timeframe) String() string {
	closing := ")"
	if tf.Inclusive {
		closing = "]"
	}
	return fmt.Sprintf("[%s, %s%s", tf.Start.Format(time.RFC3339), tf.End.Format(time.RFC3339), closing)
}
