package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketfeed/internal/model"
)

// defaultAggregatorCapacity is the queue depth of the aggregator's private
// upstream channel when the configuration leaves it unset.
const defaultAggregatorCapacity = 100

// AggregatorConfig holds the construction parameters of an AggregatorFeed.
type AggregatorConfig struct {
	// Period is the bucket width. Must be strictly positive.
	Period time.Duration

	// ChannelCapacity is the queue depth of the private channel the upstream
	// feed plays into. Defaults to 100.
	ChannelCapacity int

	// SkipFinalFlush suppresses the final partial bucket that is otherwise
	// emitted when the upstream completes while a bucket is still open.
	SkipFinalFlush bool
}

// validate rejects invalid aggregation parameters eagerly and applies
// defaults, so misconfiguration is never discovered mid-stream.
func (cfg *AggregatorConfig) validate() error {
	if cfg.Period <= 0 {
		return fmt.Errorf("%w: aggregation period must be positive, got %s", ErrInvalidConfig, cfg.Period)
	}
	if cfg.ChannelCapacity == 0 {
		cfg.ChannelCapacity = defaultAggregatorCapacity
	}
	if cfg.ChannelCapacity < 0 {
		return fmt.Errorf("%w: channel capacity must be positive, got %d", ErrInvalidConfig, cfg.ChannelCapacity)
	}
	return nil
}

// AggregatorFeed re-samples a chronologically ordered stream of price
// observations into fixed-duration OHLCV buckets, per asset.
//
// Bucket boundaries are always epoch-aligned, never aligned to the first
// observed timestamp, so independently started aggregators over the same
// period agree on bucket edges. Outgoing events are stamped at the boundary
// that closed the bucket. Items that cannot be converted to a price bar are
// ignored; that is not an error.
//
// This is the historic variant: flushes are driven purely by event time.
// See AggregatorLiveFeed for the wall-clock driven variant.
type AggregatorFeed struct {
	cfg    AggregatorConfig
	source Feed
}

// NewAggregatorFeed creates a window aggregator over the given source feed.
func NewAggregatorFeed(source Feed, cfg AggregatorConfig) (*AggregatorFeed, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &AggregatorFeed{cfg: cfg, source: source}, nil
}

// Timeframe reports the upstream feed's advisory timeframe when it has one.
func (af *AggregatorFeed) Timeframe() model.Timeframe {
	if tfr, ok := af.source.(Timeframer); ok {
		return tfr.Timeframe()
	}
	return model.Timeframe{}
}

// Assets reports the upstream feed's advisory asset universe when it has one.
func (af *AggregatorFeed) Assets() []string {
	if ah, ok := af.source.(AssetHolder); ok {
		return ah.Assets()
	}
	return nil
}

// Play consumes the upstream feed through a private channel, re-windows its
// price items and emits one event per completed bucket into channel.
func (af *AggregatorFeed) Play(ctx context.Context, channel *EventChannel) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The private channel lets the aggregator apply its own capacity policy
	// independently of whatever the downstream channel was configured with.
	src, errc, err := PlayBackground(ctx, af.source, ChannelConfig{
		Capacity:  af.cfg.ChannelCapacity,
		Timeframe: channel.Timeframe(),
	})
	if err != nil {
		return err
	}

	// Join the upstream task on every exit path so no resource leaks even
	// when the downstream consumer stops early.
	defer func() {
		cancel()
		src.Close()
		<-errc
	}()

	acc := newAccumulator(af.cfg.Period)

	for {
		event, err := src.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrChannelClosed) {
				break
			}
			return err
		}
		if event.Empty() {
			continue
		}

		if err := af.process(ctx, acc, event, channel); err != nil {
			if errors.Is(err, ErrChannelClosed) {
				// Downstream consumer stopped; normal termination.
				return nil
			}
			return err
		}
	}

	if !af.cfg.SkipFinalFlush && acc.pending() {
		final := acc.flush(acc.expiration, false)
		if err := channel.SendIfNotEmpty(ctx, final); err != nil && !errors.Is(err, ErrChannelClosed) {
			return err
		}
	}

	// Surface any fault the upstream task reported before its channel
	// closed normally.
	if playErr, ok := <-errc; ok && playErr != nil && !errors.Is(playErr, context.Canceled) {
		return playErr
	}
	return nil
}

// process folds one upstream event into the bucket state, flushing first
// when the event's time has reached the current bucket's expiration.
func (af *AggregatorFeed) process(ctx context.Context, acc *accumulator, event model.Event, out *EventChannel) error {
	t := event.Time

	if acc.expiration.IsZero() {
		acc.expiration = NextBoundary(t, af.cfg.Period)
	} else if !t.Before(acc.expiration) {
		flushed := acc.flush(acc.expiration, false)
		if err := out.SendIfNotEmpty(ctx, flushed); err != nil {
			return err
		}
		// Advance over upstream gaps larger than one bucket.
		for !acc.expiration.After(t) {
			acc.expiration = acc.expiration.Add(af.cfg.Period)
		}
	}

	for _, item := range event.Items {
		if pi, ok := item.(model.PriceItem); ok {
			acc.observe(pi)
		}
	}
	return nil
}

// Close releases the upstream feed.
func (af *AggregatorFeed) Close() error {
	return af.source.Close()
}
