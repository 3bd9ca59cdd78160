package feed

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"marketfeed/internal/model"
)

// LiveAggregatorConfig holds the construction parameters of an
// AggregatorLiveFeed.
type LiveAggregatorConfig struct {
	// Period is the bucket width. Must be strictly positive.
	Period time.Duration

	// ChannelCapacity is the queue depth of the private channel the upstream
	// feed plays into. Defaults to 100.
	ChannelCapacity int

	// SkipFinalFlush suppresses the final partial bucket otherwise emitted
	// when the upstream completes while a bucket is still open.
	SkipFinalFlush bool

	// NoForwardFill disables continuation mode. With continuation on (the
	// default), each flush re-seeds every asset with a degenerate bar at its
	// previous close so indicators see no gaps during idle periods.
	NoForwardFill bool

	// Restrict, when set, limits aggregation to items it accepts. Items it
	// rejects are passed through untouched unless DropOthers is set.
	Restrict func(model.Item) bool

	// DropOthers discards items rejected by Restrict instead of passing
	// them through.
	DropOthers bool
}

// AggregatorLiveFeed is the wall-clock driven variant of AggregatorFeed.
//
// On top of the historic bucket logic it runs a second, independent timer
// task that sleeps until the next epoch-aligned boundary and proactively
// flushes the accumulated per-asset bars at that exact instant, then re-arms
// for the next boundary. This guarantees punctual delivery even when the
// upstream stream is idle.
//
// The per-asset accumulator is shared by the ingestion task and the timer
// task, so both the merge-in and the flush-and-clear run under its mutex as
// one atomic step. Heartbeat events from upstream are forwarded immediately
// rather than buffered.
type AggregatorLiveFeed struct {
	cfg    LiveAggregatorConfig
	source Feed
}

// NewAggregatorLiveFeed creates a live window aggregator over the given
// source feed.
func NewAggregatorLiveFeed(source Feed, cfg LiveAggregatorConfig) (*AggregatorLiveFeed, error) {
	base := AggregatorConfig{Period: cfg.Period, ChannelCapacity: cfg.ChannelCapacity}
	if err := base.validate(); err != nil {
		return nil, err
	}
	cfg.ChannelCapacity = base.ChannelCapacity
	return &AggregatorLiveFeed{cfg: cfg, source: source}, nil
}

// Play consumes the upstream feed and emits one aggregated event per
// wall-clock aligned boundary into channel.
func (af *AggregatorLiveFeed) Play(ctx context.Context, channel *EventChannel) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	src, errc, err := PlayBackground(ctx, af.source, ChannelConfig{
		Capacity:  af.cfg.ChannelCapacity,
		Timeframe: channel.Timeframe(),
	})
	if err != nil {
		return err
	}

	defer func() {
		cancel()
		src.Close()
		<-errc
	}()

	acc := newAccumulator(af.cfg.Period)

	// Timer task: flush at every aligned wall-clock boundary once the first
	// aggregation epoch has begun.
	timerDone := make(chan struct{})
	go func() {
		defer close(timerDone)
		af.runTimer(ctx, acc, channel)
	}()
	defer func() {
		cancel()
		<-timerDone
	}()

	for {
		event, err := src.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrChannelClosed) {
				break
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		// Heartbeats carry no data and are forwarded without buffering.
		if event.Empty() {
			if err := channel.Send(ctx, event); err != nil {
				if errors.Is(err, ErrChannelClosed) {
					return nil
				}
				return err
			}
			continue
		}

		if err := af.ingest(ctx, acc, event, channel); err != nil {
			if errors.Is(err, ErrChannelClosed) {
				return nil
			}
			return err
		}
	}

	if !af.cfg.SkipFinalFlush {
		acc.mu.Lock()
		pending := acc.pending()
		var final model.Event
		if pending {
			final = acc.flush(acc.expiration, false)
		}
		acc.mu.Unlock()
		if pending {
			if err := channel.SendIfNotEmpty(ctx, final); err != nil && !errors.Is(err, ErrChannelClosed) {
				return err
			}
		}
	}

	if playErr, ok := <-errc; ok && playErr != nil && !errors.Is(playErr, context.Canceled) {
		return playErr
	}
	return nil
}

// ingest folds one upstream event into the shared bucket state.
func (af *AggregatorLiveFeed) ingest(ctx context.Context, acc *accumulator, event model.Event, out *EventChannel) error {
	var passthrough []model.Item

	acc.mu.Lock()
	if acc.expiration.IsZero() {
		acc.expiration = NextBoundary(event.Time, af.cfg.Period)
	}
	for _, item := range event.Items {
		if af.cfg.Restrict != nil && !af.cfg.Restrict(item) {
			if !af.cfg.DropOthers {
				passthrough = append(passthrough, item)
			}
			continue
		}
		if pi, ok := item.(model.PriceItem); ok {
			acc.observe(pi)
		}
	}
	acc.mu.Unlock()

	if len(passthrough) > 0 {
		return out.Send(ctx, model.NewEvent(event.Time, passthrough...))
	}
	return nil
}

// runTimer sleeps until each upcoming aligned boundary and flushes whatever
// has accumulated by then. It exits when ctx is cancelled or the downstream
// channel closes.
func (af *AggregatorLiveFeed) runTimer(ctx context.Context, acc *accumulator, out *EventChannel) {
	for {
		next := NextBoundary(time.Now(), af.cfg.Period)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		acc.mu.Lock()
		if acc.expiration.IsZero() || len(acc.bars) == 0 {
			// No aggregation epoch has begun, or an idle period with
			// continuation disabled; nothing to deliver.
			acc.mu.Unlock()
			continue
		}
		flushed := acc.flush(next, !af.cfg.NoForwardFill)
		acc.expiration = next.Add(af.cfg.Period)
		acc.mu.Unlock()

		if err := out.SendIfNotEmpty(ctx, flushed); err != nil {
			if !errors.Is(err, ErrChannelClosed) && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("live aggregator flush failed")
			}
			return
		}
	}
}

// Timeframe reports the upstream feed's advisory timeframe when it has one.
func (af *AggregatorLiveFeed) Timeframe() model.Timeframe {
	if tfr, ok := af.source.(Timeframer); ok {
		return tfr.Timeframe()
	}
	return model.Timeframe{}
}

// Assets reports the upstream feed's advisory asset universe when it has one.
func (af *AggregatorLiveFeed) Assets() []string {
	if ah, ok := af.source.(AssetHolder); ok {
		return ah.Assets()
	}
	return nil
}

// Close releases the upstream feed.
func (af *AggregatorLiveFeed) Close() error {
	return af.source.Close()
}
