package feed

import (
	"context"

	"marketfeed/internal/model"
)

// Feed is the producer contract every event source implements.
//
// A feed is a task that, given an EventChannel, emits zero or more events in
// non-decreasing time order and then returns. Stopping early because the
// channel closed is also normal completion: the producer must detect
// ErrChannelClosed (or context cancellation), exit cleanly and report nil.
// Every other error is a producer-internal fault.
//
// Feeds must release any held resource (file handle, socket) on completion,
// including abnormal or cancelled completion.
type Feed interface {
	// Play emits the feed's events into channel until exhausted, the channel
	// closes, or ctx is cancelled.
	Play(ctx context.Context, channel *EventChannel) error

	// Close releases resources held by the feed. Safe to call repeatedly.
	Close() error
}

// Timeframer is implemented by feeds that know the time span of the data
// they will produce. The value is advisory, for planning purposes only.
type Timeframer interface {
	Timeframe() model.Timeframe
}

// AssetHolder is implemented by feeds that know their asset universe up
// front. The value is advisory, for planning purposes only.
type AssetHolder interface {
	Assets() []string
}

// PlayBackground starts feed on its own goroutine, playing into a freshly
// created channel, and closes the channel when the feed completes so that
// completion propagates to the consumer by channel closure.
//
// The error returned by the feed (if any) is delivered on the returned
// one-shot error channel after the event channel has been closed.
func PlayBackground(ctx context.Context, f Feed, cfg ChannelConfig) (*EventChannel, <-chan error, error) {
	channel, err := NewEventChannel(cfg)
	if err != nil {
		return nil, nil, err
	}
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		err := f.Play(ctx, channel)
		channel.Close()
		if err != nil {
			errc <- err
		}
	}()
	return channel, errc, nil
}
