package feed

import (
	"context"
	"errors"
	"sync"

	"marketfeed/internal/model"
)

// LiveFeed is the base for push-driven event sources (sockets, in-process
// generators) that broadcast to every currently playing consumer.
//
// Unlike file-backed feeds, a live feed does not pace itself: events arrive
// from the outside through Put and are delivered to each active channel with
// TrySend, so a slow consumer never stalls the source. Channels configured
// with the drop-oldest policy lose their stalest event instead.
//
// The set of active channels is owned by the feed and guarded by a mutex;
// its lifecycle is tied to the feed's own Play/Close, not to any process
// wide state.
type LiveFeed struct {
	mu       sync.Mutex
	channels []*EventChannel
	done     chan struct{}
	once     sync.Once
}

// NewLiveFeed creates an empty live feed with no active consumers.
func NewLiveFeed() *LiveFeed {
	return &LiveFeed{done: make(chan struct{})}
}

// Play registers channel as a broadcast target and suspends until the
// channel closes, the feed closes, or ctx is cancelled. It never returns an
// error: a closed channel is normal completion for a live source.
func (lf *LiveFeed) Play(ctx context.Context, channel *EventChannel) error {
	lf.mu.Lock()
	lf.channels = append(lf.channels, channel)
	lf.mu.Unlock()

	defer lf.remove(channel)

	select {
	case <-lf.done:
	case <-ctx.Done():
	case <-channel.Done():
	}
	return nil
}

// Put broadcasts one event to every active channel without blocking.
//
// Channels whose timeframe has elapsed close themselves and are removed
// from the active set.
func (lf *LiveFeed) Put(event model.Event) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	active := lf.channels[:0]
	for _, channel := range lf.channels {
		err := channel.TrySend(event)
		switch {
		case err == nil, errors.Is(err, ErrChannelFull):
			active = append(active, channel)
		case errors.Is(err, ErrChannelClosed):
			// Consumer gone; drop the channel permanently.
		}
	}
	lf.channels = active
}

// ActiveChannels reports how many consumers are currently playing.
func (lf *LiveFeed) ActiveChannels() int {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return len(lf.channels)
}

// Close stops the feed, releasing every task suspended in Play. Registered
// channels are closed so consumers observe a clean end-of-stream.
func (lf *LiveFeed) Close() error {
	lf.once.Do(func() {
		close(lf.done)
		lf.mu.Lock()
		for _, channel := range lf.channels {
			channel.Close()
		}
		lf.channels = nil
		lf.mu.Unlock()
	})
	return nil
}

// remove drops the channel from the active set.
func (lf *LiveFeed) remove(target *EventChannel) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	for i, channel := range lf.channels {
		if channel == target {
			lf.channels = append(lf.channels[:i], lf.channels[i+1:]...)
			return
		}
	}
}
