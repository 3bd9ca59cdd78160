package feed

import (
	"container/heap"
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"marketfeed/internal/model"
)

// CombinedFeedConfig holds the construction parameters of a CombinedFeed.
type CombinedFeedConfig struct {
	// ChannelCapacityPerSource is the queue depth of each source's private
	// channel. Must be positive.
	ChannelCapacityPerSource int

	// FaultTolerant selects what happens when one source fails mid-stream.
	// When false (the default) the first failing source cancels the whole
	// merge and its error is surfaced. When true the failed source is
	// logged, dropped and the remaining sources keep playing. Either way no
	// resource is ever leaked.
	FaultTolerant bool
}

// CombinedFeed presents N independently paced feeds as a single, globally
// time-ordered event stream.
//
// Each source plays into its own private bounded channel; a k-way merge over
// a min-heap keyed by (time, source order) forwards the globally minimum
// event downstream and re-pulls from the same source. Same-timestamp events
// from different sources are forwarded as adjacent separate events, stable
// by source registration order; they are never coalesced into one event.
//
// The combined feed owns the private channels and the producer tasks: it
// joins all of them before Play returns, on every exit path.
type CombinedFeed struct {
	cfg   CombinedFeedConfig
	feeds []Feed
}

// NewCombinedFeed creates a merge operator over the given feeds.
func NewCombinedFeed(cfg CombinedFeedConfig, feeds ...Feed) (*CombinedFeed, error) {
	if cfg.ChannelCapacityPerSource <= 0 {
		return nil, fmt.Errorf("%w: channel capacity per source must be positive, got %d",
			ErrInvalidConfig, cfg.ChannelCapacityPerSource)
	}
	if len(feeds) == 0 {
		return nil, fmt.Errorf("%w: at least one feed required", ErrInvalidConfig)
	}
	return &CombinedFeed{cfg: cfg, feeds: feeds}, nil
}

// Timeframe returns the union of the advisory timeframes of the sources
// that expose one.
func (cf *CombinedFeed) Timeframe() model.Timeframe {
	var result model.Timeframe
	for _, f := range cf.feeds {
		if tfr, ok := f.(Timeframer); ok {
			result = result.Union(tfr.Timeframe())
		}
	}
	return result
}

// Assets returns the union of the advisory asset universes of the sources
// that expose one.
func (cf *CombinedFeed) Assets() []string {
	seen := make(map[string]struct{})
	var assets []string
	for _, f := range cf.feeds {
		if ah, ok := f.(AssetHolder); ok {
			for _, a := range ah.Assets() {
				if _, dup := seen[a]; !dup {
					seen[a] = struct{}{}
					assets = append(assets, a)
				}
			}
		}
	}
	return assets
}

// Play starts every source as an independent task writing into its private
// channel, merges the streams in global time order into channel, then closes
// channel once all sources are exhausted.
//
// When the downstream consumer stops (channel closes early), all producer
// tasks are cancelled and joined before Play returns.
func (cf *CombinedFeed) Play(ctx context.Context, channel *EventChannel) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	sources := make([]*EventChannel, len(cf.feeds))
	for i, f := range cf.feeds {
		i, f := i, f
		src, err := NewEventChannel(ChannelConfig{
			Capacity:  cf.cfg.ChannelCapacityPerSource,
			Timeframe: channel.Timeframe(),
		})
		if err != nil {
			return err
		}
		sources[i] = src

		g.Go(func() error {
			defer src.Close()
			err := f.Play(gctx, src)
			switch {
			case err == nil, errors.Is(err, ErrChannelClosed), errors.Is(err, context.Canceled):
				return nil
			case cf.cfg.FaultTolerant:
				log.Warn().Err(err).Int("source", i).Msg("feed failed, continuing without it")
				return nil
			default:
				return err
			}
		})
	}

	mergeErr := cf.merge(gctx, sources, channel)

	// Wake any producer still blocked on its private channel, then join.
	for _, src := range sources {
		src.Close()
	}
	playErr := g.Wait()

	channel.Close()

	if mergeErr != nil {
		if playErr != nil && errors.Is(mergeErr, context.Canceled) {
			// The merge was torn down by group cancellation; the failing
			// source is the root cause.
			return playErr
		}
		return mergeErr
	}
	return playErr
}

// Close releases every underlying feed. Errors are collected so that one
// failing feed does not prevent the others from being released.
func (cf *CombinedFeed) Close() error {
	var errs []error
	for _, f := range cf.feeds {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// merge runs the k-way merge loop until all sources are exhausted or the
// downstream channel closes.
func (cf *CombinedFeed) merge(ctx context.Context, sources []*EventChannel, out *EventChannel) error {
	h := make(sourceHeap, 0, len(sources))

	// Prime the heap with one event per source, skipping sources that are
	// already closed and empty.
	for i, src := range sources {
		event, err := src.Receive(ctx)
		switch {
		case err == nil:
			h = append(h, sourceHead{event: event, source: src, order: i})
		case errors.Is(err, ErrChannelClosed):
		default:
			return err
		}
	}
	heap.Init(&h)

	for h.Len() > 0 {
		head := heap.Pop(&h).(sourceHead)

		if err := out.Send(ctx, head.event); err != nil {
			if errors.Is(err, ErrChannelClosed) {
				// Downstream consumer stopped; normal termination.
				return nil
			}
			return err
		}

		// Re-pull from the source the forwarded event came from; drop the
		// source permanently once exhausted.
		event, err := head.source.Receive(ctx)
		switch {
		case err == nil:
			heap.Push(&h, sourceHead{event: event, source: head.source, order: head.order})
		case errors.Is(err, ErrChannelClosed):
		default:
			return err
		}
	}
	return nil
}

// sourceHead pairs a pending event with the channel it was drained from.
type sourceHead struct {
	event  model.Event
	source *EventChannel
	order  int
}

// sourceHeap is a min-heap over (event time, source order). The order
// component makes ties deterministic without promising any cross-source
// semantics beyond adjacency at the shared timestamp.
type sourceHeap []sourceHead

func (h sourceHeap) Len() int { return len(h) }

func (h sourceHeap) Less(i, j int) bool {
	if c := h[i].event.Compare(h[j].event); c != 0 {
		return c < 0
	}
	return h[i].order < h[j].order
}

func (h sourceHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *sourceHeap) Push(x any) { *h = append(*h, x.(sourceHead)) }

func (h *sourceHeap) Pop() any {
	old := *h
	n := len(old)
	head := old[n-1]
	*h = old[:n-1]
	return head
}
