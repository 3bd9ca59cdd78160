package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"marketfeed/internal/feed"
	"marketfeed/internal/model"
)

// EventDistributor manages client subscriptions and fans events out to them.
type EventDistributor interface {
	// Subscribe creates a new subscription for the specified assets.
	Subscribe(assets []string) (*Subscriber, error)

	// Unsubscribe removes a subscriber and releases its resources.
	Unsubscribe(sub *Subscriber) error

	// StartDispatching begins distributing events from input.
	StartDispatching(ctx context.Context, input <-chan model.Event) error
}

// SessionConfig holds the construction parameters of a Session.
type SessionConfig struct {
	// ChannelCapacity is the queue depth of the session's event channel.
	// Defaults to 100.
	ChannelCapacity int

	// Timeframe clips the whole session. Zero means unbounded.
	Timeframe model.Timeframe

	// AggregationPeriod, when positive, re-windows the stream into buckets
	// of that width before distribution. Zero passes raw events through.
	AggregationPeriod time.Duration

	// Live selects the wall-clock driven aggregator so that bars are
	// delivered punctually even when the source idles.
	Live bool
}

// Session wires one feed, an optional window aggregator and a distributor
// into a running pipeline.
//
// The session owns the pipeline lifecycle: Start spins up the producer and
// bridge tasks, Stop cancels them and a session cannot be started twice
// concurrently.
type Session struct {
	cfg         SessionConfig
	source      feed.Feed
	distributor EventDistributor
	started     atomic.Bool
	cancel      context.CancelFunc
}

// NewSession creates a stopped session over the given source and
// distributor.
func NewSession(source feed.Feed, distributor EventDistributor, cfg SessionConfig) (*Session, error) {
	if cfg.ChannelCapacity == 0 {
		cfg.ChannelCapacity = 100
	}
	if cfg.ChannelCapacity < 0 {
		return nil, fmt.Errorf("%w: channel capacity must be positive, got %d",
			feed.ErrInvalidConfig, cfg.ChannelCapacity)
	}
	if cfg.AggregationPeriod < 0 {
		return nil, fmt.Errorf("%w: aggregation period must be positive, got %s",
			feed.ErrInvalidConfig, cfg.AggregationPeriod)
	}
	return &Session{cfg: cfg, source: source, distributor: distributor}, nil
}

// Start launches the pipeline. The feed begins playing in the background and
// events flow to the distributor until Stop is called, the context is
// cancelled or the feed completes.
func (s *Session) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("session already started")
	}

	ctx, cancel := context.WithCancel(ctx)

	source := s.source
	if s.cfg.AggregationPeriod > 0 {
		var err error
		source, err = s.wrapAggregator()
		if err != nil {
			cancel()
			s.started.Store(false)
			return err
		}
	}

	channel, _, err := feed.PlayBackground(ctx, source, feed.ChannelConfig{
		Capacity:  s.cfg.ChannelCapacity,
		Timeframe: s.cfg.Timeframe,
	})
	if err != nil {
		cancel()
		s.started.Store(false)
		return err
	}

	// Bridge the event channel into the plain Go channel the distributor
	// consumes; closing propagates by closing the bridge.
	bridge := make(chan model.Event, s.cfg.ChannelCapacity)
	go func() {
		defer close(bridge)
		for {
			event, err := channel.Receive(ctx)
			if err != nil {
				if !errors.Is(err, feed.ErrChannelClosed) && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("session receive failed")
				}
				return
			}
			select {
			case bridge <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := s.distributor.StartDispatching(ctx, bridge); err != nil {
		cancel()
		channel.Close()
		s.started.Store(false)
		return fmt.Errorf("failed to start dispatching: %w", err)
	}

	s.cancel = cancel
	log.Info().Dur("aggregation", s.cfg.AggregationPeriod).Bool("live", s.cfg.Live).Msg("session started")
	return nil
}

// wrapAggregator wraps the source feed in the configured aggregator variant.
func (s *Session) wrapAggregator() (feed.Feed, error) {
	if s.cfg.Live {
		agg, err := feed.NewAggregatorLiveFeed(s.source, feed.LiveAggregatorConfig{
			Period:          s.cfg.AggregationPeriod,
			ChannelCapacity: s.cfg.ChannelCapacity,
		})
		if err != nil {
			return nil, err
		}
		return agg, nil
	}
	agg, err := feed.NewAggregatorFeed(s.source, feed.AggregatorConfig{
		Period:          s.cfg.AggregationPeriod,
		ChannelCapacity: s.cfg.ChannelCapacity,
	})
	if err != nil {
		return nil, err
	}
	return agg, nil
}

// Stop cancels the pipeline. The source feed is released; consumers observe
// closed subscriber channels.
func (s *Session) Stop() error {
	if !s.started.CompareAndSwap(true, false) {
		return errors.New("session not started")
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if err := s.source.Close(); err != nil {
		return err
	}
	log.Info().Msg("session stopped")
	return nil
}
