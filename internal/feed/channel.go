// Package feed implements the event streaming core: the bounded,
// timeframe-aware EventChannel, the Feed producer contract, the multi-source
// merge operator and the window aggregators.
//
// Thread safety:
//   - An EventChannel is shared between exactly one producer task and one
//     consumer task; its internal queue is the only state touched by both.
//   - Closing a channel is the sole cancellation signal; any task blocked on
//     Send or Receive wakes with ErrChannelClosed instead of hanging.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"marketfeed/internal/model"
)

// Errors returned by EventChannel operations.
var (
	// ErrChannelClosed signals normal end-of-stream. Every loop reading from
	// a channel must match it with errors.Is and exit cleanly; it is never a
	// fault.
	ErrChannelClosed = errors.New("event channel closed")

	// ErrChannelFull is returned by TrySend under the suspend policy when
	// the queue is at capacity.
	ErrChannelFull = errors.New("event channel full")

	// ErrInvalidConfig indicates that a channel or feed configuration
	// contains invalid values.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// OverflowPolicy selects what Send/TrySend do when the queue is at capacity.
type OverflowPolicy int

const (
	// OverflowSuspend blocks the producer until the consumer drains an event
	// or the channel closes. No data is lost.
	OverflowSuspend OverflowPolicy = iota

	// OverflowDropOldest evicts the single oldest queued event to make room
	// for the newest one. Used by live sources where freshness beats
	// completeness.
	OverflowDropOldest
)

// ChannelConfig holds the construction parameters of an EventChannel.
type ChannelConfig struct {
	// Capacity is the queue depth. Must be positive.
	Capacity int

	// Timeframe clips the stream: events before its start are discarded,
	// an event at or past its end closes the channel. The zero value means
	// unbounded.
	Timeframe model.Timeframe

	// Policy selects the overflow behavior. Defaults to OverflowSuspend.
	Policy OverflowPolicy
}

// EventChannel decouples one producer task from one consumer task with
// bounded memory and time-window enforcement.
//
// A channel is created open and transitions once, irreversibly, to closed.
// Closing releases any blocked producer or consumer and is idempotent.
// Events delivered on a channel are non-decreasing in time; this is an
// obligation of the producer contract, not re-checked per send.
type EventChannel struct {
	cfg ChannelConfig

	// events is the bounded internal queue. It is never closed; lifecycle
	// is signalled through done so that a send can never panic.
	events chan model.Event

	// done is closed exactly once when the channel closes.
	done chan struct{}

	closeOnce sync.Once

	// evictMu serializes the evict-then-send step of the drop-oldest policy.
	evictMu sync.Mutex
}

// NewEventChannel creates an open channel with the given configuration.
//
// Invalid configuration is rejected eagerly so that misuse is never
// discovered mid-stream.
func NewEventChannel(cfg ChannelConfig) (*EventChannel, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, cfg.Capacity)
	}
	if cfg.Timeframe.IsZero() {
		cfg.Timeframe = model.InfiniteTimeframe()
	}
	return &EventChannel{
		cfg:    cfg,
		events: make(chan model.Event, cfg.Capacity),
		done:   make(chan struct{}),
	}, nil
}

// Timeframe returns the channel's configured time window.
func (c *EventChannel) Timeframe() model.Timeframe { return c.cfg.Timeframe }

// Capacity returns the channel's queue depth.
func (c *EventChannel) Capacity() int { return c.cfg.Capacity }

// Clone produces a new, open channel with the same capacity, timeframe and
// overflow policy. No queued events are copied. Merge stages use this to
// derive one private channel per upstream producer.
func (c *EventChannel) Clone() *EventChannel {
	clone, _ := NewEventChannel(c.cfg) // cfg was validated at construction
	return clone
}

// admit applies the timeframe rule to an outgoing event.
//
// It returns (false, nil) when the event is before the window and must be
// silently discarded, and (false, ErrChannelClosed) when the event is at or
// past the window's end, in which case the channel has been closed.
func (c *EventChannel) admit(event model.Event) (bool, error) {
	if event.Time.Before(c.cfg.Timeframe.Start) {
		return false, nil
	}
	if !c.cfg.Timeframe.Contains(event.Time) {
		c.Close()
		return false, ErrChannelClosed
	}
	return true, nil
}

// Send delivers an event, suspending the caller while the queue is at
// capacity until the consumer drains, the channel closes or ctx is
// cancelled.
//
// Events before the channel's timeframe are silently discarded; an event at
// or past its end closes the channel and returns ErrChannelClosed.
func (c *EventChannel) Send(ctx context.Context, event model.Event) error {
	ok, err := c.admit(event)
	if !ok {
		return err
	}

	// Fail fast when already closed, before attempting to enqueue.
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	select {
	case c.events <- event:
		return nil
	case <-c.done:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendIfNotEmpty delivers the event unless it is a heartbeat, skipping the
// transport of empty events entirely.
func (c *EventChannel) SendIfNotEmpty(ctx context.Context, event model.Event) error {
	if event.Empty() {
		return nil
	}
	return c.Send(ctx, event)
}

// TrySend delivers an event without ever suspending the caller.
//
// Under the suspend policy a full queue yields ErrChannelFull. Under the
// drop-oldest policy the single oldest queued event is evicted to make room,
// so the call always succeeds on an open channel.
func (c *EventChannel) TrySend(event model.Event) error {
	ok, err := c.admit(event)
	if !ok {
		return err
	}

	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	select {
	case c.events <- event:
		return nil
	default:
	}

	if c.cfg.Policy != OverflowDropOldest {
		return ErrChannelFull
	}

	c.evictMu.Lock()
	defer c.evictMu.Unlock()

	// Evict the oldest queued event, then retry. The consumer may have
	// drained concurrently, in which case the eviction is a no-op.
	select {
	case <-c.events:
	default:
	}
	select {
	case c.events <- event:
		return nil
	default:
		// Only reachable when another producer raced us in; the newest
		// event wins and this one is dropped.
		return nil
	}
}

// Receive dequeues the next event, suspending until one is available, the
// channel is closed and drained, or ctx is cancelled.
//
// Once the channel is closed every remaining queued event is still
// delivered; after the queue drains Receive returns ErrChannelClosed.
func (c *EventChannel) Receive(ctx context.Context) (model.Event, error) {
	// Drain queued events first, even after closure.
	select {
	case event := <-c.events:
		return event, nil
	default:
	}

	select {
	case event := <-c.events:
		return event, nil
	case <-ctx.Done():
		return model.Event{}, ctx.Err()
	case <-c.done:
		// The close signal may have won the race against a queued event;
		// give the queue one final look before reporting end-of-stream.
		select {
		case event := <-c.events:
			return event, nil
		default:
			return model.Event{}, ErrChannelClosed
		}
	}
}

// ReceiveTimeout behaves like Receive but waits at most timeout.
//
// When no event arrives in time it synthesizes an empty heartbeat event
// stamped with the current time, unless the current time is already past the
// channel's timeframe end, in which case the channel is closed and
// ErrChannelClosed is returned instead.
func (c *EventChannel) ReceiveTimeout(ctx context.Context, timeout time.Duration) (model.Event, error) {
	select {
	case event := <-c.events:
		return event, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case event := <-c.events:
		return event, nil
	case <-ctx.Done():
		return model.Event{}, ctx.Err()
	case <-c.done:
		select {
		case event := <-c.events:
			return event, nil
		default:
			return model.Event{}, ErrChannelClosed
		}
	case <-timer.C:
		now := time.Now()
		if c.cfg.Timeframe.Compare(now) < 0 {
			// The window has elapsed; no further events can arrive.
			c.Close()
			return model.Event{}, ErrChannelClosed
		}
		return model.EmptyEvent(now), nil
	}
}

// Close marks the channel closed, releasing any producer or consumer blocked
// on it and waking every task waiting in WaitOnClose. It is idempotent and
// safe to call from any task.
func (c *EventChannel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Done returns a channel that is closed when the EventChannel closes,
// usable directly in select statements.
func (c *EventChannel) Done() <-chan struct{} { return c.done }

// Closed reports whether the channel has been closed.
func (c *EventChannel) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// WaitOnClose suspends the caller until the channel is closed or ctx is
// cancelled. It returns immediately when the channel is already closed.
func (c *EventChannel) WaitOnClose(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
