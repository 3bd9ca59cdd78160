// Package service provides the orchestration layer of the streaming engine:
// the Session that wires a feed through optional aggregation into the
// dispatcher, and the Dispatcher that fans completed events out to
// subscribers.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"marketfeed/internal/model"
	"marketfeed/internal/utils"
)

// Subscriber represents a client subscription to specific assets.
//
// Each subscriber owns a buffered channel for event delivery and a set of
// assets it is interested in for efficient filtering.
type Subscriber struct {
	id     int64
	ch     chan model.Event
	assets map[string]struct{}
}

// C returns the channel delivering this subscriber's events. The channel is
// closed on unsubscribe and on dispatcher shutdown.
func (s *Subscriber) C() <-chan model.Event { return s.ch }

// DispatcherConfig holds configuration parameters for the Dispatcher.
type DispatcherConfig struct {
	// MaxAssetsAllowed caps assets per subscription to prevent resource
	// abuse.
	MaxAssetsAllowed int

	// SubscriberBuffer is the per-subscriber queue depth. Defaults to 100.
	SubscriberBuffer int
}

// Dispatcher implements fan-out distribution of events to subscribers.
//
// A single goroutine owns the subscribers map (actor model), so no mutex is
// needed: subscription and unsubscription requests arrive through channels,
// as do the events to distribute. Slow subscribers lose their oldest
// buffered event rather than stalling the stream.
type Dispatcher struct {
	cfg              DispatcherConfig
	subscribers      map[int64]*Subscriber
	subscriptionCh   chan *Subscriber
	unsubscriptionCh chan *Subscriber
	started          atomic.Bool
	randIDGen        *rand.Rand
}

// NewDispatcher creates a Dispatcher with the provided configuration.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 100
	}
	return &Dispatcher{
		cfg:              cfg,
		subscribers:      make(map[int64]*Subscriber),
		subscriptionCh:   make(chan *Subscriber, 10),
		unsubscriptionCh: make(chan *Subscriber, 10),
		randIDGen:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Subscribe creates a new subscription for the specified assets.
//
// The request is handed to the dispatch goroutine via a channel so the
// subscribers map is only ever touched by one task.
func (d *Dispatcher) Subscribe(assets []string) (*Subscriber, error) {
	if !d.started.Load() {
		return nil, errors.New("dispatcher not started")
	}
	if err := utils.ValidateAssets(assets, d.cfg.MaxAssetsAllowed); err != nil {
		return nil, err
	}

	assetSet := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		assetSet[a] = struct{}{}
	}

	sub := &Subscriber{
		id:     d.randIDGen.Int63(),
		ch:     make(chan model.Event, d.cfg.SubscriberBuffer),
		assets: assetSet,
	}

	select {
	case d.subscriptionCh <- sub:
	default:
		return nil, fmt.Errorf("subscription channel is full")
	}
	return sub, nil
}

// Unsubscribe removes a subscriber from the dispatcher.
func (d *Dispatcher) Unsubscribe(sub *Subscriber) error {
	select {
	case d.unsubscriptionCh <- sub:
		return nil
	default:
		return fmt.Errorf("unsubscription channel is full")
	}
}

// StartDispatching starts the dispatch goroutine consuming events from
// input until ctx is cancelled or input is closed.
func (d *Dispatcher) StartDispatching(ctx context.Context, input <-chan model.Event) error {
	if !d.started.CompareAndSwap(false, true) {
		return errors.New("dispatcher already started")
	}

	go func() {
		defer func() {
			for _, sub := range d.subscribers {
				close(sub.ch)
			}
			d.subscribers = make(map[int64]*Subscriber)
			d.started.Store(false)
		}()

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("dispatcher stopped")
				return
			case sub := <-d.subscriptionCh:
				d.subscribers[sub.id] = sub
			case sub := <-d.unsubscriptionCh:
				if _, ok := d.subscribers[sub.id]; ok {
					delete(d.subscribers, sub.id)
					close(sub.ch)
				}
			case event, ok := <-input:
				if !ok {
					log.Info().Msg("dispatcher input drained")
					return
				}
				d.dispatch(event)
			}
		}
	}()
	return nil
}

// dispatch distributes one event to every interested subscriber.
//
// Called only from the dispatch goroutine. A subscriber receives the event
// when it carries a price item for at least one subscribed asset; if the
// subscriber's buffer is full, the oldest buffered event is dropped so the
// newest is always delivered.
func (d *Dispatcher) dispatch(event model.Event) {
	prices := event.Prices()
	for _, sub := range d.subscribers {
		interested := false
		for asset := range prices {
			if _, ok := sub.assets[asset]; ok {
				interested = true
				break
			}
		}
		if !interested {
			continue
		}

		select {
		case sub.ch <- event:
		default:
			log.Debug().Int64("subscriber", sub.id).Msg("subscriber too slow, dropping oldest buffered event")
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- event:
			default:
			}
		}
	}
}
