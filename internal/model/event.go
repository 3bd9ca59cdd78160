package model

import (
	"fmt"
	"time"
)

// Event is an immutable pair of a timestamp and an ordered list of Items,
// delivered atomically to consumers.
//
// Events are the unit of transport throughout the engine. An Event with an
// empty item list is a heartbeat: it carries no data but keeps consumers
// informed that the stream is alive.
//
// Consumers must treat the item list as a read-only snapshot and must not
// retain references to it beyond processing.
type Event struct {
	Time  time.Time // Instant the items were observed
	Items []Item    // Ordered payload, may be empty (heartbeat)
}

// NewEvent creates an Event at the given time carrying the given items.
func NewEvent(t time.Time, items ...Item) Event {
	return Event{Time: t, Items: items}
}

// EmptyEvent creates a heartbeat Event at the given time.
func EmptyEvent(t time.Time) Event {
	return Event{Time: t}
}

// Empty reports whether the event carries no items.
func (e Event) Empty() bool { return len(e.Items) == 0 }

// Compare orders events chronologically. It returns a negative number when
// e precedes other, zero when they share the same instant and a positive
// number otherwise.
func (e Event) Compare(other Event) int {
	return e.Time.Compare(other.Time)
}

// Prices returns the last known PriceItem per asset in this event.
//
// When the item list contains several price items for the same asset, the
// later one wins, matching the ordered nature of the list.
func (e Event) Prices() map[string]PriceItem {
	result := make(map[string]PriceItem, len(e.Items))
	for _, item := range e.Items {
		if pi, ok := item.(PriceItem); ok {
			result[pi.Asset()] = pi
		}
	}
	return result
}

// Price returns the default-kind price of the given asset, or false when the
// event carries no price item for it.
func (e Event) Price(asset string) (float64, bool) {
	var found PriceItem
	for _, item := range e.Items {
		if pi, ok := item.(PriceItem); ok && pi.Asset() == asset {
			found = pi
		}
	}
	if found == nil {
		return 0, false
	}
	return found.Price(DefaultPrice), true
}

// String returns a short description useful in logs.
func (e Event) String() string {
	return fmt.Sprintf("event time=%s items=%d", e.Time.Format(time.RFC3339Nano), len(e.Items))
}
