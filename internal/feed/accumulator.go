package feed

import (
	"math"
	"sort"
	"sync"
	"time"

	"marketfeed/internal/model"
)

// accumulator maintains the per-asset OHLCV state of the bucket currently
// being built, plus the single expiration instant shared by all assets.
//
// The historic aggregator touches it from one task only; the live aggregator
// mutates it from both the ingestion task and the timer task, so every
// merge-in and every flush-and-clear runs under the mutex as one atomic
// step.
type accumulator struct {
	mu         sync.Mutex
	period     time.Duration
	expiration time.Time
	bars       map[string]*model.PriceBar
}

func newAccumulator(period time.Duration) *accumulator {
	return &accumulator{
		period: period,
		bars:   make(map[string]*model.PriceBar),
	}
}

// observe merges one price item into the asset's bucket state.
//
// PriceBars pass through with full OHLC information; single trade prices and
// quote midpoints are synthesized into degenerate zero-range bars first.
func (acc *accumulator) observe(item model.PriceItem) {
	var contribution model.PriceBar
	switch v := item.(type) {
	case model.PriceBar:
		contribution = v
	default:
		price := item.Price(model.DefaultPrice)
		contribution = model.PriceBar{
			Symbol: item.Asset(),
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Vol:    item.Volume(),
		}
	}

	current, found := acc.bars[contribution.Symbol]
	if !found {
		bar := contribution
		bar.Span = acc.period
		acc.bars[bar.Symbol] = &bar
		return
	}

	// Open stays at the bucket's first contribution; close tracks the last.
	current.High = math.Max(current.High, contribution.High)
	current.Low = math.Min(current.Low, contribution.Low)
	current.Close = contribution.Close
	current.Vol += contribution.Vol
}

// flush drains the accumulated bars into one event stamped at the given
// instant and clears the state. It returns a heartbeat-free empty event when
// nothing was accumulated; callers use Event.Empty to decide whether to
// forward it.
//
// With forwardFill set, each asset's state is re-seeded with a degenerate
// bar at its previous close so that downstream indicators see continuous
// bars through idle periods. The seeded volume is zero, or NaN when the
// flushed bar had no volume concept.
func (acc *accumulator) flush(at time.Time, forwardFill bool) model.Event {
	if len(acc.bars) == 0 {
		return model.EmptyEvent(at)
	}

	items := make([]model.Item, 0, len(acc.bars))
	for _, bar := range acc.bars {
		items = append(items, *bar)
	}
	// Deterministic item order keeps merged streams reproducible.
	sort.Slice(items, func(i, j int) bool {
		return items[i].Asset() < items[j].Asset()
	})

	if forwardFill {
		for asset, bar := range acc.bars {
			volume := 0.0
			if math.IsNaN(bar.Vol) {
				volume = math.NaN()
			}
			acc.bars[asset] = &model.PriceBar{
				Symbol: asset,
				Open:   bar.Close,
				High:   bar.Close,
				Low:    bar.Close,
				Close:  bar.Close,
				Vol:    volume,
				Span:   acc.period,
			}
		}
	} else {
		acc.bars = make(map[string]*model.PriceBar)
	}

	return model.NewEvent(at, items...)
}

// pending reports whether a bucket is currently open with data in it.
func (acc *accumulator) pending() bool {
	return !acc.expiration.IsZero() && len(acc.bars) > 0
}
