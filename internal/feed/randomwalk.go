package feed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"marketfeed/internal/model"
)

// RandomWalkConfig holds the construction parameters of a RandomWalkFeed.
type RandomWalkConfig struct {
	// Assets lists the symbols to generate bars for. Must be non-empty.
	Assets []string

	// Timeframe bounds the generated stream. Must be a finite, non-zero
	// interval.
	Timeframe model.Timeframe

	// Interval is the spacing between consecutive events. Defaults to one
	// minute.
	Interval time.Duration

	// StartPrice is the initial price of every asset. Defaults to 100.
	StartPrice float64

	// Volatility is the standard deviation of the per-step relative price
	// change. Defaults to 0.01.
	Volatility float64

	// Seed makes the walk reproducible. Zero selects a time-based seed.
	Seed int64
}

// RandomWalkFeed generates synthetic OHLCV bars following a geometric
// random walk, one event per interval carrying one bar per asset.
//
// It is a historic feed: events are stamped with simulated time and emitted
// as fast as the consumer drains them, which makes it useful for back-tests
// and for exercising the merge and aggregation operators in tests.
type RandomWalkFeed struct {
	cfg RandomWalkConfig
}

// NewRandomWalkFeed creates a generator for the given configuration.
func NewRandomWalkFeed(cfg RandomWalkConfig) (*RandomWalkFeed, error) {
	if len(cfg.Assets) == 0 {
		return nil, fmt.Errorf("%w: at least one asset required", ErrInvalidConfig)
	}
	if cfg.Timeframe.IsZero() || cfg.Timeframe.Duration() <= 0 {
		return nil, fmt.Errorf("%w: a finite timeframe is required", ErrInvalidConfig)
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidConfig, cfg.Interval)
	}
	if cfg.StartPrice == 0 {
		cfg.StartPrice = 100
	}
	if cfg.Volatility == 0 {
		cfg.Volatility = 0.01
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &RandomWalkFeed{cfg: cfg}, nil
}

// Timeframe returns the configured span of the walk.
func (rw *RandomWalkFeed) Timeframe() model.Timeframe { return rw.cfg.Timeframe }

// Assets returns the configured asset universe.
func (rw *RandomWalkFeed) Assets() []string { return rw.cfg.Assets }

// Play generates bars in strict chronological order until the timeframe is
// exhausted or the channel closes.
func (rw *RandomWalkFeed) Play(ctx context.Context, channel *EventChannel) error {
	rng := rand.New(rand.NewSource(rw.cfg.Seed))

	prices := make(map[string]float64, len(rw.cfg.Assets))
	for _, asset := range rw.cfg.Assets {
		prices[asset] = rw.cfg.StartPrice
	}

	for t := rw.cfg.Timeframe.Start; rw.cfg.Timeframe.Contains(t); t = t.Add(rw.cfg.Interval) {
		items := make([]model.Item, 0, len(rw.cfg.Assets))
		for _, asset := range rw.cfg.Assets {
			open := prices[asset]
			next := open * (1 + rng.NormFloat64()*rw.cfg.Volatility)
			spread := math.Abs(rng.NormFloat64()) * rw.cfg.Volatility * open

			items = append(items, model.PriceBar{
				Symbol: asset,
				Open:   open,
				High:   math.Max(open, next) + spread,
				Low:    math.Min(open, next) - spread,
				Close:  next,
				Vol:    float64(rng.Intn(900) + 100),
				Span:   rw.cfg.Interval,
			})
			prices[asset] = next
		}

		if err := channel.Send(ctx, model.NewEvent(t, items...)); err != nil {
			if errors.Is(err, ErrChannelClosed) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Close implements the Feed interface; a generator holds no resources.
func (rw *RandomWalkFeed) Close() error { return nil }
