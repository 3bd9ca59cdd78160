// Package ta computes technical indicators over rolling buffers of
// aggregated price bars.
//
// The calculator is a pure downstream consumer of the event stream: it never
// touches channels or feeds, it is fed completed bars and answers indicator
// queries over the accumulated history.
package ta

import (
	"fmt"
	"sync"

	"github.com/markcheno/go-talib"

	"marketfeed/internal/model"
)

// defaultMaxHistory caps the per-asset rolling buffer length.
const defaultMaxHistory = 500

// Snapshot holds the most recent indicator values for one asset.
type Snapshot struct {
	SMA      float64 // Simple moving average over SMAPeriod bars
	RSI      float64 // Relative strength index over RSIPeriod bars
	ATR      float64 // Average true range over ATRPeriod bars
	BandUp   float64 // Upper Bollinger band
	BandDown float64 // Lower Bollinger band
}

// Config holds the indicator periods of a Calculator.
type Config struct {
	SMAPeriod  int // Defaults to 20
	RSIPeriod  int // Defaults to 14
	ATRPeriod  int // Defaults to 14
	MaxHistory int // Rolling buffer cap, defaults to 500
}

// history is the per-asset rolling price buffer.
type history struct {
	high, low, close []float64
	snapshot         Snapshot
	ready            bool
}

// Calculator maintains per-asset bar history and recomputes indicators on
// every update. Safe for concurrent use.
type Calculator struct {
	mu      sync.RWMutex
	cfg     Config
	minimum int
	assets  map[string]*history
}

// NewCalculator creates a calculator with defaults applied for unset
// periods.
func NewCalculator(cfg Config) *Calculator {
	if cfg.SMAPeriod <= 0 {
		cfg.SMAPeriod = 20
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = 14
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = 14
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = defaultMaxHistory
	}

	minimum := cfg.SMAPeriod
	if cfg.RSIPeriod+1 > minimum {
		minimum = cfg.RSIPeriod + 1
	}
	if cfg.ATRPeriod+1 > minimum {
		minimum = cfg.ATRPeriod + 1
	}

	return &Calculator{
		cfg:     cfg,
		minimum: minimum,
		assets:  make(map[string]*history),
	}
}

// Update appends one completed bar to its asset's history and recomputes the
// indicator snapshot once enough history has accumulated.
func (c *Calculator) Update(bar model.PriceBar) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.assets[bar.Symbol]
	if !ok {
		h = &history{}
		c.assets[bar.Symbol] = h
	}

	h.high = append(h.high, bar.High)
	h.low = append(h.low, bar.Low)
	h.close = append(h.close, bar.Close)

	if n := len(h.close); n > c.cfg.MaxHistory {
		h.high = h.high[n-c.cfg.MaxHistory:]
		h.low = h.low[n-c.cfg.MaxHistory:]
		h.close = h.close[n-c.cfg.MaxHistory:]
	}

	if len(h.close) < c.minimum {
		return
	}

	sma := talib.Sma(h.close, c.cfg.SMAPeriod)
	rsi := talib.Rsi(h.close, c.cfg.RSIPeriod)
	atr := talib.Atr(h.high, h.low, h.close, c.cfg.ATRPeriod)
	up, _, down := talib.BBands(h.close, c.cfg.SMAPeriod, 2, 2, talib.SMA)

	h.snapshot = Snapshot{
		SMA:      sma[len(sma)-1],
		RSI:      rsi[len(rsi)-1],
		ATR:      atr[len(atr)-1],
		BandUp:   up[len(up)-1],
		BandDown: down[len(down)-1],
	}
	h.ready = true
}

// Latest returns the current indicator snapshot of an asset. It reports an
// error while the asset's history is still too short.
func (c *Calculator) Latest(asset string) (Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h, ok := c.assets[asset]
	if !ok || !h.ready {
		return Snapshot{}, fmt.Errorf("indicator history too short for %s", asset)
	}
	return h.snapshot, nil
}

// HistoryLen reports how many bars have been accumulated for an asset.
func (c *Calculator) HistoryLen(asset string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if h, ok := c.assets[asset]; ok {
		return len(h.close)
	}
	return 0
}
