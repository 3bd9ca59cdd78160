// Package model defines the core data types for the market event streaming engine.
//
// This package contains the fundamental structures used throughout the system
// for representing timestamped market data: the Item hierarchy carried by
// Events, the price-bearing variants (bars, trades, quotes), and the
// Timeframe used to clip and terminate streams.
//
// The Item hierarchy is a small, closed set of variants behind the PriceItem
// interface; new price representations are added as variants, not as deep
// subclass trees.
package model

import (
	"fmt"
	"math"
	"time"
)

// Price kind selectors accepted by PriceItem.Price.
const (
	// DefaultPrice selects the variant's most representative price.
	DefaultPrice = "DEFAULT"

	// OpenPrice selects the opening price of a bar.
	OpenPrice = "OPEN"

	// HighPrice selects the highest price of a bar.
	HighPrice = "HIGH"

	// LowPrice selects the lowest price of a bar.
	LowPrice = "LOW"

	// ClosePrice selects the closing price of a bar.
	ClosePrice = "CLOSE"

	// TypicalPrice selects (high + low + close) / 3 of a bar.
	TypicalPrice = "TYPICAL"
)

// Item is an opaque unit of information delivered at a point in time.
//
// Items travel inside Events and are owned by exactly one asset. Consumers
// that only care about prices type-assert against PriceItem; all other item
// kinds are passed through (or skipped) untouched.
type Item interface {
	// Asset returns the identifier of the asset this item belongs to
	// (e.g. "BTC-USDT").
	Asset() string
}

// PriceItem is an Item that carries a price observation.
//
// The Price method performs kind-dependent price selection; unrecognized
// kinds fall back to the variant's default price. Volume returns NaN when
// the source has no volume concept.
type PriceItem interface {
	Item

	// Price returns the price of the requested kind.
	Price(kind string) float64

	// Volume returns the traded volume, or NaN if unavailable.
	Volume() float64
}

// PriceBar is an open/high/low/close/volume summary over an interval.
//
// It is both an input to and the output of the window aggregator. Span holds
// the bar duration when known and is zero otherwise.
type PriceBar struct {
	Symbol string        // Owning asset identifier
	Open   float64       // Opening price of the interval
	High   float64       // Highest price of the interval
	Low    float64       // Lowest price of the interval
	Close  float64       // Closing price of the interval
	Vol    float64       // Total volume, NaN if unavailable
	Span   time.Duration // Bar duration, 0 when unknown
}

// Asset implements the Item interface.
func (b PriceBar) Asset() string { return b.Symbol }

// Price implements kind-dependent price selection for bars.
//
// The default price of a bar is its closing price.
func (b PriceBar) Price(kind string) float64 {
	switch kind {
	case OpenPrice:
		return b.Open
	case HighPrice:
		return b.High
	case LowPrice:
		return b.Low
	case TypicalPrice:
		return (b.High + b.Low + b.Close) / 3.0
	default:
		return b.Close
	}
}

// Volume returns the total volume traded during the bar's interval.
func (b PriceBar) Volume() float64 { return b.Vol }

// String returns a compact human-readable representation of the bar.
func (b PriceBar) String() string {
	return fmt.Sprintf("%s OHLCV=%g/%g/%g/%g/%g", b.Symbol, b.Open, b.High, b.Low, b.Close, b.Vol)
}

// TradePrice is a single executed trade, or a plain price snapshot when
// Vol is NaN.
type TradePrice struct {
	Symbol string  // Owning asset identifier
	Value  float64 // Execution price
	Vol    float64 // Traded quantity, NaN if unavailable
}

// Asset implements the Item interface.
func (t TradePrice) Asset() string { return t.Symbol }

// Price returns the execution price regardless of the requested kind.
func (t TradePrice) Price(kind string) float64 { return t.Value }

// Volume returns the traded quantity.
func (t TradePrice) Volume() float64 { return t.Vol }

// PriceQuote is a top-of-book bid/ask observation.
type PriceQuote struct {
	Symbol   string  // Owning asset identifier
	AskPrice float64 // Best ask price
	AskSize  float64 // Size at the best ask
	BidPrice float64 // Best bid price
	BidSize  float64 // Size at the best bid
}

// Asset implements the Item interface.
func (q PriceQuote) Asset() string { return q.Symbol }

// Price returns a kind-dependent quote price. "ASK" and "BID" select the
// respective sides; every other kind, including the default, returns the
// midpoint.
func (q PriceQuote) Price(kind string) float64 {
	switch kind {
	case "ASK":
		return q.AskPrice
	case "BID":
		return q.BidPrice
	default:
		return (q.AskPrice + q.BidPrice) / 2.0
	}
}

// Volume returns the combined size at the top of the book.
func (q PriceQuote) Volume() float64 { return q.AskSize + q.BidSize }

// NaN is a convenience for sources without a volume concept.
func NaN() float64 { return math.NaN() }
