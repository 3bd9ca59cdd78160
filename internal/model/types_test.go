package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_PriceBar_Price(t *testing.T) {
	bar := PriceBar{Symbol: "BTC-USDT", Open: 10, High: 12, Low: 9, Close: 11, Vol: 100}

	tests := []struct {
		name string
		kind string
		want float64
	}{
		{name: "default selects close", kind: DefaultPrice, want: 11},
		{name: "open", kind: OpenPrice, want: 10},
		{name: "high", kind: HighPrice, want: 12},
		{name: "low", kind: LowPrice, want: 9},
		{name: "close", kind: ClosePrice, want: 11},
		{name: "typical averages high low close", kind: TypicalPrice, want: (12 + 9 + 11) / 3.0},
		{name: "unknown kind falls back to close", kind: "VWAP", want: 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, bar.Price(tt.kind), 1e-9)
		})
	}
}

func Test_TradePrice(t *testing.T) {
	trade := TradePrice{Symbol: "ETH-USDT", Value: 2000, Vol: 0.5}

	assert.Equal(t, "ETH-USDT", trade.Asset())
	assert.Equal(t, 2000.0, trade.Price(DefaultPrice))
	assert.Equal(t, 2000.0, trade.Price(HighPrice), "every kind selects the execution price")
	assert.Equal(t, 0.5, trade.Volume())

	snapshot := TradePrice{Symbol: "ETH-USDT", Value: 2000, Vol: NaN()}
	assert.True(t, math.IsNaN(snapshot.Volume()), "price snapshots have no volume")
}

func Test_PriceQuote_Price(t *testing.T) {
	quote := PriceQuote{Symbol: "BTC-USDT", AskPrice: 101, AskSize: 2, BidPrice: 99, BidSize: 3}

	assert.Equal(t, 100.0, quote.Price(DefaultPrice), "default is the midpoint")
	assert.Equal(t, 101.0, quote.Price("ASK"))
	assert.Equal(t, 99.0, quote.Price("BID"))
	assert.Equal(t, 5.0, quote.Volume())
}

func Test_Event_Prices_LastWins(t *testing.T) {
	now := time.Now()
	event := NewEvent(now,
		TradePrice{Symbol: "BTC-USDT", Value: 100},
		TradePrice{Symbol: "ETH-USDT", Value: 2000},
		TradePrice{Symbol: "BTC-USDT", Value: 101},
	)

	prices := event.Prices()
	require.Len(t, prices, 2)
	assert.Equal(t, 101.0, prices["BTC-USDT"].Price(DefaultPrice), "later item for the same asset wins")
	assert.Equal(t, 2000.0, prices["ETH-USDT"].Price(DefaultPrice))

	price, ok := event.Price("BTC-USDT")
	require.True(t, ok)
	assert.Equal(t, 101.0, price)

	_, ok = event.Price("SOL-USDT")
	assert.False(t, ok)
}

func Test_Event_Empty(t *testing.T) {
	now := time.Now()

	assert.True(t, EmptyEvent(now).Empty())
	assert.False(t, NewEvent(now, TradePrice{Symbol: "BTC-USDT", Value: 1}).Empty())
}

func Test_Event_Compare(t *testing.T) {
	base := time.Now()
	earlier := NewEvent(base)
	later := NewEvent(base.Add(time.Second))

	assert.Negative(t, earlier.Compare(later))
	assert.Positive(t, later.Compare(earlier))
	assert.Zero(t, earlier.Compare(NewEvent(base)))
}
