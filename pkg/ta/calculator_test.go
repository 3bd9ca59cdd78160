package ta

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketfeed/internal/model"
)

func bar(close float64) model.PriceBar {
	return model.PriceBar{
		Symbol: "BTC-USDT",
		Open:   close,
		High:   close + 1,
		Low:    close - 1,
		Close:  close,
		Vol:    100,
		Span:   time.Minute,
	}
}

func Test_Calculator_NotReady(t *testing.T) {
	calc := NewCalculator(Config{SMAPeriod: 3, RSIPeriod: 2, ATRPeriod: 2})

	_, err := calc.Latest("BTC-USDT")
	assert.Error(t, err, "unknown asset has no snapshot")

	calc.Update(bar(100))
	calc.Update(bar(101))

	_, err = calc.Latest("BTC-USDT")
	assert.Error(t, err, "two bars are below the minimum history")
	assert.Equal(t, 2, calc.HistoryLen("BTC-USDT"))
}

func Test_Calculator_SMA(t *testing.T) {
	calc := NewCalculator(Config{SMAPeriod: 3, RSIPeriod: 2, ATRPeriod: 2})

	for _, close := range []float64{100, 102, 104, 106} {
		calc.Update(bar(close))
	}

	snapshot, err := calc.Latest("BTC-USDT")
	require.NoError(t, err)
	assert.InDelta(t, (102.0+104.0+106.0)/3.0, snapshot.SMA, 1e-9)
}

func Test_Calculator_RSIBounds(t *testing.T) {
	calc := NewCalculator(Config{SMAPeriod: 3, RSIPeriod: 3, ATRPeriod: 3})

	// Strictly rising closes push RSI to its upper extreme.
	for close := 100.0; close < 120; close++ {
		calc.Update(bar(close))
	}

	snapshot, err := calc.Latest("BTC-USDT")
	require.NoError(t, err)
	assert.Greater(t, snapshot.RSI, 50.0)
	assert.LessOrEqual(t, snapshot.RSI, 100.0)
	assert.Positive(t, snapshot.ATR)
}

func Test_Calculator_Bands(t *testing.T) {
	calc := NewCalculator(Config{SMAPeriod: 5, RSIPeriod: 4, ATRPeriod: 4})

	for _, close := range []float64{100, 103, 99, 104, 101, 102, 98, 105} {
		calc.Update(bar(close))
	}

	snapshot, err := calc.Latest("BTC-USDT")
	require.NoError(t, err)
	assert.Greater(t, snapshot.BandUp, snapshot.SMA)
	assert.Less(t, snapshot.BandDown, snapshot.SMA)
}

func Test_Calculator_PerAsset(t *testing.T) {
	calc := NewCalculator(Config{SMAPeriod: 2, RSIPeriod: 2, ATRPeriod: 2})

	calc.Update(bar(100))
	eth := bar(2000)
	eth.Symbol = "ETH-USDT"
	calc.Update(eth)

	assert.Equal(t, 1, calc.HistoryLen("BTC-USDT"))
	assert.Equal(t, 1, calc.HistoryLen("ETH-USDT"))
	assert.Equal(t, 0, calc.HistoryLen("SOL-USDT"))
}

func Test_Calculator_RollingWindow(t *testing.T) {
	calc := NewCalculator(Config{SMAPeriod: 2, RSIPeriod: 2, ATRPeriod: 2, MaxHistory: 5})

	for close := 100.0; close < 120; close++ {
		calc.Update(bar(close))
	}

	assert.Equal(t, 5, calc.HistoryLen("BTC-USDT"), "history is capped at the configured length")

	snapshot, err := calc.Latest("BTC-USDT")
	require.NoError(t, err)
	assert.InDelta(t, (118.0+119.0)/2.0, snapshot.SMA, 1e-9)
}
