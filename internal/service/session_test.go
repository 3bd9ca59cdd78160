package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketfeed/internal/feed"
	"marketfeed/internal/model"
)

// startSession wires a LiveFeed through a Session into a fresh dispatcher.
// The live source gates event flow, so tests can subscribe before any event
// is produced.
func startSession(t *testing.T, cfg SessionConfig) (*feed.LiveFeed, *Session, *Dispatcher) {
	t.Helper()

	lf := feed.NewLiveFeed()
	d := NewDispatcher(DispatcherConfig{MaxAssetsAllowed: 10})

	session, err := NewSession(lf, d, cfg)
	require.NoError(t, err)
	require.NoError(t, session.Start(context.Background()))
	t.Cleanup(func() { _ = session.Stop() })

	require.Eventually(t, func() bool { return lf.ActiveChannels() == 1 },
		time.Second, 5*time.Millisecond, "session never subscribed to the source feed")

	return lf, session, d
}

func Test_NewSession_InvalidConfig(t *testing.T) {
	lf := feed.NewLiveFeed()
	d := NewDispatcher(DispatcherConfig{})

	_, err := NewSession(lf, d, SessionConfig{ChannelCapacity: -1})
	assert.ErrorIs(t, err, feed.ErrInvalidConfig)

	_, err = NewSession(lf, d, SessionConfig{AggregationPeriod: -time.Minute})
	assert.ErrorIs(t, err, feed.ErrInvalidConfig)
}

func Test_Session_Passthrough(t *testing.T) {
	lf, _, d := startSession(t, SessionConfig{})

	sub := subscribe(t, d, "BTC-USDT")

	at := time.Now()
	lf.Put(model.NewEvent(at, model.TradePrice{Symbol: "BTC-USDT", Value: 50000, Vol: 1}))

	select {
	case event := <-sub.C():
		assert.True(t, event.Time.Equal(at), "raw events pass through unmodified")
		price, ok := event.Price("BTC-USDT")
		require.True(t, ok)
		assert.Equal(t, 50000.0, price)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}
}

func Test_Session_Aggregated(t *testing.T) {
	// Event-time driven aggregation: the second trade crosses the minute
	// boundary and flushes the first bucket as a single bar.
	lf, _, d := startSession(t, SessionConfig{AggregationPeriod: time.Minute})

	sub := subscribe(t, d, "BTC-USDT")

	base := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	lf.Put(model.NewEvent(base.Add(10*time.Second), model.TradePrice{Symbol: "BTC-USDT", Value: 100, Vol: 1}))
	lf.Put(model.NewEvent(base.Add(20*time.Second), model.TradePrice{Symbol: "BTC-USDT", Value: 102, Vol: 1}))
	lf.Put(model.NewEvent(base.Add(70*time.Second), model.TradePrice{Symbol: "BTC-USDT", Value: 105, Vol: 1}))

	select {
	case event := <-sub.C():
		assert.True(t, event.Time.Equal(base.Add(time.Minute)), "bar is stamped at the bucket boundary")
		require.Len(t, event.Items, 1)
		bar, ok := event.Items[0].(model.PriceBar)
		require.True(t, ok)
		assert.Equal(t, 100.0, bar.Open)
		assert.Equal(t, 102.0, bar.Close)
		assert.Equal(t, 2.0, bar.Vol)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the aggregated bar")
	}
}

func Test_Session_LiveAggregated(t *testing.T) {
	period := 100 * time.Millisecond
	lf, _, d := startSession(t, SessionConfig{AggregationPeriod: period, Live: true})

	sub := subscribe(t, d, "BTC-USDT")

	lf.Put(model.NewEvent(time.Now(), model.TradePrice{Symbol: "BTC-USDT", Value: 100, Vol: 1}))

	select {
	case event := <-sub.C():
		assert.Zero(t, event.Time.UnixNano()%int64(period), "bar arrives at an aligned wall-clock boundary")
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never received the live bar")
	}
}

func Test_Session_StartTwice(t *testing.T) {
	_, session, _ := startSession(t, SessionConfig{})
	assert.Error(t, session.Start(context.Background()))
}

func Test_Session_StopNotStarted(t *testing.T) {
	session, err := NewSession(feed.NewLiveFeed(), NewDispatcher(DispatcherConfig{}), SessionConfig{})
	require.NoError(t, err)
	assert.Error(t, session.Stop())
}

func Test_Session_Stop(t *testing.T) {
	_, session, d := startSession(t, SessionConfig{})

	sub := subscribe(t, d, "BTC-USDT")
	require.NoError(t, session.Stop())

	select {
	case _, ok := <-sub.C():
		assert.False(t, ok, "subscriber channels close when the session stops")
	case <-time.After(time.Second):
		t.Fatal("subscriber channel was not closed")
	}

	assert.Error(t, session.Stop(), "second stop reports not started")
}

func Test_Session_Restart(t *testing.T) {
	lf := feed.NewLiveFeed()
	d := NewDispatcher(DispatcherConfig{MaxAssetsAllowed: 10})

	session, err := NewSession(lf, d, SessionConfig{})
	require.NoError(t, err)

	require.NoError(t, session.Start(context.Background()))
	require.NoError(t, session.Stop())

	// A stopped session can be started again once the dispatcher has shut
	// down; the live source stays closed though, so use a fresh pipeline for
	// real restarts.
	require.Eventually(t, func() bool { return session.Start(context.Background()) == nil },
		time.Second, 10*time.Millisecond)
	require.NoError(t, session.Stop())
}
