package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketfeed/internal/model"
)

func walkTimeframe(t *testing.T, span time.Duration) model.Timeframe {
	t.Helper()
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	tf, err := model.NewTimeframe(start, start.Add(span))
	require.NoError(t, err)
	return tf
}

func Test_NewRandomWalkFeed_Validation(t *testing.T) {
	tf := walkTimeframe(t, time.Hour)

	tests := []struct {
		name string
		cfg  RandomWalkConfig
	}{
		{name: "no assets", cfg: RandomWalkConfig{Timeframe: tf}},
		{name: "zero timeframe", cfg: RandomWalkConfig{Assets: []string{"BTC-USDT"}}},
		{name: "negative interval", cfg: RandomWalkConfig{Assets: []string{"BTC-USDT"}, Timeframe: tf, Interval: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRandomWalkFeed(tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func Test_RandomWalkFeed_Play(t *testing.T) {
	tf := walkTimeframe(t, 10*time.Minute)
	walk, err := NewRandomWalkFeed(RandomWalkConfig{
		Assets:    []string{"BTC-USDT", "ETH-USDT"},
		Timeframe: tf,
		Seed:      42,
	})
	require.NoError(t, err)

	channel := newTestChannel(t, ChannelConfig{Capacity: 100})
	go func() {
		_ = walk.Play(context.Background(), channel)
		channel.Close()
	}()

	events := collect(t, channel)
	require.Len(t, events, 10, "one event per minute over the open interval")

	for i, event := range events {
		require.Len(t, event.Items, 2)
		assert.True(t, event.Time.Equal(tf.Start.Add(time.Duration(i)*time.Minute)))

		for _, item := range event.Items {
			bar, ok := item.(model.PriceBar)
			require.True(t, ok)
			assert.Greater(t, bar.High, bar.Low)
			assert.GreaterOrEqual(t, bar.High, bar.Open)
			assert.GreaterOrEqual(t, bar.High, bar.Close)
			assert.LessOrEqual(t, bar.Low, bar.Open)
			assert.LessOrEqual(t, bar.Low, bar.Close)
			assert.Positive(t, bar.Vol)
		}
	}
}

func Test_RandomWalkFeed_SeedReproducible(t *testing.T) {
	tf := walkTimeframe(t, 5*time.Minute)

	run := func() []model.Event {
		walk, err := NewRandomWalkFeed(RandomWalkConfig{
			Assets:    []string{"BTC-USDT"},
			Timeframe: tf,
			Seed:      7,
		})
		require.NoError(t, err)

		channel := newTestChannel(t, ChannelConfig{Capacity: 100})
		go func() {
			_ = walk.Play(context.Background(), channel)
			channel.Close()
		}()
		return collect(t, channel)
	}

	first := run()
	second := run()

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Items, second[i].Items, "event %d differs between runs", i)
	}
}

func Test_RandomWalkFeed_StartPrice(t *testing.T) {
	tf := walkTimeframe(t, time.Minute)
	walk, err := NewRandomWalkFeed(RandomWalkConfig{
		Assets:     []string{"BTC-USDT"},
		Timeframe:  tf,
		StartPrice: 250,
		Seed:       1,
	})
	require.NoError(t, err)

	channel := newTestChannel(t, ChannelConfig{Capacity: 10})
	go func() {
		_ = walk.Play(context.Background(), channel)
		channel.Close()
	}()

	events := collect(t, channel)
	require.NotEmpty(t, events)
	bar := events[0].Items[0].(model.PriceBar)
	assert.Equal(t, 250.0, bar.Open)
}
