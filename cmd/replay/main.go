/*
Package main implements a back-test replay driver for the event streaming
core.

The driver plays one or more historic sources (CSV files and/or a synthetic
random walk) through the multi-source merge operator, re-windows the merged
stream into coarser OHLCV bars and logs every completed bar together with a
small set of technical indicators.

Usage:

	go run main.go -assets=BTC-USDT,ETH-USDT -period=5m -days=30

With -csv pointing at one or more files, the random walk is replaced by the
recorded data:

	go run main.go -csv=btc.csv:BTC-USDT,eth.csv:ETH-USDT -period=1h
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"marketfeed/internal/feed"
	"marketfeed/internal/model"
	"marketfeed/internal/utils"
	"marketfeed/pkg/ta"
)

// Command-line flags configuring the replay.
var (
	// assets is the comma-separated list of symbols for the synthetic walk.
	assets = flag.String("assets", "BTC-USDT,ETH-USDT", "Comma-separated list of assets")
	// period is the aggregation bucket width.
	period = flag.Duration("period", 5*time.Minute, "Aggregation period")
	// days is the length of the generated history.
	days = flag.Int("days", 7, "Days of synthetic history to generate")
	// interval is the spacing of generated observations.
	interval = flag.Duration("interval", time.Minute, "Spacing between generated observations")
	// csvSources lists file:asset pairs replacing the synthetic walk.
	csvSources = flag.String("csv", "", "Comma-separated file:asset pairs to replay instead of the random walk")
	// seed makes the synthetic walk reproducible.
	seed = flag.Int64("seed", 0, "Random walk seed (0 = time based)")
)

func main() {
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := validateConfig(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stop the replay cleanly on Ctrl+C / SIGTERM.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("initiating shutdown")
		cancel()
	}()

	combined, err := buildPipeline()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build pipeline")
	}
	defer combined.Close()

	aggregated, err := feed.NewAggregatorFeed(combined, feed.AggregatorConfig{Period: *period})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build aggregator")
	}

	channel, errc, err := feed.PlayBackground(ctx, aggregated, feed.ChannelConfig{Capacity: 100})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start playback")
	}

	calc := ta.NewCalculator(ta.Config{})

	bars := 0
	for {
		event, err := channel.Receive(ctx)
		if err != nil {
			if !errors.Is(err, feed.ErrChannelClosed) && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("receive failed")
			}
			break
		}

		for asset, price := range event.Prices() {
			bar, ok := price.(model.PriceBar)
			if !ok {
				continue
			}
			bars++
			calc.Update(bar)

			entry := log.Info().
				Time("time", event.Time).
				Str("asset", asset).
				Float64("open", bar.Open).
				Float64("high", bar.High).
				Float64("low", bar.Low).
				Float64("close", bar.Close).
				Float64("volume", bar.Vol)
			if snapshot, err := calc.Latest(asset); err == nil {
				entry = entry.Float64("sma", snapshot.SMA).Float64("rsi", snapshot.RSI)
			}
			entry.Msg("bar")
		}
	}

	if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("playback failed")
	}
	log.Info().Int("bars", bars).Msg("replay finished")
}

// validateConfig checks the command-line parameters before anything starts.
func validateConfig() error {
	if *period <= 0 {
		return fmt.Errorf("period must be positive, got %s", *period)
	}
	if *csvSources == "" {
		if *assets == "" {
			return fmt.Errorf("assets list cannot be empty")
		}
		if *days <= 0 {
			return fmt.Errorf("days must be positive, got %d", *days)
		}
		if *interval <= 0 {
			return fmt.Errorf("interval must be positive, got %s", *interval)
		}
		return utils.ValidateAssets(strings.Split(*assets, ","), 100)
	}
	for _, pair := range strings.Split(*csvSources, ",") {
		if parts := strings.Split(pair, ":"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("invalid csv source %q, expected file:asset", pair)
		}
	}
	return nil
}

// buildPipeline assembles the merge operator over the configured sources.
func buildPipeline() (*feed.CombinedFeed, error) {
	var feeds []feed.Feed

	if *csvSources != "" {
		for _, pair := range strings.Split(*csvSources, ",") {
			parts := strings.Split(pair, ":")
			source, err := feed.NewCSVFeed(feed.CSVConfig{Path: parts[0], Asset: parts[1]})
			if err != nil {
				return nil, err
			}
			feeds = append(feeds, source)
		}
	} else {
		// One independent walk per asset exercises the k-way merge.
		end := time.Now().UTC().Truncate(time.Hour)
		timeframe, err := model.NewTimeframe(end.AddDate(0, 0, -*days), end)
		if err != nil {
			return nil, err
		}
		for i, asset := range strings.Split(*assets, ",") {
			walkSeed := *seed
			if walkSeed != 0 {
				walkSeed += int64(i)
			}
			source, err := feed.NewRandomWalkFeed(feed.RandomWalkConfig{
				Assets:    []string{asset},
				Timeframe: timeframe,
				Interval:  *interval,
				Seed:      walkSeed,
			})
			if err != nil {
				return nil, err
			}
			feeds = append(feeds, source)
		}
	}

	return feed.NewCombinedFeed(feed.CombinedFeedConfig{ChannelCapacityPerSource: 100}, feeds...)
}
