package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"marketfeed/internal/model"
)

// CSVConfig holds the construction parameters of a CSVFeed.
type CSVConfig struct {
	// Path is the file to read. Required.
	Path string

	// Asset is the symbol every row belongs to. Required.
	Asset string

	// TimeLayout parses the first column. Defaults to time.RFC3339.
	TimeLayout string

	// Span is the bar duration recorded on each parsed bar, when known.
	Span time.Duration
}

// CSVFeed replays historic OHLCV bars from a CSV file, one event per row.
//
// The expected row format is "time,open,high,low,close,volume" with a header
// line. Prices are parsed through decimal.Decimal so malformed rows are
// rejected losslessly before entering the float64 item model. Rows must be
// in non-decreasing time order; an out-of-order row is a producer fault.
type CSVFeed struct {
	cfg CSVConfig
}

// NewCSVFeed creates a file-backed feed for the given configuration.
func NewCSVFeed(cfg CSVConfig) (*CSVFeed, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	if cfg.Asset == "" {
		return nil, fmt.Errorf("%w: asset is required", ErrInvalidConfig)
	}
	if cfg.TimeLayout == "" {
		cfg.TimeLayout = time.RFC3339
	}
	return &CSVFeed{cfg: cfg}, nil
}

// Assets returns the single symbol this file holds.
func (cf *CSVFeed) Assets() []string { return []string{cf.cfg.Asset} }

// Play streams the file's rows into channel in order. The file handle is
// released on every exit path, including cancellation.
func (cf *CSVFeed) Play(ctx context.Context, channel *EventChannel) error {
	file, err := os.Open(cf.cfg.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", cf.cfg.Path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 6
	reader.ReuseRecord = true

	// Skip the header line.
	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read header of %s: %w", cf.cfg.Path, err)
	}

	var last time.Time
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s line %d: %w", cf.cfg.Path, line, err)
		}

		bar, t, err := cf.parseRow(record)
		if err != nil {
			return fmt.Errorf("%s line %d: %w", cf.cfg.Path, line, err)
		}
		if t.Before(last) {
			return fmt.Errorf("%s line %d: timestamp %s before previous %s", cf.cfg.Path, line, t, last)
		}
		last = t

		if err := channel.Send(ctx, model.NewEvent(t, bar)); err != nil {
			if errors.Is(err, ErrChannelClosed) {
				return nil
			}
			return err
		}
	}
}

// parseRow converts one CSV record into a price bar and its timestamp.
func (cf *CSVFeed) parseRow(record []string) (model.PriceBar, time.Time, error) {
	t, err := time.Parse(cf.cfg.TimeLayout, record[0])
	if err != nil {
		return model.PriceBar{}, time.Time{}, fmt.Errorf("parse time %q: %w", record[0], err)
	}

	fields := [5]float64{}
	names := [5]string{"open", "high", "low", "close", "volume"}
	for i, name := range names {
		value, err := decimal.NewFromString(record[i+1])
		if err != nil {
			return model.PriceBar{}, time.Time{}, fmt.Errorf("parse %s %q: %w", name, record[i+1], err)
		}
		fields[i] = value.InexactFloat64()
	}

	return model.PriceBar{
		Symbol: cf.cfg.Asset,
		Open:   fields[0],
		High:   fields[1],
		Low:    fields[2],
		Close:  fields[3],
		Vol:    fields[4],
		Span:   cf.cfg.Span,
	}, t, nil
}

// Close implements the Feed interface; the file handle only lives inside
// Play.
func (cf *CSVFeed) Close() error { return nil }
