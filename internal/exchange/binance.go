// Package exchange provides live market data sources backed by exchange
// WebSocket APIs.
//
// Each source normalizes the exchange's wire format into model items and
// pushes them into an embedded LiveFeed, so consumers see the usual Feed
// contract and never touch the socket directly. Message validation uses
// struct tags, price parsing goes through decimal.Decimal to reject
// malformed numbers losslessly.
package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"marketfeed/internal/feed"
	"marketfeed/internal/model"
	"marketfeed/internal/utils"
	"marketfeed/internal/websocket"
)

// defaultBinanceConfig provides sensible defaults for Binance connections.
var defaultBinanceConfig = Config{
	BaseURL:   "wss://stream.binance.com:9443",
	MaxAssets: 10,
}

// Config holds the common configuration of exchange sources.
type Config struct {
	// BaseURL is the WebSocket endpoint of the exchange API.
	BaseURL string

	// MaxAssets caps the number of simultaneously subscribed symbols.
	MaxAssets int
}

// applyDefaults fills unset fields from the defaults.
func (cfg *Config) applyDefaults(defaults Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.MaxAssets <= 0 {
		cfg.MaxAssets = defaults.MaxAssets
	}
}

// binanceMsg is the outer wrapper of a Binance combined-stream message:
// trade data is embedded as raw JSON next to its stream identifier.
type binanceMsg struct {
	Stream string          `json:"stream" validate:"required"`
	Data   json.RawMessage `json:"data" validate:"required"`
}

// binanceTrade is the inner trade payload. Numeric values arrive as strings
// to preserve precision during JSON parsing.
type binanceTrade struct {
	Symbol   string `json:"s" validate:"required"`
	Price    string `json:"p" validate:"required,numeric"`
	Quantity string `json:"q" validate:"required,numeric"`
	Time     int64  `json:"T" validate:"required,gt=0"`
}

// BinanceSource streams live trades from Binance into a LiveFeed.
//
// Implements the Feed contract by delegation: Play registers the consumer's
// channel with the embedded LiveFeed, so multiple consumers can play the
// same source concurrently.
type BinanceSource struct {
	*feed.LiveFeed

	cfg      Config
	validate *validator.Validate
	assets   []string
	client   *websocket.Client
}

// NewBinanceSource creates a Binance live source. A nil cfg selects the
// default configuration.
func NewBinanceSource(cfg *Config) *BinanceSource {
	config := defaultBinanceConfig
	if cfg != nil {
		config = *cfg
		config.applyDefaults(defaultBinanceConfig)
	}
	return &BinanceSource{
		LiveFeed: feed.NewLiveFeed(),
		cfg:      config,
		validate: validator.New(),
	}
}

// Assets returns the symbols subscribed by Connect.
func (bs *BinanceSource) Assets() []string { return bs.assets }

// Connect dials the exchange and starts pushing normalized trade events into
// the feed for the given assets.
func (bs *BinanceSource) Connect(ctx context.Context, assets []string) error {
	if err := utils.ValidateAssets(assets, bs.cfg.MaxAssets); err != nil {
		return err
	}

	streams := make([]string, len(assets))
	for i, asset := range assets {
		streams[i] = fmt.Sprintf("%s@trade", strings.ToLower(strings.ReplaceAll(asset, "-", "")))
	}
	endpoint := fmt.Sprintf("%s/stream?streams=%s", bs.cfg.BaseURL, strings.Join(streams, "/"))

	client, err := websocket.Dial(ctx, websocket.Config{
		Endpoint: endpoint,
		Handler:  bs.handleMessage,
	})
	if err != nil {
		return fmt.Errorf("connect binance: %w", err)
	}

	bs.client = client
	bs.assets = assets
	log.Info().Strs("assets", assets).Msg("binance source connected")
	return nil
}

// handleMessage parses one combined-stream message and broadcasts it.
func (bs *BinanceSource) handleMessage(data []byte) error {
	var wrapper binanceMsg
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return fmt.Errorf("unmarshal stream wrapper: %w", err)
	}
	if err := bs.validate.Struct(wrapper); err != nil {
		return fmt.Errorf("invalid stream wrapper: %w", err)
	}

	var t binanceTrade
	if err := json.Unmarshal(wrapper.Data, &t); err != nil {
		return fmt.Errorf("unmarshal trade: %w", err)
	}
	if err := bs.validate.Struct(t); err != nil {
		return fmt.Errorf("invalid trade: %w", err)
	}

	price, err := decimal.NewFromString(t.Price)
	if err != nil {
		return fmt.Errorf("parse price %q: %w", t.Price, err)
	}
	quantity, err := decimal.NewFromString(t.Quantity)
	if err != nil {
		return fmt.Errorf("parse quantity %q: %w", t.Quantity, err)
	}

	bs.Put(model.NewEvent(
		time.UnixMilli(t.Time),
		model.TradePrice{
			Symbol: normalizeSymbol(t.Symbol),
			Value:  price.InexactFloat64(),
			Vol:    quantity.InexactFloat64(),
		},
	))
	return nil
}

// Close disconnects from the exchange and closes the feed.
func (bs *BinanceSource) Close() error {
	if bs.client != nil {
		_ = bs.client.Close()
	}
	return bs.LiveFeed.Close()
}

// normalizeSymbol converts an exchange symbol like "BTCUSDT" into the
// standard "BTC-USDT" form. Unknown quote assets are left untouched.
func normalizeSymbol(symbol string) string {
	upper := strings.ToUpper(symbol)
	for _, quote := range utils.QuoteAssets() {
		if base, found := strings.CutSuffix(upper, quote); found && base != "" {
			return base + "-" + quote
		}
	}
	return upper
}
