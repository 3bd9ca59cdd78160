// Package websocket provides a lifecycle-managed WebSocket client for live
// market data connections.
//
// The client owns the connection, a read loop delegating every message to a
// caller-provided handler, and a ping loop keeping the connection alive. All
// goroutines are joined on Close so a stopped client never leaks resources.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// defaultPingPeriod is the interval between WebSocket ping messages.
	defaultPingPeriod = 15 * time.Second

	// defaultReadLimit caps the size of incoming messages.
	defaultReadLimit = 1 << 20 // 1MB

	// defaultHandshakeTimeout bounds the WebSocket handshake.
	defaultHandshakeTimeout = 10 * time.Second
)

// ErrClientClosed indicates the client has been shut down.
var ErrClientClosed = errors.New("websocket client closed")

// Config defines settings for the WebSocket client.
type Config struct {
	// Endpoint is the WebSocket URL to connect to. Required.
	Endpoint string

	// Handler is called with the raw payload of every incoming message.
	// Required. A handler error is logged, not fatal: one malformed message
	// must not take the stream down.
	Handler func([]byte) error

	// PingPeriod is the interval between ping messages.
	PingPeriod time.Duration

	// SubscriptionMessages are sent immediately after connecting.
	SubscriptionMessages [][]byte
}

// Client wraps a websocket.Conn with lifecycle and message handling logic.
type Client struct {
	cfg    Config
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	writeMu sync.Mutex
}

// Dial connects to the configured endpoint, sends the subscription messages
// and starts the read and ping loops.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint URL is required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("message handler is required")
	}
	if cfg.PingPeriod == 0 {
		cfg.PingPeriod = defaultPingPeriod
	}

	dialer := websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, cfg.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Endpoint, err)
	}
	conn.SetReadLimit(defaultReadLimit)

	ctx, cancel := context.WithCancel(ctx)
	client := &Client{cfg: cfg, conn: conn, ctx: ctx, cancel: cancel}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PingPeriod * 2))
	})

	for _, msg := range cfg.SubscriptionMessages {
		if err := client.write(websocket.TextMessage, msg); err != nil {
			cancel()
			conn.Close()
			return nil, fmt.Errorf("send subscription: %w", err)
		}
	}

	client.wg.Add(2)
	go func() {
		defer client.wg.Done()
		client.readLoop()
	}()
	go func() {
		defer client.wg.Done()
		client.pingLoop()
	}()

	return client, nil
}

// readLoop reads messages until the connection drops or the client closes.
func (c *Client) readLoop() {
	logger := log.With().Str("endpoint", c.cfg.Endpoint).Logger()
	defer c.cancel()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info().Msg("websocket closed normally")
			} else if c.ctx.Err() == nil {
				logger.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
		if err := c.cfg.Handler(data); err != nil {
			logger.Warn().Err(err).Msg("dropping unparseable message")
		}
	}
}

// pingLoop keeps the connection alive until shutdown.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("endpoint", c.cfg.Endpoint).Msg("ping failed")
				c.cancel()
				return
			}
		}
	}
}

// write serializes concurrent writers on the single connection.
func (c *Client) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

// Close shuts the client down and joins its goroutines. Safe to call
// repeatedly.
func (c *Client) Close() error {
	c.once.Do(func() {
		c.cancel()
		deadline := time.Now().Add(time.Second)
		_ = c.write(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.conn.SetReadDeadline(deadline)
		c.conn.Close()
		c.wg.Wait()
	})
	return nil
}

// Wait blocks until the client stops, either through Close or a connection
// failure.
func (c *Client) Wait() {
	<-c.ctx.Done()
}
