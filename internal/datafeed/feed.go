/*

This file contains the DEX price feed: a websocket client that subscribes to
one trading pair and keeps the last observed execution price. The overlord
reads the price at the start of each cycle; a feed that has not ticked
within the staleness window refuses to serve.

*/

package datafeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/origami-labs/lovm/internal/logger"
)

var (
	ErrNoPriceObserved = errors.New("no price observed yet")
	ErrPriceStale      = errors.New("last observed price is stale")
	ErrFeedClosed      = errors.New("price feed is closed")
)

// Config configures feed behavior.
type Config struct {
	// Endpoint is the websocket URL of the price stream.
	Endpoint string
	// Pair identifies the market, e.g. "WSTETH/WETH".
	Pair string
	// Staleness bounds how old the last tick may be before reads fail.
	Staleness time.Duration
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the exponential backoff between attempts.
	MaxReconnectDelay time.Duration
	// ReadTimeout is the per-message read deadline.
	ReadTimeout time.Duration
}

// DefaultConfig returns default feed configuration.
func DefaultConfig(endpoint, pair string) Config {
	return Config{
		Endpoint:          endpoint,
		Pair:              pair,
		Staleness:         30 * time.Second,
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
	}
}

// priceTick is one message on the stream.
type priceTick struct {
	Pair      string `json:"pair"`
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// subscribeRequest opens the stream for one pair.
type subscribeRequest struct {
	Op   string `json:"op"`
	Pair string `json:"pair"`
}

// Feed tracks the last observed DEX price for one pair.
type Feed struct {
	config Config
	logger zerolog.Logger

	mu         sync.RWMutex
	lastPrice  sdkmath.LegacyDec
	lastTickAt time.Time

	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewFeed creates a feed and starts its read loop. The feed reconnects with
// exponential backoff until Close is called or the context is cancelled.
func NewFeed(ctx context.Context, cfg Config) (*Feed, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	if cfg.Pair == "" {
		return nil, fmt.Errorf("pair cannot be empty")
	}
	f := &Feed{
		config: cfg,
		logger: logger.GetForComponent("datafeed"),
		done:   make(chan struct{}),
	}
	f.wg.Add(1)
	go f.runLoop(ctx)
	return f, nil
}

// LatestDexPrice returns the last observed price, quoted the way the stream
// quotes the pair. Fails before the first tick and after the staleness
// window passes with no tick.
func (f *Feed) LatestDexPrice() (sdkmath.LegacyDec, error) {
	if f.closed.Load() {
		return sdkmath.LegacyDec{}, ErrFeedClosed
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.lastTickAt.IsZero() {
		return sdkmath.LegacyDec{}, ErrNoPriceObserved
	}
	if age := time.Since(f.lastTickAt); age > f.config.Staleness {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: last tick %s ago", ErrPriceStale, age)
	}
	return f.lastPrice, nil
}

// Close stops the read loop and closes the connection.
func (f *Feed) Close() {
	if f.closed.Swap(true) {
		return
	}
	close(f.done)
	f.wg.Wait()
}

// runLoop connects, reads ticks, and reconnects with backoff on any error.
func (f *Feed) runLoop(ctx context.Context) {
	defer f.wg.Done()

	delay := f.config.ReconnectDelay
	for {
		select {
		case <-f.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		err := f.readSession(ctx)
		if f.closed.Load() || ctx.Err() != nil {
			return
		}
		f.logger.Warn().
			Err(err).
			Dur("reconnectDelay", delay).
			Msg("Price stream disconnected, reconnecting")

		select {
		case <-time.After(delay):
		case <-f.done:
			return
		case <-ctx.Done():
			return
		}
		delay *= 2
		if delay > f.config.MaxReconnectDelay {
			delay = f.config.MaxReconnectDelay
		}
	}
}

// readSession runs one connection: dial, subscribe, read until error.
func (f *Feed) readSession(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, f.config.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeRequest{Op: "subscribe", Pair: f.config.Pair}); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	f.logger.Info().
		Str("endpoint", f.config.Endpoint).
		Str("pair", f.config.Pair).
		Msg("Subscribed to price stream")

	for {
		select {
		case <-f.done:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		var tick priceTick
		if err := json.Unmarshal(message, &tick); err != nil {
			f.logger.Warn().Err(err).Msg("Dropping malformed price tick")
			continue
		}
		if tick.Pair != f.config.Pair {
			continue
		}
		price, err := sdkmath.LegacyNewDecFromStr(tick.Price)
		if err != nil || !price.IsPositive() {
			f.logger.Warn().Str("price", tick.Price).Msg("Dropping non-positive price tick")
			continue
		}
		f.recordTick(price, tick.Timestamp)
	}
}

func (f *Feed) recordTick(price sdkmath.LegacyDec, timestampMs int64) {
	f.mu.Lock()
	f.lastPrice = price
	if timestampMs > 0 {
		f.lastTickAt = time.UnixMilli(timestampMs)
	} else {
		f.lastTickAt = time.Now()
	}
	f.mu.Unlock()

	f.logger.Debug().
		Str("pair", f.config.Pair).
		Str("price", price.String()).
		Msg("Price tick recorded")
}
