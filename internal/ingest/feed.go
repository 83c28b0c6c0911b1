/*

This file contains the pending-swap mempool feed. It maintains a websocket
subscription against the node's pending-transaction stream, decodes swap
calls into PendingSwap values, and pushes them onto a bounded channel. A full
channel drops the swap; stale candidates are worthless by the time a backlog
drains.

Reconnection uses exponential backoff with jitter and resets on a successful
connect.

*/

package ingest

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mevforge/searcher/internal/logger"
	"github.com/mevforge/searcher/internal/types"
)

var feedLogger = logger.GetForComponent("mempool_feed")

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterPercent  = 0.2

	readTimeout  = 70 * time.Second
	writeTimeout = 10 * time.Second
)

// Feed manages the websocket subscription to the pending-swap stream.
type Feed struct {
	url      string
	swapChan chan<- types.PendingSwap

	conn    *websocket.Conn
	connMu  sync.Mutex
	backoff time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewFeed(url string, swapChan chan<- types.PendingSwap) *Feed {
	return &Feed{
		url:      url,
		swapChan: swapChan,
		backoff:  initialBackoff,
		stopChan: make(chan struct{}),
	}
}

// Start begins the feed with automatic reconnection.
func (f *Feed) Start(ctx context.Context) {
	f.wg.Add(1)
	go f.runLoop(ctx)
}

// Stop shuts the feed down and waits for the read loop to exit.
func (f *Feed) Stop() {
	f.stopOnce.Do(func() { close(f.stopChan) })
	f.closeConnection()
	f.wg.Wait()
}

func (f *Feed) runLoop(ctx context.Context) {
	defer f.wg.Done()

	for {
		select {
		case <-ctx.Done():
			feedLogger.Info().Msg("Feed stopping: context cancelled")
			return
		case <-f.stopChan:
			feedLogger.Info().Msg("Feed stopping: stop signal")
			return
		default:
		}

		if err := f.connect(ctx); err != nil {
			feedLogger.Error().Err(err).Dur("backoff", f.backoff).Msg("Feed connect failed")
			f.waitBackoff(ctx)
			continue
		}

		if err := f.readLoop(ctx); err != nil {
			feedLogger.Warn().Err(err).Msg("Feed read error")
		}

		f.closeConnection()

		select {
		case <-ctx.Done():
			return
		case <-f.stopChan:
			return
		default:
			f.waitBackoff(ctx)
		}
	}
}

func (f *Feed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, resp, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	f.backoff = initialBackoff
	feedLogger.Info().Str("endpoint", f.url).Msg("Feed connected")

	return f.subscribe()
}

func (f *Feed) subscribe() error {
	msg := map[string]any{
		"method": "subscribe",
		"topic":  "pending_swaps",
	}

	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := f.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send subscribe message: %w", err)
	}
	feedLogger.Info().Msg("Subscribed to pending swaps")
	return nil
}

func (f *Feed) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.stopChan:
			return nil
		default:
		}

		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()
		if conn == nil {
			return fmt.Errorf("connection is nil")
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		f.handleMessage(message)
	}
}

func (f *Feed) handleMessage(data []byte) {
	swap, ok, err := ParseSwapMessage(data)
	if err != nil {
		feedLogger.Debug().Err(err).Str("raw", string(data)).Msg("Unparseable feed message")
		return
	}
	if !ok {
		return
	}

	select {
	case f.swapChan <- swap:
		feedLogger.Debug().
			Str("hash", swap.Hash).
			Str("tokenIn", swap.TokenIn).
			Str("amountIn", swap.AmountIn.String()).
			Msg("Pending swap received")
	default:
		feedLogger.Warn().Str("hash", swap.Hash).Msg("Swap channel full; dropping")
	}
}

func (f *Feed) closeConnection() {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
		feedLogger.Info().Msg("Feed disconnected")
	}
}

func (f *Feed) waitBackoff(ctx context.Context) {
	jitter := time.Duration(float64(f.backoff) * jitterPercent * (rand.Float64()*2 - 1))
	wait := f.backoff + jitter

	select {
	case <-ctx.Done():
	case <-f.stopChan:
	case <-time.After(wait):
	}

	f.backoff = time.Duration(float64(f.backoff) * backoffFactor)
	if f.backoff > maxBackoff {
		f.backoff = maxBackoff
	}
}
