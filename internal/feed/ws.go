// Package feed implements the market-channel WebSocket client, a
// generalization of the teacher's exchange.WSFeed (dial/read-loop/ping,
// dispatch-by-event_type) reduced to the one channel this engine needs:
// there is no authenticated user channel, since the core never reads its
// own fills.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"copytrader/pkg/types"
)

const (
	pingInterval   = 50 * time.Second
	readTimeout    = 90 * time.Second
	writeTimeout   = 10 * time.Second
	reconnectDelay = 3 * time.Second // fixed, per spec.md §4.5 — no exponential backoff
	eventBufSize   = 256
)

// Feed is the market-channel WebSocket client.
type Feed struct {
	url string

	connMu sync.Mutex
	conn   *websocket.Conn

	trackedMu sync.RWMutex
	tracked   []string // current TrackedAssetSet, snapshotted for (re)subscribe

	bookCh      chan types.WSBookEvent
	lastTradeCh chan types.WSLastTradePriceEvent

	stopped sync.Once
	stopCh  chan struct{}

	logger *slog.Logger
}

// New builds a market-channel feed against wsURL.
func New(wsURL string, logger *slog.Logger) *Feed {
	return &Feed{
		url:         wsURL,
		bookCh:      make(chan types.WSBookEvent, eventBufSize),
		lastTradeCh: make(chan types.WSLastTradePriceEvent, eventBufSize),
		stopCh:      make(chan struct{}),
		logger:      logger.With("component", "feed"),
	}
}

// BookEvents returns the read-only channel of book snapshot events.
func (f *Feed) BookEvents() <-chan types.WSBookEvent { return f.bookCh }

// LastTradePriceEvents returns the read-only channel of last-trade-price
// ticks.
func (f *Feed) LastTradePriceEvents() <-chan types.WSLastTradePriceEvent { return f.lastTradeCh }

// SetTracked replaces the snapshot of tracked asset ids used for the next
// (re)subscribe. Callers pass the full TrackedAssetSet, not a delta.
func (f *Feed) SetTracked(assets []string) {
	f.trackedMu.Lock()
	f.tracked = append([]string(nil), assets...)
	f.trackedMu.Unlock()
}

// IsOpen reports whether the connection is currently established.
func (f *Feed) IsOpen() bool {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	return f.conn != nil
}

// Resubscribe sends a full subscribe frame with the current tracked set,
// used when the asset set grows and the connection is already open
// (spec.md §4.7, S6).
func (f *Feed) Resubscribe() error {
	return f.writeJSON(f.subscribeMsg())
}

func (f *Feed) subscribeMsg() types.WSSubscribeMsg {
	f.trackedMu.RLock()
	defer f.trackedMu.RUnlock()
	return types.WSSubscribeMsg{AssetIDs: append([]string(nil), f.tracked...), Type: "MARKET"}
}

// Run connects and maintains the connection, reconnecting after a fixed
// 3s delay on any non-stop disconnect. Blocks until ctx is cancelled or
// Stop is called.
func (f *Feed) Run(ctx context.Context) error {
	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-f.stopCh:
			return nil
		default:
		}

		f.logger.Warn("websocket disconnected, reconnecting", "error", err, "delay", reconnectDelay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.stopCh:
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

// Stop marks the feed stopped; Run will not reconnect after the current
// connection closes (spec.md §4.5, §4.12).
func (f *Feed) Stop() {
	f.stopped.Do(func() { close(f.stopCh) })
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		f.conn.Close()
	}
}

func (f *Feed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.writeJSON(f.subscribeMsg()); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	f.logger.Info("websocket connected")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		f.dispatchMessage(msg)
	}
}

func (f *Feed) dispatchMessage(data []byte) {
	var envelope struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		f.logger.Debug("dropping unparseable ws frame")
		return
	}

	switch envelope.EventType {
	case "book":
		var evt types.WSBookEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			f.logger.Debug("dropping malformed book event", "error", err)
			return
		}
		select {
		case f.bookCh <- evt:
		default:
			f.logger.Warn("book channel full, dropping event", "asset", evt.AssetID)
		}

	case "last_trade_price":
		var evt types.WSLastTradePriceEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			f.logger.Debug("dropping malformed last_trade_price event", "error", err)
			return
		}
		select {
		case f.lastTradeCh <- evt:
		default:
			f.logger.Warn("last_trade_price channel full, dropping event", "asset", evt.AssetID)
		}

	default:
		f.logger.Debug("ignoring unrecognized ws event", "type", envelope.EventType)
	}
}

func (f *Feed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeMessage(websocket.TextMessage, []byte("PING")); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *Feed) writeJSON(v interface{}) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

func (f *Feed) writeMessage(msgType int, data []byte) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteMessage(msgType, data)
}
