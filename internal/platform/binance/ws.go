package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/depthlab/bookpulse/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	// Binance pings every 3 minutes; the deadline is refreshed on any ping.
	pongWait = 4 * time.Minute
)

// DepthHandler is called for each partial book depth snapshot.
type DepthHandler func(domain.OrderBookSnapshot)

// streamEnvelope is the combined-stream wrapper Binance uses when more than
// one stream is multiplexed over a single connection.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// WSClient is a WebSocket client for the Binance combined market stream. It
// manages the connection lifecycle and dispatches depth snapshots to the
// registered handler. Reconnection is the caller's responsibility.
type WSClient struct {
	baseURL string
	conn    *websocket.Conn

	mu     sync.Mutex
	closed bool

	onDepth DepthHandler
	done    chan struct{}
}

// NewWSClient creates a client for the given stream endpoint, e.g.
// "wss://stream.binance.com:9443".
func NewWSClient(baseURL string) *WSClient {
	return &WSClient{
		baseURL: baseURL,
		done:    make(chan struct{}),
	}
}

// OnDepth registers the handler invoked for each depth snapshot.
func (w *WSClient) OnDepth(h DepthHandler) {
	w.onDepth = h
}

// streamName is the partial book depth stream for an instrument, 20 levels at
// 100ms cadence.
func streamName(instrument domain.Instrument) string {
	return strings.ToLower(instrument.String()) + "@depth20@100ms"
}

// Connect dials the combined stream for the given instruments and starts the
// read loop. It returns once the connection is established.
func (w *WSClient) Connect(ctx context.Context, instruments []domain.Instrument) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("binance/ws: %w", domain.ErrWSDisconnect)
	}
	if len(instruments) == 0 {
		return fmt.Errorf("binance/ws: no instruments to subscribe")
	}

	names := make([]string, len(instruments))
	for i, inst := range instruments {
		names[i] = streamName(inst)
	}
	url := w.baseURL + "/stream?streams=" + strings.Join(names, "/")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("binance/ws: dial %s: %w", w.baseURL, err)
	}
	w.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	// Binance sends pings; answering keeps the connection alive and
	// refreshes the read deadline.
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	go w.readLoop(instruments)
	return nil
}

// readLoop reads messages until the connection drops, dispatching depth
// snapshots to the handler. The done channel is closed on exit so Wait-style
// callers observe the disconnect.
func (w *WSClient) readLoop(instruments []domain.Instrument) {
	defer close(w.done)

	byStream := make(map[string]domain.Instrument, len(instruments))
	for _, inst := range instruments {
		byStream[streamName(inst)] = inst
	}

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			return
		}

		var env streamEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		instrument, ok := byStream[env.Stream]
		if !ok {
			continue
		}

		var raw APIDepth
		if err := json.Unmarshal(env.Data, &raw); err != nil {
			continue
		}
		snap, err := raw.ToSnapshot(instrument)
		if err != nil {
			continue
		}
		if w.onDepth != nil {
			w.onDepth(snap)
		}
	}
}

// Done is closed when the read loop exits, i.e. the connection dropped or
// Close was called.
func (w *WSClient) Done() <-chan struct{} {
	return w.done
}

// Close tears down the connection.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}
