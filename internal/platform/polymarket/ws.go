package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	handshakeTimeout = 15 * time.Second
)

// SubscribeCommand is the market-channel subscription frame.
type SubscribeCommand struct {
	Type   string   `json:"type"`
	Assets []string `json:"assets_ids"`
}

// WSDialer opens market-channel connections.
type WSDialer struct {
	URL string
}

// Dial connects to the market channel. The returned connection keeps itself
// alive with pings until Close is called or a read fails.
func (d WSDialer) Dial(ctx context.Context) (*WSConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/ws: connect: %w", err)
	}

	w := &WSConn{conn: conn, done: make(chan struct{})}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go w.pingLoop()
	return w, nil
}

// WSConn is one live market-channel connection. Reads must come from a
// single goroutine; writes are serialised internally.
type WSConn struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Subscribe sends one subscription frame naming every asset.
func (w *WSConn) Subscribe(assetIDs []string) error {
	data, err := json.Marshal(SubscribeCommand{Type: "market", Assets: assetIDs})
	if err != nil {
		return fmt.Errorf("polymarket/ws: marshal subscribe: %w", err)
	}
	if err := w.write(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}
	return nil
}

// ReadFrame blocks until the next text or binary frame arrives. A server
// close or transport failure is reported as domain.ErrWSDisconnect.
func (w *WSConn) ReadFrame() ([]byte, error) {
	_, msg, err := w.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("polymarket/ws: %w: %v", domain.ErrWSDisconnect, err)
	}
	return msg, nil
}

// Close sends a close frame and releases the connection.
func (w *WSConn) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		_ = w.write(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = w.conn.Close()
	})
	return err
}

func (w *WSConn) write(messageType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(messageType, data)
}

// pingLoop sends periodic ping messages to keep the WebSocket alive.
func (w *WSConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if err := w.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
