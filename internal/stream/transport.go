package stream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultHandshakeTimeout таймаут рукопожатия по умолчанию
const DefaultHandshakeTimeout = 10 * time.Second

// Dialer открывает сокет к адресу потока
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// Conn живой сокет. Close может вызываться параллельно с ReadMessage.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	Close() error
}

// WebSocketDialer открывает соединения через gorilla/websocket
type WebSocketDialer struct {
	dialer    *websocket.Dialer
	header    http.Header
	readLimit int64
}

// NewWebSocketDialer создает диалер. readLimit 0 означает без ограничения.
func NewWebSocketDialer(handshakeTimeout time.Duration, readLimit int64) *WebSocketDialer {
	if handshakeTimeout <= 0 {
		handshakeTimeout = DefaultHandshakeTimeout
	}
	return &WebSocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		header:    http.Header{},
		readLimit: readLimit,
	}
}

// Dial устанавливает соединение
func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	ws, _, err := d.dialer.DialContext(ctx, endpoint, d.header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	if d.readLimit > 0 {
		ws.SetReadLimit(d.readLimit)
	}
	return &wsConn{ws: ws}, nil
}

type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) ReadMessage() (int, []byte, error) {
	return c.ws.ReadMessage()
}

// Close отправляет close frame (без гарантий) и закрывает соединение
func (c *wsConn) Close() error {
	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.ws.Close()
}

// isCleanClose отличает закрытие со стороны источника от сетевого сбоя
func isCleanClose(err error) bool {
	ce, ok := err.(*websocket.CloseError)
	if !ok {
		return false
	}
	return ce.Code != websocket.CloseAbnormalClosure
}
