package peer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/throwbridge/throwbridge/internal/schema"
)

// Transport is one established link that moves whole messages.
// ReadMessage and WriteMessage are each called from a single goroutine.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens a new Transport.
type Dialer func(ctx context.Context) (Transport, error)

// ErrMalformed marks an inbound message that is not valid JSON.
var ErrMalformed = errors.New("malformed message")

// DecodeJSON accepts any well-formed JSON message.
func DecodeJSON(raw []byte) ([]byte, error) {
	text := bytes.TrimSpace(raw)
	if !json.Valid(text) {
		return nil, ErrMalformed
	}
	return text, nil
}

// DecodeItemFrame unwraps double-encoded Item Service frames before validating them.
func DecodeItemFrame(raw []byte) ([]byte, error) {
	return DecodeJSON(schema.UnwrapFrame(raw))
}

// ─── WebSocket ────────────────────────────────────────────────────────────────

// WebSocketDialer dials url and exchanges text frames.
func WebSocketDialer(url string) Dialer {
	return func(ctx context.Context) (Transport, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return &wsTransport{conn: conn}, nil
	}
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error { return t.conn.Close() }

// ─── Line-delimited TCP ───────────────────────────────────────────────────────

const tcpDialTimeout = 10 * time.Second

// TCPDialer dials addr and frames messages as newline-terminated lines.
func TCPDialer(addr string) Dialer {
	return func(ctx context.Context) (Transport, error) {
		d := net.Dialer{Timeout: tcpDialTimeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return newLineTransport(conn), nil
	}
}

type lineTransport struct {
	conn      net.Conn
	reader    *bufio.Reader
	closeOnce sync.Once
	closeErr  error
}

func newLineTransport(conn net.Conn) *lineTransport {
	return &lineTransport{conn: conn, reader: bufio.NewReader(conn)}
}

// ReadMessage returns the next non-blank line. A trailing partial line is
// discarded when the stream ends.
func (t *lineTransport) ReadMessage() ([]byte, error) {
	for {
		line, err := t.reader.ReadBytes('\n')
		if err != nil {
			return nil, err
		}
		if line = bytes.TrimSpace(line); len(line) > 0 {
			return line, nil
		}
	}
}

func (t *lineTransport) WriteMessage(data []byte) error {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, data...)
	buf = append(buf, '\n')
	_, err := t.conn.Write(buf)
	return err
}

func (t *lineTransport) Close() error {
	t.closeOnce.Do(func() { t.closeErr = t.conn.Close() })
	return t.closeErr
}
