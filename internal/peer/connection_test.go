package peer

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/throwbridge/throwbridge/internal/bus"
	"github.com/throwbridge/throwbridge/internal/metrics"
)

// fakeTransport is an in-memory Transport driven by the test.
type fakeTransport struct {
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once

	mu      sync.Mutex
	written []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbound: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case b := <-f.inbound:
		return b, nil
	case <-f.closed:
		return nil, io.EOF
	}
}

func (f *fakeTransport) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, string(data))
	return nil
}

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

func nextEvent(t *testing.T, b *bus.EventBus) bus.PeerEvent {
	t.Helper()
	select {
	case ev := <-b.Subscribe():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return bus.PeerEvent{}
	}
}

func TestConnection_Lifecycle(t *testing.T) {
	events := bus.NewEventBus(16)
	transports := make(chan *fakeTransport, 4)
	m := metrics.New()

	conn := New(Options{
		Name:       bus.PeerControlHost,
		Events:     events,
		RetryDelay: 10 * time.Millisecond,
		Metrics:    m,
		Dial: func(context.Context) (Transport, error) {
			ft := newFakeTransport()
			transports <- ft
			return ft, nil
		},
	})
	assert.Equal(t, Disconnected, conn.State())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- conn.Run(ctx) }()

	ev := nextEvent(t, events)
	assert.Equal(t, bus.EventConnected, ev.Kind())
	assert.Equal(t, conn.ID(), ev.ConnID())
	assert.Equal(t, Connected, conn.State())
	ft := <-transports

	assert.True(t, conn.Send(map[string]string{"type": "pair", "id": "tits.connector"}))
	require.Eventually(t, func() bool { return len(ft.writes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"type":"pair","id":"tits.connector"}`, ft.writes()[0])

	ft.inbound <- []byte("not json")
	ft.inbound <- []byte(`{"type":"info"}`)
	ev = nextEvent(t, events)
	assert.Equal(t, bus.EventMessage, ev.Kind())
	assert.JSONEq(t, `{"type":"info"}`, string(ev.Payload()))

	// Losing the link reports a disconnect and dials again.
	_ = ft.Close()
	ev = nextEvent(t, events)
	assert.Equal(t, bus.EventDisconnected, ev.Kind())
	ev = nextEvent(t, events)
	assert.Equal(t, bus.EventConnected, ev.Kind())
	<-transports

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, Disconnected, conn.State())
}

// failingWriter accepts reads like fakeTransport but rejects every write.
type failingWriter struct {
	*fakeTransport
	attempts chan struct{}
}

func (f *failingWriter) WriteMessage([]byte) error {
	f.attempts <- struct{}{}
	return errors.New("boom")
}

func TestConnection_WriteFailureKeepsSession(t *testing.T) {
	events := bus.NewEventBus(16)
	fw := &failingWriter{fakeTransport: newFakeTransport(), attempts: make(chan struct{}, 4)}
	m := metrics.New()

	conn := New(Options{
		Name:       bus.PeerControlHost,
		Events:     events,
		RetryDelay: 10 * time.Millisecond,
		Metrics:    m,
		Dial:       func(context.Context) (Transport, error) { return fw, nil },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = conn.Run(ctx) }()

	require.Equal(t, bus.EventConnected, nextEvent(t, events).Kind())

	for i := 0; i < 2; i++ {
		require.True(t, conn.Send(map[string]string{"type": "log"}))
		select {
		case <-fw.attempts:
		case <-time.After(2 * time.Second):
			t.Fatal("write was not attempted")
		}
	}

	assert.Equal(t, Connected, conn.State())
	select {
	case ev := <-events.Subscribe():
		t.Fatalf("unexpected event %v after write failure", ev.Kind())
	case <-time.After(50 * time.Millisecond):
	}

	// The inbound side still works.
	fw.inbound <- []byte(`{"type":"info"}`)
	assert.Equal(t, bus.EventMessage, nextEvent(t, events).Kind())
}

func TestConnection_DialFailureRetries(t *testing.T) {
	events := bus.NewEventBus(16)
	var mu sync.Mutex
	attempts := 0

	conn := New(Options{
		Name:       bus.PeerItemService,
		Events:     events,
		RetryDelay: 10 * time.Millisecond,
		Dial: func(context.Context) (Transport, error) {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			return nil, errors.New("connection refused")
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = conn.Run(ctx) }()

	for i := 0; i < 3; i++ {
		ev := nextEvent(t, events)
		assert.Equal(t, bus.EventDisconnected, ev.Kind())
		assert.EqualError(t, ev.Err(), "connection refused")
	}
	mu.Lock()
	assert.GreaterOrEqual(t, attempts, 3)
	mu.Unlock()
	assert.NotEqual(t, Connected, conn.State())
}

func TestConnection_SendWhileDisconnectedDrops(t *testing.T) {
	m := metrics.New()
	conn := New(Options{Name: bus.PeerItemService, Events: bus.NewEventBus(1), Metrics: m})

	assert.False(t, conn.Send(map[string]string{"type": "x"}))
	assert.Equal(t, Disconnected, conn.State())
}

func TestConnection_IDsAreUnique(t *testing.T) {
	a := New(Options{Name: bus.PeerItemService, Events: bus.NewEventBus(1)})
	b := New(Options{Name: bus.PeerItemService, Events: bus.NewEventBus(1)})
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, bus.PeerItemService, a.Name())
}

func TestDecodeItemFrame(t *testing.T) {
	got, err := DecodeItemFrame([]byte(`"{\"messageType\":\"TITSItemListResponse\"}"`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"messageType":"TITSItemListResponse"}`, string(got))

	_, err = DecodeItemFrame([]byte(`{broken`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestWebSocketDialer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_ = c.WriteMessage(websocket.TextMessage, []byte(`"{\"messageType\":\"TITSTriggerListResponse\"}"`))
		_, msg, err := c.ReadMessage()
		if err == nil {
			received <- string(msg)
		}
		_, _, _ = c.ReadMessage()
	}))
	defer srv.Close()

	events := bus.NewEventBus(16)
	conn := New(Options{
		Name:   bus.PeerItemService,
		Events: events,
		Decode: DecodeItemFrame,
		Dial:   WebSocketDialer("ws" + strings.TrimPrefix(srv.URL, "http") + "/websocket"),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = conn.Run(ctx) }()

	assert.Equal(t, bus.EventConnected, nextEvent(t, events).Kind())
	ev := nextEvent(t, events)
	require.Equal(t, bus.EventMessage, ev.Kind())
	assert.JSONEq(t, `{"messageType":"TITSTriggerListResponse"}`, string(ev.Payload()))

	require.True(t, conn.Send(map[string]string{"messageType": "TITSItemListRequest"}))
	select {
	case msg := <-received:
		assert.JSONEq(t, `{"messageType":"TITSItemListRequest"}`, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive message")
	}
}

func TestTCPDialer_LineFraming(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		// Blank lines are skipped; two messages can share one write.
		_, _ = c.Write([]byte("\n{\"type\":\"info\"}\n\r\n{\"type\":\"action\"}\n"))
		line, err := bufio.NewReader(c).ReadString('\n')
		if err == nil {
			received <- line
		}
		_, _ = io.Copy(io.Discard, c)
	}()

	events := bus.NewEventBus(16)
	conn := New(Options{
		Name:   bus.PeerControlHost,
		Events: events,
		Dial:   TCPDialer(ln.Addr().String()),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = conn.Run(ctx) }()

	assert.Equal(t, bus.EventConnected, nextEvent(t, events).Kind())
	assert.JSONEq(t, `{"type":"info"}`, string(nextEvent(t, events).Payload()))
	assert.JSONEq(t, `{"type":"action"}`, string(nextEvent(t, events).Payload()))

	require.True(t, conn.Send(map[string]string{"type": "pair"}))
	select {
	case line := <-received:
		assert.Equal(t, "{\"type\":\"pair\"}\n", line)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive line")
	}
}
