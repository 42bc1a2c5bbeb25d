// Package peer maintains a self-healing link to one external system and
// reports its lifecycle and inbound messages on the event bus.
package peer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/throwbridge/throwbridge/internal/bus"
	"github.com/throwbridge/throwbridge/internal/metrics"
	"github.com/throwbridge/throwbridge/internal/shared/stringutils"
)

// State is the connection lifecycle stage.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

const (
	defaultRetryDelay = 5 * time.Second
	defaultQueueSize  = 256
	rawPreviewLen     = 200
)

var nextConnID atomic.Uint64

// Options configures a Connection.
type Options struct {
	Name       bus.Peer
	Dial       Dialer
	Events     *bus.EventBus
	RetryDelay time.Duration                // pause between attempts; default 5s
	QueueSize  int                          // outbound buffer; default 256
	Decode     func([]byte) ([]byte, error) // default DecodeJSON
	Metrics    *metrics.Metrics
	Log        *slog.Logger
}

// Connection dials its peer, redials forever after a fixed delay, and
// publishes Connected, Message and Disconnected events tagged with its ID.
type Connection struct {
	id         uint64
	name       bus.Peer
	dial       Dialer
	events     *bus.EventBus
	retryDelay time.Duration
	queueSize  int
	decode     func([]byte) ([]byte, error)
	metrics    *metrics.Metrics
	log        *slog.Logger

	mu    sync.Mutex
	state State
	out   chan []byte // nil unless Connected
}

// New creates a Connection in the Disconnected state. Call Run to start it.
func New(opts Options) *Connection {
	c := &Connection{
		id:         nextConnID.Add(1),
		name:       opts.Name,
		dial:       opts.Dial,
		events:     opts.Events,
		retryDelay: opts.RetryDelay,
		queueSize:  opts.QueueSize,
		decode:     opts.Decode,
		metrics:    opts.Metrics,
		log:        opts.Log,
	}
	if c.retryDelay <= 0 {
		c.retryDelay = defaultRetryDelay
	}
	if c.queueSize <= 0 {
		c.queueSize = defaultQueueSize
	}
	if c.decode == nil {
		c.decode = DecodeJSON
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.log = c.log.With("peer", string(c.name))
	return c
}

// ID distinguishes this instance from any replacement created later.
func (c *Connection) ID() uint64 { return c.id }

// Name returns the peer this connection talks to.
func (c *Connection) Name() bus.Peer { return c.name }

// State returns the current lifecycle stage.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run connects and reconnects until ctx is cancelled.
func (c *Connection) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("peer: disconnected, retrying", "delay", c.retryDelay, "err", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *Connection) session(ctx context.Context) error {
	c.setState(Connecting)
	t, err := c.dial(ctx)
	if err != nil {
		c.setState(Disconnected)
		c.events.Publish(ctx, bus.NewDisconnectedEvent(c.name, c.id, err))
		return err
	}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make(chan []byte, c.queueSize)
	c.mu.Lock()
	c.state = Connected
	c.out = out
	c.mu.Unlock()
	c.metrics.Connected(string(c.name))
	c.log.Info("peer: connected")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writeLoop(sctx, t, out)
	}()
	go func() {
		defer wg.Done()
		<-sctx.Done()
		_ = t.Close()
	}()

	c.events.Publish(ctx, bus.NewConnectedEvent(c.name, c.id))
	err = c.readLoop(ctx, t)

	c.mu.Lock()
	c.state = Disconnected
	c.out = nil
	c.mu.Unlock()
	cancel()
	wg.Wait()

	c.metrics.Disconnected(string(c.name))
	c.events.Publish(ctx, bus.NewDisconnectedEvent(c.name, c.id, err))
	return err
}

func (c *Connection) readLoop(ctx context.Context, t Transport) error {
	for {
		raw, err := t.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		payload, err := c.decode(raw)
		if err != nil {
			c.metrics.Dropped(string(c.name), "malformed")
			c.log.Error("peer: failed to parse message", "err", err, "raw", stringutils.Truncate(string(raw), rawPreviewLen))
			continue
		}
		c.metrics.Received(string(c.name))
		if !c.events.Publish(ctx, bus.NewMessageEvent(c.name, c.id, payload)) {
			return ctx.Err()
		}
	}
}

func (c *Connection) writeLoop(ctx context.Context, t Transport, out <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-out:
			// The read side owns teardown; a failed write only loses this message.
			if err := t.WriteMessage(data); err != nil {
				c.metrics.Dropped(string(c.name), "write")
				c.log.Error("peer: write failed", "err", err)
			}
		}
	}
}

// Send serialises msg and queues it for the writer. It never blocks: while
// the link is down, or its queue is full, the message is dropped and Send
// reports false.
func (c *Connection) Send(msg any) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		c.metrics.Dropped(string(c.name), "encode")
		c.log.Error("peer: failed to encode message", "err", err)
		return false
	}

	c.mu.Lock()
	state, out := c.state, c.out
	queued := false
	if state == Connected && out != nil {
		select {
		case out <- data:
			queued = true
		default:
		}
	}
	c.mu.Unlock()

	switch {
	case queued:
		return true
	case state != Connected:
		c.metrics.Dropped(string(c.name), "disconnected")
		c.log.Debug("peer: not connected, message dropped")
	default:
		c.metrics.Dropped(string(c.name), "queue_full")
		c.log.Warn("peer: send queue full, message dropped")
	}
	return false
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
