// Package bridge wires the Control Host and Item Service connections to the
// catalog, reconciler and dispatcher, and runs the single event loop that
// serialises all catalog mutation.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/throwbridge/throwbridge/internal/bus"
	"github.com/throwbridge/throwbridge/internal/catalog"
	"github.com/throwbridge/throwbridge/internal/config"
	"github.com/throwbridge/throwbridge/internal/dispatch"
	"github.com/throwbridge/throwbridge/internal/logsink"
	"github.com/throwbridge/throwbridge/internal/metrics"
	"github.com/throwbridge/throwbridge/internal/peer"
	"github.com/throwbridge/throwbridge/internal/reconcile"
	"github.com/throwbridge/throwbridge/internal/schema"
)

const (
	eventBufSize    = 128
	settingsBufSize = 8
)

// Options configures a Controller. Dialers default to the configured
// Control Host TCP address and Item Service WebSocket URL.
type Options struct {
	Config     *config.Config
	Store      *catalog.Store
	Sink       *logsink.Sink
	Metrics    *metrics.Metrics
	HostDialer peer.Dialer
	ItemDialer func(port int) peer.Dialer
}

// Status is a point-in-time view of the bridge.
type Status struct {
	ControlHost     peer.State
	ItemService     peer.State
	ItemServicePort int
	Items           int
	Triggers        int
}

// Controller owns both peer connections. Only the event loop touches the
// catalog, and only the controller replaces the Item Service connection.
type Controller struct {
	cfg        *config.Config
	store      *catalog.Store
	sink       *logsink.Sink
	metrics    *metrics.Metrics
	log        *slog.Logger
	events     *bus.EventBus
	itemDialer func(port int) peer.Dialer

	host       *peer.Connection
	reconciler *reconcile.Reconciler
	dispatcher *dispatch.Dispatcher

	settings chan []map[string]any
	refresh  chan struct{}

	mu         sync.RWMutex
	group      *errgroup.Group
	runCtx     context.Context
	item       *peer.Connection
	itemPort   int
	itemCancel context.CancelFunc
}

func New(opts Options) *Controller {
	cfg := opts.Config
	log, hostLog := slog.Default(), slog.Default()
	if opts.Sink != nil {
		log, hostLog = opts.Sink.Logger(), opts.Sink.LocalLogger()
	}

	c := &Controller{
		cfg:        cfg,
		store:      opts.Store,
		sink:       opts.Sink,
		metrics:    opts.Metrics,
		log:        log,
		events:     bus.NewEventBus(eventBufSize),
		itemDialer: opts.ItemDialer,
		settings:   make(chan []map[string]any, settingsBufSize),
		refresh:    make(chan struct{}, 1),
		itemPort:   cfg.ItemService.Port,
	}
	if c.itemDialer == nil {
		c.itemDialer = func(port int) peer.Dialer {
			return peer.WebSocketDialer(cfg.ItemService.URL(port))
		}
	}
	hostDialer := opts.HostDialer
	if hostDialer == nil {
		hostDialer = peer.TCPDialer(cfg.ControlHost.Addr())
	}

	c.host = peer.New(peer.Options{
		Name:       bus.PeerControlHost,
		Dial:       hostDialer,
		Events:     c.events,
		RetryDelay: cfg.ReconnectDelay(),
		Metrics:    opts.Metrics,
		Log:        hostLog,
	})
	c.reconciler = reconcile.New(opts.Store, c.host, opts.Metrics, log)

	var verbosity dispatch.Verbosity
	if opts.Sink != nil {
		verbosity = opts.Sink
	}
	c.dispatcher = dispatch.New(dispatch.Options{
		Store:     opts.Store,
		Items:     itemLink{c},
		Ports:     c,
		Verbosity: verbosity,
		Keys:      cfg.SettingsKeys,
		Metrics:   opts.Metrics,
		Log:       log,
	})
	return c
}

// Run starts both connections and processes events until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	c.mu.Lock()
	c.group, c.runCtx = g, gctx
	port := c.itemPort
	c.mu.Unlock()

	if c.sink != nil {
		c.sink.AttachHost(c.host)
		defer c.sink.AttachHost(nil)
	}

	c.log.Info("bridge: connecting to control host", "addr", c.cfg.ControlHost.Addr())
	g.Go(func() error {
		_ = c.host.Run(gctx)
		return nil
	})
	c.startItem(port)
	g.Go(func() error { return c.loop(gctx) })

	return g.Wait()
}

// NotifySettings queues Control Host style settings entries for the event
// loop. Entries are dropped when the queue is full.
func (c *Controller) NotifySettings(entries []map[string]any) {
	select {
	case c.settings <- entries:
	default:
		c.log.Warn("bridge: settings queue full, notification dropped")
	}
}

// RequestRefresh asks the event loop to re-request both collections.
// Requests made while one is pending are coalesced.
func (c *Controller) RequestRefresh() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

// ItemServicePort returns the port the Item Service connection targets.
func (c *Controller) ItemServicePort() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.itemPort
}

// SetItemServicePort replaces the Item Service connection with one that
// targets port. Before Run it only records the port.
func (c *Controller) SetItemServicePort(port int) {
	c.mu.Lock()
	running := c.group != nil
	if !running {
		c.itemPort = port
	}
	c.mu.Unlock()
	if running {
		c.startItem(port)
	}
}

// Status reports connection states and cached collection sizes.
func (c *Controller) Status() Status {
	st := Status{
		ControlHost:     c.host.State(),
		ItemService:     peer.Disconnected,
		ItemServicePort: c.ItemServicePort(),
		Items:           len(c.store.Entities(catalog.KindItems)),
		Triggers:        len(c.store.Entities(catalog.KindTriggers)),
	}
	if conn := c.itemConn(); conn != nil {
		st.ItemService = conn.State()
	}
	return st
}

func (c *Controller) startItem(port int) {
	conn := peer.New(peer.Options{
		Name:       bus.PeerItemService,
		Dial:       c.itemDialer(port),
		Events:     c.events,
		RetryDelay: c.cfg.ReconnectDelay(),
		Decode:     peer.DecodeItemFrame,
		Metrics:    c.metrics,
		Log:        c.log,
	})

	c.mu.Lock()
	if c.itemCancel != nil {
		c.itemCancel()
	}
	ictx, cancel := context.WithCancel(c.runCtx)
	c.item, c.itemPort, c.itemCancel = conn, port, cancel
	g := c.group
	c.mu.Unlock()

	c.log.Info("bridge: connecting to item service", "url", c.cfg.ItemService.URL(port))
	g.Go(func() error {
		_ = conn.Run(ictx)
		return nil
	})
}

func (c *Controller) itemConn() *peer.Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.item
}

func (c *Controller) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.log.Info("bridge: stopping")
			return nil
		case ev := <-c.events.Subscribe():
			c.handleEvent(ev)
		case entries := <-c.settings:
			c.dispatcher.HandleSettings(entries)
		case <-c.refresh:
			c.dispatcher.Refresh()
		}
	}
}

func (c *Controller) handleEvent(ev bus.PeerEvent) {
	switch ev.Peer() {
	case bus.PeerControlHost:
		if ev.ConnID() != c.host.ID() {
			return
		}
		c.handleHostEvent(ev)
	case bus.PeerItemService:
		conn := c.itemConn()
		if conn == nil || ev.ConnID() != conn.ID() {
			c.log.Debug("bridge: ignoring event from replaced connection", "kind", ev.Kind().String())
			return
		}
		c.handleItemEvent(ev)
	}
}

func (c *Controller) handleHostEvent(ev bus.PeerEvent) {
	switch ev.Kind() {
	case bus.EventConnected:
		c.log.Info("bridge: connected to control host", "addr", c.cfg.ControlHost.Addr())
		c.host.Send(schema.NewPair(c.cfg.ControlHost.PluginID))
		c.host.Send(schema.NewListenForSettings(c.cfg.ControlHost.SettingsSection))
		c.republish()
	case bus.EventMessage:
		c.handleHostMessage(ev.Payload())
	case bus.EventDisconnected:
		c.log.Debug("bridge: control host link down", "err", ev.Err())
	}
}

// republish replays cached collections so a restarted Control Host gets its
// states back without waiting for the next Item Service refresh.
func (c *Controller) republish() {
	for _, kind := range catalog.Kinds {
		if c.store.Loaded(kind) {
			c.reconciler.Reconcile(kind, c.store.Entities(kind))
		}
	}
}

func (c *Controller) handleHostMessage(payload []byte) {
	var msg schema.HostInbound
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.log.Error("bridge: failed to parse control host message", "err", err, "raw", string(payload))
		return
	}

	switch msg.Type {
	case schema.HostInfo, schema.HostSettingsUpdated:
		c.log.Debug("bridge: control host settings received", "type", msg.Type, "settings", msg.Settings)
		c.dispatcher.HandleSettings(msg.Settings)
	case schema.HostAction:
		c.dispatcher.HandleAction(msg.ActionID, msg.Data)
	case schema.HostClosePlugin:
		c.log.Info("bridge: control host requested close; waiting for process signal")
	default:
		c.log.Debug("bridge: control host message", "type", msg.Type)
	}
}

func (c *Controller) handleItemEvent(ev bus.PeerEvent) {
	switch ev.Kind() {
	case bus.EventConnected:
		c.log.Info("bridge: connected to item service", "port", c.ItemServicePort())
		c.dispatcher.Refresh()
	case bus.EventMessage:
		c.handleItemMessage(ev.Payload())
	case bus.EventDisconnected:
		c.log.Debug("bridge: item service link down", "err", ev.Err())
	}
}

func (c *Controller) handleItemMessage(payload []byte) {
	var resp schema.ItemServiceResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		c.log.Error("bridge: failed to parse item service data", "err", err, "raw", string(payload))
		return
	}

	switch {
	case resp.MessageType == schema.ItemListResponse && schema.Present(resp.Data.Items):
		c.applyCollection(catalog.KindItems, resp.Data.Items)
	case resp.MessageType == schema.TriggerListResponse && schema.Present(resp.Data.Triggers):
		c.applyCollection(catalog.KindTriggers, resp.Data.Triggers)
	default:
		c.log.Debug("bridge: item service message", "messageType", resp.MessageType)
	}
}

func (c *Controller) applyCollection(kind catalog.Kind, raw json.RawMessage) {
	entities, err := catalog.ParseEntities(kind, raw)
	if err != nil {
		c.log.Error("bridge: invalid collection", "kind", kind, "err", err)
		return
	}
	c.reconciler.Reconcile(kind, entities)
}

// itemLink routes sends to whichever Item Service connection is current.
type itemLink struct {
	c *Controller
}

func (l itemLink) Send(msg any) bool {
	conn := l.c.itemConn()
	if conn == nil {
		return false
	}
	return conn.Send(msg)
}
