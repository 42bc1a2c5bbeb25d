// Package container wires the throwbridge services using go.uber.org/dig.
package container

import (
	"go.uber.org/dig"

	"github.com/throwbridge/throwbridge/internal/bridge"
	"github.com/throwbridge/throwbridge/internal/catalog"
	"github.com/throwbridge/throwbridge/internal/config"
	"github.com/throwbridge/throwbridge/internal/logsink"
	"github.com/throwbridge/throwbridge/internal/metrics"
	"github.com/throwbridge/throwbridge/internal/refresh"
)

// Container holds the resolved service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	cfg        *config.Config
	sink       *logsink.Sink
	metrics    *metrics.Metrics
	store      *catalog.Store
	controller *bridge.Controller
	scheduler  *refresh.Scheduler
	watcher    *config.Watcher
}

func (c *Container) Config() *config.Config         { return c.cfg }
func (c *Container) Sink() *logsink.Sink            { return c.sink }
func (c *Container) Metrics() *metrics.Metrics      { return c.metrics }
func (c *Container) Store() *catalog.Store          { return c.store }
func (c *Container) Controller() *bridge.Controller { return c.controller }
func (c *Container) Scheduler() *refresh.Scheduler  { return c.scheduler }

// Watcher returns the config file watcher, or nil when the file cannot be watched.
func (c *Container) Watcher() *config.Watcher { return c.watcher }

// configPath is a named string type so dig can tell the config file path
// apart from other strings.
type configPath string

// New builds and wires all services from cfg. path is the config file the
// watcher follows.
func New(cfg *config.Config, path string) (*Container, error) {
	d := dig.New()

	if err := d.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}
	if err := d.Provide(func() configPath { return configPath(path) }); err != nil {
		return nil, err
	}
	if err := d.Provide(newSink); err != nil {
		return nil, err
	}
	if err := d.Provide(metrics.New); err != nil {
		return nil, err
	}
	if err := d.Provide(newStore); err != nil {
		return nil, err
	}
	if err := d.Provide(newController); err != nil {
		return nil, err
	}
	if err := d.Provide(newScheduler); err != nil {
		return nil, err
	}
	if err := d.Provide(newWatcher); err != nil {
		return nil, err
	}

	var result *Container
	err := d.Invoke(func(
		sink *logsink.Sink,
		m *metrics.Metrics,
		store *catalog.Store,
		ctrl *bridge.Controller,
		sched *refresh.Scheduler,
		w *config.Watcher,
	) {
		result = &Container{
			cfg:        cfg,
			sink:       sink,
			metrics:    m,
			store:      store,
			controller: ctrl,
			scheduler:  sched,
			watcher:    w,
		}
	})
	return result, err
}

func newSink(cfg *config.Config) *logsink.Sink {
	return logsink.New(logsink.Options{FilePath: cfg.LogPath(), Debug: cfg.DebugLogging})
}

func newStore(cfg *config.Config, sink *logsink.Sink) *catalog.Store {
	return catalog.NewStore(cfg.DataPath(), sink.Logger())
}

func newController(cfg *config.Config, store *catalog.Store, sink *logsink.Sink, m *metrics.Metrics) *bridge.Controller {
	return bridge.New(bridge.Options{Config: cfg, Store: store, Sink: sink, Metrics: m})
}

func newScheduler(cfg *config.Config, ctrl *bridge.Controller, sink *logsink.Sink) (*refresh.Scheduler, error) {
	return refresh.NewScheduler(cfg.Refresh.Schedule, ctrl, sink.Logger())
}

// newWatcher feeds config file edits to the controller as settings entries.
// A watcher that cannot start is logged and left out.
func newWatcher(path configPath, ctrl *bridge.Controller, sink *logsink.Sink) *config.Watcher {
	p := string(path)
	if p == "" {
		p = config.ConfigPath()
	}
	log := sink.Logger()
	w, err := config.NewWatcher(p, 0, func(c *config.Config) {
		ctrl.NotifySettings(config.SettingsEntries(c))
	}, log)
	if err != nil {
		log.Warn("container: config watcher disabled", "path", p, "err", err)
		return nil
	}
	return w
}
