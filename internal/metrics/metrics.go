// Package metrics exposes bridge counters through Prometheus.
//
// Every method is safe on a nil *Metrics so components can run without
// telemetry in tests.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "throwbridge"

// Metrics bundles the bridge's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	PeerConnected    *prometheus.GaugeVec
	PeerConnects     *prometheus.CounterVec
	PeerDisconnects  *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	MessagesDropped  *prometheus.CounterVec
	Actions          *prometheus.CounterVec
	Reconciliations  *prometheus.CounterVec
	StatesRetracted  *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		PeerConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "peer",
				Name:      "connected",
				Help:      "Whether the peer link is connected (1) or not (0)",
			},
			[]string{"peer"},
		),
		PeerConnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "peer",
				Name:      "connects_total",
				Help:      "Successful connection attempts",
			},
			[]string{"peer"},
		),
		PeerDisconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "peer",
				Name:      "disconnects_total",
				Help:      "Lost links and failed connection attempts",
			},
			[]string{"peer"},
		),
		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Inbound messages accepted from a peer",
			},
			[]string{"peer"},
		),
		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "dropped_total",
				Help:      "Messages discarded, by reason",
			},
			[]string{"peer", "reason"},
		),
		Actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "actions",
				Name:      "handled_total",
				Help:      "Control Host actions by outcome",
			},
			[]string{"action", "outcome"},
		),
		Reconciliations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "catalog",
				Name:      "reconciliations_total",
				Help:      "Reconciliation passes per collection",
			},
			[]string{"kind"},
		),
		StatesRetracted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "catalog",
				Name:      "states_retracted_total",
				Help:      "Stale states removed from the Control Host",
			},
			[]string{"kind"},
		),
	}

	m.registry.MustRegister(
		m.PeerConnected, m.PeerConnects, m.PeerDisconnects,
		m.MessagesReceived, m.MessagesDropped, m.Actions,
		m.Reconciliations, m.StatesRetracted,
	)
	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Connected(peer string) {
	if m == nil {
		return
	}
	m.PeerConnected.WithLabelValues(peer).Set(1)
	m.PeerConnects.WithLabelValues(peer).Inc()
}

func (m *Metrics) Disconnected(peer string) {
	if m == nil {
		return
	}
	m.PeerConnected.WithLabelValues(peer).Set(0)
	m.PeerDisconnects.WithLabelValues(peer).Inc()
}

func (m *Metrics) Received(peer string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(peer).Inc()
}

func (m *Metrics) Dropped(peer, reason string) {
	if m == nil {
		return
	}
	m.MessagesDropped.WithLabelValues(peer, reason).Inc()
}

func (m *Metrics) Action(action, outcome string) {
	if m == nil {
		return
	}
	m.Actions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) Reconciled(kind string, retracted int) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(kind).Inc()
	m.StatesRetracted.WithLabelValues(kind).Add(float64(retracted))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes /metrics and /health on addr until ctx is cancelled. A server
// that cannot listen is logged and Serve returns nil, leaving the bridge up.
func (m *Metrics) Serve(ctx context.Context, addr string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics: serving", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics: server stopped, metrics disabled", "addr", addr, "err", err)
		return nil
	}
	return ctx.Err()
}
