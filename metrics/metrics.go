// Package metrics exposes Prometheus instrumentation for the tick relay
// and a standalone listener serving the scrape endpoint.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lagless/tickrelay/common"
)

// Drop reasons used as the "reason" label on IntentsDropped. They mirror
// the protocol package's rejection taxonomy.
const (
	ReasonMalformed    = "malformed"
	ReasonFutureTick   = "future_tick"
	ReasonDuplicate    = "duplicate"
	ReasonTickLimit    = "tick_limit"
	ReasonRoundStopped = "round_stopped"
	ReasonUnknown      = "unknown_sender"
)

var (
	IntentsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Name:      "intents_accepted_total",
		Help:      "Intent submissions recorded into the tick buffer.",
	})

	IntentsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Name:      "intents_dropped_total",
		Help:      "Intent submissions silently dropped, by rejection reason.",
	}, []string{"reason"})

	TicksAdvanced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Name:      "ticks_advanced_total",
		Help:      "Ticks fully converged, dispatched, and advanced past.",
	})

	RoundCursor = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: common.PackageName,
		Name:      "round_cursor",
		Help:      "Tick index the barrier is currently waiting to complete.",
	})

	Participants = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: common.PackageName,
		Name:      "round_participants",
		Help:      "Active participants in the current round.",
	})

	DeliveryErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Name:      "delivery_errors_total",
		Help:      "Tick payload deliveries that failed; deliveries are never retried.",
	})

	RoundsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Name:      "rounds_started_total",
		Help:      "Rounds started over the process lifetime.",
	})
)

// MetricsServer serves the Prometheus scrape endpoint on its own listener
// so operational traffic stays off the relay's participant-facing port.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the given address. An empty address
// returns a server whose ListenAndServe is a no-op, simplifying callers
// that treat metrics as optional.
func New(listenAddr string) (*MetricsServer, error) {
	if listenAddr == "" {
		return &MetricsServer{}, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:    listenAddr,
			Handler: mux,
		},
	}, nil
}

// ListenAndServe blocks serving the scrape endpoint.
func (m *MetricsServer) ListenAndServe() error {
	if m.srv == nil {
		return nil
	}
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the listener.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.srv == nil {
		return nil
	}
	return m.srv.Shutdown(ctx)
}
