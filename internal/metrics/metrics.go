// Package metrics defines the broker's optional Prometheus registry.
// It is only ever served if a listen address is configured; the
// counters themselves are always live so enabling the listener never
// loses history accumulated before it started.
package metrics

import (
	"context"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TonyMarkham/opencode-tauri/internal/errs"
)

// Registry holds every metric this broker exposes.
type Registry struct {
	ConnectionsAccepted prometheus.Counter
	AuthFailures        prometheus.Counter
	DispatchCalls       *prometheus.CounterVec
	DispatchErrors      *prometheus.CounterVec
	SpawnAttempts       prometheus.Counter
	SpawnSuccesses      prometheus.Counter
	BackendBound        prometheus.Gauge

	registry *prometheus.Registry
}

// New constructs a Registry with every metric registered under it.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deskbroker", Subsystem: "ipc", Name: "connections_accepted_total",
			Help: "Total WebSocket connections accepted on the loopback listener.",
		}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deskbroker", Subsystem: "ipc", Name: "auth_failures_total",
			Help: "Total rejected auth handshakes.",
		}),
		DispatchCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskbroker", Subsystem: "ipc", Name: "dispatch_calls_total",
			Help: "Total dispatch calls, labeled by payload kind.",
		}, []string{"kind"}),
		DispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskbroker", Subsystem: "ipc", Name: "dispatch_errors_total",
			Help: "Total dispatch errors, labeled by error family.",
		}, []string{"family"}),
		SpawnAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deskbroker", Subsystem: "spawn", Name: "attempts_total",
			Help: "Total backend spawn attempts.",
		}),
		SpawnSuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deskbroker", Subsystem: "spawn", Name: "successes_total",
			Help: "Total backend spawn attempts that reached a healthy state.",
		}),
		BackendBound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "deskbroker", Subsystem: "state", Name: "backend_bound",
			Help: "1 if a backend is currently bound, 0 otherwise.",
		}),
	}

	reg.MustRegister(
		r.ConnectionsAccepted,
		r.AuthFailures,
		r.DispatchCalls,
		r.DispatchErrors,
		r.SpawnAttempts,
		r.SpawnSuccesses,
		r.BackendBound,
	)
	return r
}

// RecordDispatchError increments DispatchErrors for the error's family
// if it carries one, and falls back to an "unknown" label otherwise.
func (r *Registry) RecordDispatchError(err error) {
	family := "unknown"
	if located, ok := err.(*errs.Error); ok {
		family = string(located.Family)
	}
	r.DispatchErrors.WithLabelValues(family).Inc()
}

// Serve binds a loopback-only HTTP listener exposing /metrics and
// blocks until ctx is canceled. Consistent with the rest of this
// system's loopback threat model, it always binds 127.0.0.1 on addr's
// port; the host part of addr is not used.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return errs.Wrap(errs.FamilyIPC, "Io", "invalid metrics listen address "+addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: net.JoinHostPort("127.0.0.1", port), Handler: mux}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	err = srv.ListenAndServe()
	if ctx.Err() != nil || err == http.ErrServerClosed {
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.FamilyIPC, "Io", "metrics listener exited", err)
	}
	return nil
}
