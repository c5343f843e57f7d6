// Package metrics exposes the engine's Prometheus counters and
// histograms: message traffic and gather latency on the fabric, and
// the sweep kernel's pair-emission counts. Mirrors the shape of the
// teacher's telemetry.MetricsCollector (a registry plus an HTTP
// exposition server) but backs it with the real
// github.com/prometheus/client_golang registry and exposition handler
// instead of hand-rolled text formatting.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arxgeo/geodist/internal/logger"
)

// Registry holds every metric the engine records, all registered
// against one prometheus.Registry so a single /metrics endpoint serves
// them all.
type Registry struct {
	reg *prometheus.Registry
	log *logger.Logger

	MessagesSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	BroadcastLatency prometheus.Histogram
	GatherLatency    prometheus.Histogram
	SweepPairsEmitted prometheus.Counter
	RefinementCalls   *prometheus.CounterVec
	QueryDuration     *prometheus.HistogramVec

	server *http.Server
}

// New builds and registers every metric.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		log: logger.New("metrics", logger.INFO),
		MessagesSent: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "geodist",
			Subsystem: "fabric",
			Name:      "messages_sent_total",
			Help:      "Messages sent on the fabric, by tag.",
		}, []string{"tag"}),
		MessagesReceived: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "geodist",
			Subsystem: "fabric",
			Name:      "messages_received_total",
			Help:      "Messages received on the fabric, by tag.",
		}, []string{"tag"}),
		BroadcastLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "geodist",
			Subsystem: "fabric",
			Name:      "broadcast_seconds",
			Help:      "Wall-clock time for one Fabric.Broadcast round to collect every peer's reply.",
			Buckets:   prometheus.DefBuckets,
		}),
		GatherLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "geodist",
			Subsystem: "fabric",
			Name:      "gather_seconds",
			Help:      "Wall-clock time for one Fabric.Scatter round to collect every peer's reply.",
			Buckets:   prometheus.DefBuckets,
		}),
		SweepPairsEmitted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "geodist",
			Subsystem: "twolayer",
			Name:      "sweep_pairs_emitted_total",
			Help:      "MBR candidate pairs emitted by the two-layer plane-sweep kernel.",
		}),
		RefinementCalls: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "geodist",
			Subsystem: "refine",
			Name:      "calls_total",
			Help:      "Refinement calls, partitioned by outcome (match/reject).",
		}, []string{"outcome"}),
		QueryDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "geodist",
			Subsystem: "query",
			Name:      "evaluate_seconds",
			Help:      "End-to-end query evaluation time, by query type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
	}
	return r
}

// Serve starts the /metrics HTTP endpoint in the background: one
// dedicated http.Server per process, shut down via Stop rather than
// left to leak on process exit.
func (r *Registry) Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
	r.server = &http.Server{Addr: addr, Handler: mux}

	go func() {
		r.log.Info("metrics server listening on %s/metrics", addr)
		if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.log.Error("metrics server error: %v", err)
		}
	}()
}

// Stop shuts down the metrics HTTP server, if Serve was called.
func (r *Registry) Stop() {
	if r.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.server.Shutdown(ctx); err != nil {
		r.log.Error("metrics server shutdown: %v", err)
	}
}

// ObserveDuration is a small convenience wrapper used to time a phase
// with defer: `defer metrics.ObserveDuration(reg.BroadcastLatency, time.Now())`.
func ObserveDuration(h prometheus.Histogram, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Default is the process-wide registry cmd/host installs at startup;
// cmd/worker does not install one. Packages deep in the call graph (fabric, twolayer) record
// against Default rather than threading a Registry through every
// function signature; every accessor below is nil-safe so packages work
// unmetered in tests that never call Install.
var Default *Registry

// Install sets Default. Call once at process startup.
func Install(r *Registry) { Default = r }

func (r *Registry) recordSent(tag string) {
	if r == nil {
		return
	}
	r.MessagesSent.WithLabelValues(tag).Inc()
}

func (r *Registry) recordReceived(tag string) {
	if r == nil {
		return
	}
	r.MessagesReceived.WithLabelValues(tag).Inc()
}

func (r *Registry) addSweepPairs(n int) {
	if r == nil {
		return
	}
	r.SweepPairsEmitted.Add(float64(n))
}

func (r *Registry) recordRefinement(outcome string) {
	if r == nil {
		return
	}
	r.RefinementCalls.WithLabelValues(outcome).Inc()
}

// RecordMessageSent/RecordMessageReceived/AddSweepPairs/RecordRefinement
// record against Default, doing nothing if Install was never called.
func RecordMessageSent(tag string)     { Default.recordSent(tag) }
func RecordMessageReceived(tag string) { Default.recordReceived(tag) }
func AddSweepPairs(n int)              { Default.addSweepPairs(n) }
func RecordRefinement(outcome string)  { Default.recordRefinement(outcome) }
