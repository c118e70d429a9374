// Package metrics exposes registry metrics in the Prometheus text format.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "registry"

var (
	registry = prometheus.NewRegistry()
	factory  = promauto.With(registry)

	transactionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_total",
		Help:      "Registry transactions by operation and outcome.",
	}, []string{"operation", "outcome"})

	transactionDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transaction_duration_seconds",
		Help:      "Time spent executing and committing a transaction.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	eventsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Events emitted by committed transactions.",
	}, []string{"kind"})

	clockHeight = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "clock_height",
		Help:      "Last clock height observed by the host.",
	})

	buildInfo = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Constant 1, labeled with the service name.",
	}, []string{"service"})
)

func init() {
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// RecordTransaction counts one finished transaction. outcome is "ok" or an error kind.
func RecordTransaction(operation, outcome string, duration time.Duration) {
	transactionsTotal.WithLabelValues(operation, outcome).Inc()
	transactionDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func RecordEvent(kind string) {
	eventsTotal.WithLabelValues(kind).Inc()
}

func SetClockHeight(height uint64) {
	clockHeight.Set(float64(height))
}

// Gatherer returns the registry holding all metrics of this package.
func Gatherer() prometheus.Gatherer {
	return registry
}

type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for service listening on listenAddr.
func New(service, listenAddr string) (*MetricsServer, error) {
	buildInfo.WithLabelValues(service).Set(1)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &MetricsServer{
		srv: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
