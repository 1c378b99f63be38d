package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics holds all Prometheus metrics for the exchange.
type Metrics struct {
	// Operation metrics
	Swaps            *prometheus.CounterVec
	Deposits         *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec
	Rollbacks        *prometheus.CounterVec

	// Pool state
	Reserve      *prometheus.GaugeVec
	LastSequence prometheus.Gauge

	// Update stream
	UpdatesDropped prometheus.Counter
	StreamClients  prometheus.Gauge

	// API
	RateLimited *prometheus.CounterVec

	// Reconciliation
	CustodySurplus  *prometheus.GaugeVec
	Reconciliations *prometheus.CounterVec

	registry *prometheus.Registry
	server   *http.Server
}

// New creates all metrics and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		Swaps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dex_swaps_total",
				Help: "Total number of swaps by input side and result",
			},
			[]string{"side", "result"},
		),
		Deposits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dex_deposits_total",
				Help: "Total number of deposits by result",
			},
			[]string{"result"},
		),
		OperationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dex_operation_latency_seconds",
				Help:    "Time to run a pool operation end to end, lock wait included",
				Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16), // 10us to ~330ms
			},
			[]string{"op"},
		),
		Rollbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dex_rollbacks_total",
				Help: "Operations whose transfers were reversed, by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		Reserve: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dex_reserve",
				Help: "Current pool reserve in smallest units",
			},
			[]string{"side"},
		),
		LastSequence: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dex_last_sequence",
				Help: "Sequence number of the last committed operation",
			},
		),
		UpdatesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dex_updates_dropped_total",
				Help: "Reserve updates discarded because the update channel was full",
			},
		),
		StreamClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dex_stream_clients",
				Help: "Number of connected reserve stream clients",
			},
		),
		RateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dex_api_rate_limited_total",
				Help: "Mutating API requests rejected by the rate limiter, by route",
			},
			[]string{"route"},
		),
		CustodySurplus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dex_custody_surplus",
				Help: "Custody balance minus recorded reserve in smallest units, negative means a deficit",
			},
			[]string{"side"},
		),
		Reconciliations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dex_reconciliations_total",
				Help: "Custody reconciliation runs by result",
			},
			[]string{"result"},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.Swaps,
		m.Deposits,
		m.OperationLatency,
		m.Rollbacks,
		m.Reserve,
		m.LastSequence,
		m.UpdatesDropped,
		m.StreamClients,
		m.RateLimited,
		m.CustodySurplus,
		m.Reconciliations,
	)

	return m
}

// Registry returns the registry holding all metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler serving the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the HTTP server for Prometheus metrics.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	m.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		log.Info().Int("port", port).Str("path", path).Msg("Starting metrics server")
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return nil
}

// Shutdown gracefully stops the metrics server.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server != nil {
		return m.server.Shutdown(ctx)
	}
	return nil
}

// RecordSwap counts a swap attempt and its latency.
func (m *Metrics) RecordSwap(side, result string, d time.Duration) {
	m.Swaps.WithLabelValues(side, result).Inc()
	m.OperationLatency.WithLabelValues("swap").Observe(d.Seconds())
}

// RecordDeposit counts a deposit attempt and its latency.
func (m *Metrics) RecordDeposit(result string, d time.Duration) {
	m.Deposits.WithLabelValues(result).Inc()
	m.OperationLatency.WithLabelValues("deposit").Observe(d.Seconds())
}

// RecordRollback counts reversed transfers. clean is false when a reversal failed.
func (m *Metrics) RecordRollback(op string, clean bool) {
	outcome := "clean"
	if !clean {
		outcome = "failed"
	}
	m.Rollbacks.WithLabelValues(op, outcome).Inc()
}

// SetReserves updates the reserve gauges.
func (m *Metrics) SetReserves(reserveA, reserveB float64) {
	m.Reserve.WithLabelValues("A").Set(reserveA)
	m.Reserve.WithLabelValues("B").Set(reserveB)
}

// SetLastSequence sets the sequence of the last committed operation.
func (m *Metrics) SetLastSequence(seq uint64) {
	m.LastSequence.Set(float64(seq))
}

// RecordUpdateDropped increments the dropped update counter.
func (m *Metrics) RecordUpdateDropped() {
	m.UpdatesDropped.Inc()
}

// SetStreamClients sets the number of connected stream clients.
func (m *Metrics) SetStreamClients(n int) {
	m.StreamClients.Set(float64(n))
}

// RecordRateLimited counts a request rejected by the API rate limiter.
func (m *Metrics) RecordRateLimited(route string) {
	m.RateLimited.WithLabelValues(route).Inc()
}

// RecordReconciliation sets the custody surplus gauges and counts the run.
func (m *Metrics) RecordReconciliation(surplusA, surplusB float64, healthy bool) {
	m.CustodySurplus.WithLabelValues("A").Set(surplusA)
	m.CustodySurplus.WithLabelValues("B").Set(surplusB)
	result := "healthy"
	if !healthy {
		result = "deficit"
	}
	m.Reconciliations.WithLabelValues(result).Inc()
}
