package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redlabs-sc/document-converter-service/config"
	"github.com/redlabs-sc/document-converter-service/internal/pool"
	"go.uber.org/zap"
)

var (
	conversionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_converter_conversions_total",
			Help: "Conversions by final status",
		},
		[]string{"status"}, // success, tool_failure, timeout, no_output, io_failure, unsupported_format, staging_failure
	)

	conversionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "document_converter_conversion_duration_seconds",
			Help:    "End-to-end conversion time from validation to outcome",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	uploadBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "document_converter_upload_bytes",
			Help:    "Size of accepted upload payloads",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB to ~256MiB
		},
	)

	workersInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "document_converter_workers_in_flight",
			Help: "External-tool invocations currently executing",
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "document_converter_queue_depth",
			Help: "Conversions admitted to the pool but not yet started",
		},
	)
)

func init() {
	prometheus.MustRegister(conversionsTotal)
	prometheus.MustRegister(conversionDuration)
	prometheus.MustRegister(uploadBytes)
	prometheus.MustRegister(workersInFlight)
	prometheus.MustRegister(queueDepth)
}

// ObserveConversion records one finished conversion attempt.
func ObserveConversion(status string, duration time.Duration) {
	conversionsTotal.WithLabelValues(status).Inc()
	conversionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// ObserveUpload records the size of an accepted payload.
func ObserveUpload(size int64) {
	uploadBytes.Observe(float64(size))
}

// StartMetricsServer starts the Prometheus metrics HTTP server
func StartMetricsServer(cfg *config.Config, p *pool.Pool, logger *zap.Logger) {
	// Update pool gauges periodically
	go updatePoolGauges(p)

	// Dedicated mux so the metrics port exposes nothing else
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.MetricsPort)
	logger.Info("Starting metrics server", zap.String("addr", addr))

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()
}

func updatePoolGauges(p *pool.Pool) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		workersInFlight.Set(float64(p.InFlight()))
		queueDepth.Set(float64(p.QueueDepth()))
	}
}
