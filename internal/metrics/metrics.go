// Package metrics provides Prometheus metrics for the filehub server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filehub_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filehub_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Gateway operation metrics
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filehub_operations_total",
			Help: "Total file operations by result kind",
		},
		[]string{"operation", "result"},
	)

	uploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filehub_upload_bytes_total",
			Help: "Total bytes written by uploads",
		},
	)

	downloadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filehub_download_bytes_total",
			Help: "Total bytes served by raw downloads",
		},
	)

	// Remote mirror metrics
	remoteFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filehub_remote_fetch_duration_seconds",
			Help:    "Remote mirror listing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	manifestEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filehub_manifest_entries",
			Help: "Number of entries written to the last generated manifest",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordOperation records the outcome of a gateway operation. result is
// "success" or an error kind.
func RecordOperation(operation, result string) {
	operationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordUpload adds written upload bytes.
func RecordUpload(bytes int64) {
	uploadBytes.Add(float64(bytes))
}

// RecordDownload adds served download bytes.
func RecordDownload(bytes int64) {
	downloadBytes.Add(float64(bytes))
}

// RecordRemoteFetch records a remote mirror listing.
func RecordRemoteFetch(duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	remoteFetchDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// SetManifestEntries sets the entry count of the last generated manifest.
func SetManifestEntries(count int) {
	manifestEntries.Set(float64(count))
}
