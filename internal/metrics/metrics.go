// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "filegate"

// HTTPRequestsTotal counts served requests.
// Labels:
//   - route: the matched route pattern, or "unmatched"
//   - code: the response status code
var HTTPRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests, by route and status code.",
	},
	[]string{"route", "code"},
)

// HTTPRequestDuration measures handler latency.
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests, by route.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"route"},
)

// LoginsTotal counts login attempts by result ("success", "failure", "limited").
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// BytesUploadedTotal counts file bytes written by uploads.
var BytesUploadedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bytes_uploaded_total",
		Help:      "Total number of file bytes accepted by uploads.",
	},
)

// BytesDownloadedTotal counts file bytes streamed to clients.
var BytesDownloadedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bytes_downloaded_total",
		Help:      "Total number of file bytes streamed by downloads.",
	},
)

// PathViolationsTotal counts rejected sandbox escapes.
var PathViolationsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "path_violations_total",
		Help:      "Total number of client paths rejected for leaving the sandbox root.",
	},
)

// ActiveSessions reports the number of cached live sessions. It is wired to
// a callback at startup.
func ActiveSessions(count func() int) prometheus.Collector {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live sessions held in the session cache.",
		},
		func() float64 { return float64(count()) },
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
