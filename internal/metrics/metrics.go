// Package metrics holds the Prometheus collectors for pollers and the HTTP boundary.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"strata-netmon/internal/model"
)

const namespace = "netmon"

// Poll results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	pollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Upstream polls by domain and result",
		},
		[]string{"domain", "result"},
	)

	pollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of upstream polls",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"domain"},
	)

	lastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last committed snapshot",
		},
		[]string{"domain"},
	)

	domainFailing = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "domain_failing",
			Help:      "1 when the last poll of the domain failed",
		},
		[]string{"domain"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// ObservePoll records one completed poll.
func ObservePoll(domain model.Domain, d time.Duration, result string) {
	pollsTotal.WithLabelValues(string(domain), result).Inc()
	pollDuration.WithLabelValues(string(domain)).Observe(d.Seconds())
}

// MarkCommitted records a successful snapshot commit.
func MarkCommitted(domain model.Domain, at time.Time) {
	lastSuccess.WithLabelValues(string(domain)).Set(float64(at.Unix()))
	domainFailing.WithLabelValues(string(domain)).Set(0)
}

// MarkFailed records a failed poll.
func MarkFailed(domain model.Domain) {
	domainFailing.WithLabelValues(string(domain)).Set(1)
}

// ObserveRequest records one served HTTP request.
func ObserveRequest(route string, status int, d time.Duration) {
	httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
