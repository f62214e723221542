// Package metrics exposes the service's prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/cinema-booking/internal/middleware"
)

const namespace = "cinema"

type Metrics struct {
	registry *prometheus.Registry

	bookingsCreated   *prometheus.CounterVec
	bookingsFailed    *prometheus.CounterVec
	bookingsCancelled *prometheus.CounterVec
	bookingsExpired   prometheus.Counter
	activityWritten   prometheus.Counter
	activityDropped   *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New registers every collector on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		bookingsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bookings_created_total",
			Help: "Bookings committed, by initial status.",
		}, []string{"status"}),
		bookingsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bookings_failed_total",
			Help: "Booking attempts rejected or failed, by error kind.",
		}, []string{"kind"}),
		bookingsCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bookings_cancelled_total",
			Help: "Bookings cancelled, by who cancelled them.",
		}, []string{"by"}),
		bookingsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bookings_expired_total",
			Help: "Pending bookings cancelled by the expiry sweep.",
		}),
		activityWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "activity_entries_written_total",
			Help: "Activity entries persisted.",
		}),
		activityDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "activity_entries_dropped_total",
			Help: "Activity entries lost, by reason.",
		}, []string{"reason"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests served.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.bookingsCreated, m.bookingsFailed, m.bookingsCancelled, m.bookingsExpired,
		m.activityWritten, m.activityDropped,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) BookingCreated(status string) {
	if m != nil {
		m.bookingsCreated.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) BookingFailed(kind string) {
	if m != nil {
		m.bookingsFailed.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) BookingCancelled(by string) {
	if m != nil {
		m.bookingsCancelled.WithLabelValues(by).Inc()
	}
}

func (m *Metrics) BookingsExpired(n int) {
	if m != nil && n > 0 {
		m.bookingsExpired.Add(float64(n))
	}
}

func (m *Metrics) ActivityWritten() {
	if m != nil {
		m.activityWritten.Inc()
	}
}

func (m *Metrics) ActivityDropped(reason string) {
	if m != nil {
		m.activityDropped.WithLabelValues(reason).Inc()
	}
}

// ObserveHTTP is a middleware.Observer. Unmatched routes share one label
// so raw paths never become label values.
func (m *Metrics) ObserveHTTP(r middleware.ResponseInfo) {
	if m == nil {
		return
	}
	route := r.Route
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(r.Status)).Inc()
	m.httpDuration.WithLabelValues(r.Method, route).Observe(r.Duration.Seconds())
}
