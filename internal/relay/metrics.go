package relay

import "github.com/prometheus/client_golang/prometheus"

// metrics are the server's Prometheus collectors.
type metrics struct {
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	codesIssued       prometheus.Counter
	messagesDelivered *prometheus.CounterVec
	devicesLinked     prometheus.Counter
	preKeyUploads     *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		codesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_provisioning_codes_issued_total",
			Help: "Provisioning codes handed out.",
		}),
		messagesDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_provisioning_messages_total",
				Help: "Provisioning messages submitted, by outcome.",
			},
			[]string{"result"},
		),
		devicesLinked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_devices_linked_total",
			Help: "Secondary devices linked.",
		}),
		preKeyUploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_prekey_uploads_total",
				Help: "Pre-key bundles uploaded, by identity role.",
			},
			[]string{"role"},
		),
	}
	reg.MustRegister(
		m.requests,
		m.requestDuration,
		m.codesIssued,
		m.messagesDelivered,
		m.devicesLinked,
		m.preKeyUploads,
	)
	return m
}
