package ripple

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons reported by ripple_events_dropped_total.
const (
	DropReasonOptOut          = "opt_out"
	DropReasonInvalid         = "invalid"
	DropReasonBadRequest      = "bad_request"
	DropReasonPayloadTooLarge = "payload_too_large"
	DropReasonDailyQuota      = "daily_quota"
	DropReasonMaxRetries      = "max_retries"
	DropReasonStorage         = "storage"
)

// Metrics are the client's prometheus collectors. Every collector carries an
// "instance" const label with the configured instance name.
type Metrics struct {
	EventsEnqueued  prometheus.Counter
	EventsDelivered prometheus.Counter
	EventsDropped   *prometheus.CounterVec
	UploadRequests  *prometheus.CounterVec
	UploadDuration  prometheus.Histogram
	BridgeDropped   prometheus.CounterFunc
}

// NewMetrics registers the collectors on reg, or on a private registry when
// reg is nil. Collectors already registered under the same identity are reused.
func NewMetrics(reg prometheus.Registerer, instanceName string, bridgeDropped func() float64) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	labels := prometheus.Labels{"instance": instanceName}
	if bridgeDropped == nil {
		bridgeDropped = func() float64 { return 0 }
	}

	return &Metrics{
		EventsEnqueued: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ripple_events_enqueued_total",
			Help:        "Total number of events handed to the event pipeline",
			ConstLabels: labels,
		})),
		EventsDelivered: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ripple_events_delivered_total",
			Help:        "Total number of events accepted by the server",
			ConstLabels: labels,
		})),
		EventsDropped: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ripple_events_dropped_total",
			Help:        "Total number of events dropped without delivery",
			ConstLabels: labels,
		}, []string{"reason"})),
		UploadRequests: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ripple_upload_requests_total",
			Help:        "Total number of upload requests by response status",
			ConstLabels: labels,
		}, []string{"status"})),
		UploadDuration: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "ripple_upload_duration_seconds",
			Help:        "Duration of upload requests in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		})),
		BridgeDropped: register(reg, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "ripple_bridge_events_dropped_total",
			Help:        "Total number of bridge events dropped before a receiver attached",
			ConstLabels: labels,
		}, bridgeDropped)),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) dropped(reason string, n int) {
	if n > 0 {
		m.EventsDropped.WithLabelValues(reason).Add(float64(n))
	}
}
