package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// gateNamespace is the Prometheus namespace for every metric in this
	// project.
	gateNamespace = "sessiongate"

	sessionLabelName = "session"
	eventLabelName   = "event"
	opLabelName      = "op"
	kindLabelName    = "kind"
	statusLabelName  = "status"
)

const (
	StatusOK   = "ok"
	StatusFail = "fail"
)

var (
	// buckets for store operation latency, in milliseconds.
	storeOpBuckets = prometheus.ExponentialBuckets(0.1, 2, 14)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: gateNamespace,
			Name:      "sessions_active",
			Help:      "number of live client sessions held by the registry",
		})

	ObserversConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: gateNamespace,
			Name:      "observers_connected",
			Help:      "number of observers attached to the event hub",
		})

	LifecycleEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: gateNamespace,
			Name:      "lifecycle_events_total",
			Help:      "lifecycle events broadcast to observers, by event name",
		}, []string{eventLabelName})

	StoreOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: gateNamespace,
			Name:      "store_op_duration_ms",
			Help:      "session store operation latency in milliseconds",
			Buckets:   storeOpBuckets,
		}, []string{opLabelName})

	SendTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: gateNamespace,
			Name:      "send_total",
			Help:      "outbound sends by kind (text/buttons) and status",
		}, []string{kindLabelName, statusLabelName})

	metricRegisterer prometheus.Registerer
)

// GetRegisterer returns the global Prometheus Registerer.
// Falls back to prometheus.DefaultRegisterer when Register was never called.
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register registers every metric defined above.
// Should be called once from an init path.
func Register(r prometheus.Registerer) {
	r.MustRegister(SessionsActive)
	r.MustRegister(ObserversConnected)
	r.MustRegister(LifecycleEvents)
	r.MustRegister(StoreOpDuration)
	r.MustRegister(SendTotal)
	metricRegisterer = r
}
