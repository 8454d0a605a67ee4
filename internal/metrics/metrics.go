package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds counters for quota admission and usage accounting.
type Metrics struct {
	admissions      *prometheus.CounterVec
	increments      *prometheus.CounterVec
	storageFailures *prometheus.CounterVec
	expiredWindows  prometheus.Counter
}

// Admission decision label values.
const (
	DecisionAllowed  = "allowed"
	DecisionDenied   = "denied"
	DecisionDegraded = "degraded"
)

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatquota",
			Name:      "admissions_total",
			Help:      "Total number of chat request admission checks.",
		}, []string{"user_type", "decision"}),
		increments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatquota",
			Name:      "usage_increments_total",
			Help:      "Total number of usage increments, by outcome.",
		}, []string{"status"}),
		storageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatquota",
			Name:      "storage_failures_total",
			Help:      "Total number of usage store failures, by operation.",
		}, []string{"operation"}),
		expiredWindows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatquota",
			Name:      "expired_windows_total",
			Help:      "Total number of expired usage windows detected on read.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.admissions, m.increments, m.storageFailures, m.expiredWindows} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

func (m *Metrics) RecordAdmission(userType, decision string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(userType, decision).Inc()
}

// RecordIncrement counts an increment, labelled failed when err is non-nil.
func (m *Metrics) RecordIncrement(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.increments.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordStorageFailure(operation string) {
	if m == nil {
		return
	}
	m.storageFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordExpiredWindow() {
	if m == nil {
		return
	}
	m.expiredWindows.Inc()
}
