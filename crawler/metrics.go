package crawler

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks crawl outcomes.
type Metrics struct {
	OutcomesTotal *prometheus.CounterVec
	RetriesTotal  prometheus.Counter
	FailuresTotal *prometheus.CounterVec
	InFlight      prometheus.Gauge
}

// NewMetrics registers the crawl metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	outcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_items_total",
			Help: "Crawl items by final state.",
		},
		[]string{"state"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_retries_total",
			Help: "Crawl items re-queued after a first failure.",
		},
	)
	failures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_attempt_failures_total",
			Help: "Failed attempts by classification.",
		},
		[]string{"class"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawler_in_flight",
			Help: "Items currently being processed.",
		},
	)
	reg.MustRegister(outcomes, retries, failures, inFlight)
	return &Metrics{
		OutcomesTotal: outcomes,
		RetriesTotal:  retries,
		FailuresTotal: failures,
		InFlight:      inFlight,
	}
}

func (m *Metrics) outcome(state string) {
	if m == nil {
		return
	}
	m.OutcomesTotal.WithLabelValues(state).Inc()
}

func (m *Metrics) retry() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

func (m *Metrics) failure(c Code) {
	if m == nil {
		return
	}
	m.FailuresTotal.WithLabelValues(c.String()).Inc()
}

func (m *Metrics) track(delta float64) {
	if m == nil {
		return
	}
	m.InFlight.Add(delta)
}
