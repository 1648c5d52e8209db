package obsanalytics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics holds the Prometheus collectors of the analytics pipeline. A nil
// *Metrics records nothing.
type Metrics struct {
	queryDuration      *prometheus.HistogramVec
	definitionRequests *prometheus.CounterVec
	resultRows         prometheus.Histogram
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "obsanalytics",
			Name:      "query_duration_seconds",
			Help:      "Duration of observation aggregation queries.",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 10},
		}, []string{"outcome"}),
		definitionRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "obsanalytics",
			Name:      "definition_requests_total",
			Help:      "Measurement definition requests by category and outcome.",
		}, []string{"category", "outcome"}),
		resultRows: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "obsanalytics",
			Name:      "result_rows",
			Help:      "Number of groups returned per observation count request.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
}

func (m *Metrics) observeQuery(start time.Time, err error) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(outcome(err)).Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeDefinitionRequest(category string, err error) {
	if m == nil {
		return
	}
	m.definitionRequests.WithLabelValues(category, outcome(err)).Inc()
}

func (m *Metrics) observeResultRows(n int) {
	if m == nil {
		return
	}
	m.resultRows.Observe(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return outcomeFailure
	}
	return outcomeSuccess
}
