package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// JobName is the Pushgateway job the run metrics are grouped under
const JobName = "sparkify_etl"

// Statement outcomes
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Recorder collects the metrics of one run on a private registry
type Recorder struct {
	reg *prometheus.Registry

	statements  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	rows        *prometheus.CounterVec
	lastSuccess prometheus.Gauge
}

// NewRecorder creates a recorder with all collectors registered
func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		statements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sparkify_statements_total",
				Help: "Warehouse statements executed, by stage and outcome.",
			},
			[]string{"stage", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sparkify_statement_duration_seconds",
				Help:    "Wall time of each warehouse statement.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
			},
			[]string{"stage", "statement"},
		),
		rows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sparkify_rows_affected_total",
				Help: "Rows reported as affected by statements, by target table.",
			},
			[]string{"table"},
		),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sparkify_last_success_timestamp_seconds",
			Help: "Unix time of the last run that finished without error.",
		}),
	}
	r.reg.MustRegister(r.statements, r.duration, r.rows, r.lastSuccess)
	return r
}

// ObserveStatement records one executed statement
func (r *Recorder) ObserveStatement(stage, statement, table string, d time.Duration, rows int64, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	r.statements.WithLabelValues(stage, status).Inc()
	r.duration.WithLabelValues(stage, statement).Observe(d.Seconds())
	if err == nil && rows > 0 && table != "" {
		r.rows.WithLabelValues(table).Add(float64(rows))
	}
}

// MarkSuccess stamps the time a run completed
func (r *Recorder) MarkSuccess(at time.Time) {
	r.lastSuccess.Set(float64(at.Unix()))
}

// Gatherer exposes the private registry
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Push sends the collected metrics to the Pushgateway at url, grouped by
// run ID so concurrent runs do not overwrite each other.
func (r *Recorder) Push(ctx context.Context, url, runID string) error {
	if url == "" {
		return fmt.Errorf("metrics: pushgateway URL is required")
	}
	pusher := push.New(url, JobName).Gatherer(r.reg)
	if runID != "" {
		pusher = pusher.Grouping("run_id", runID)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("metrics: push to %s: %w", url, err)
	}
	return nil
}
