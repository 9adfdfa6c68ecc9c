// Package metrics exposes audit and HTTP metrics through Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records SigmaGuard metrics. A nil *Recorder is valid and records nothing.
type Recorder struct {
	audits        *prometheus.CounterVec
	riskScore     *prometheus.GaugeVec
	riskLevel     *prometheus.GaugeVec
	auditDuration *prometheus.HistogramVec
	forwardFilled prometheus.Counter
	lastBatch     prometheus.Gauge
	jobRuns       *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpInFlight  prometheus.Gauge
}

// New creates a recorder registered on reg
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		audits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigmaguard_audits_total",
				Help: "Instrument audits by outcome",
			},
			[]string{"status"},
		),
		riskScore: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sigmaguard_risk_score",
				Help: "Latest risk score per instrument",
			},
			[]string{"ticker"},
		),
		riskLevel: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sigmaguard_risk_level",
				Help: "Latest SOP level per instrument",
			},
			[]string{"ticker"},
		),
		auditDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sigmaguard_audit_duration_seconds",
				Help:    "Duration of audits in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180},
			},
			[]string{"scope"},
		),
		forwardFilled: f.NewCounter(prometheus.CounterOpts{
			Name: "sigmaguard_forward_returns_filled_total",
			Help: "Ledger entries whose forward returns were resolved",
		}),
		lastBatch: f.NewGauge(prometheus.GaugeOpts{
			Name: "sigmaguard_last_batch_timestamp_seconds",
			Help: "Unix time the last batch finished",
		}),
		jobRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigmaguard_job_runs_total",
				Help: "Scheduled job executions by job and result",
			},
			[]string{"job", "result"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigmaguard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sigmaguard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"route", "method"},
		),
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "sigmaguard_http_in_flight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
	}
}

// RecordAudit records one instrument outcome and, when scored, its latest score
func (r *Recorder) RecordAudit(ticker, status string, score float64, level int, scored bool, d time.Duration) {
	if r == nil {
		return
	}
	r.audits.WithLabelValues(status).Inc()
	r.auditDuration.WithLabelValues("instrument").Observe(d.Seconds())
	if scored {
		r.riskScore.WithLabelValues(ticker).Set(score)
		r.riskLevel.WithLabelValues(ticker).Set(float64(level))
	}
}

// RecordBatch records a finished batch
func (r *Recorder) RecordBatch(d time.Duration, finished time.Time) {
	if r == nil {
		return
	}
	r.auditDuration.WithLabelValues("batch").Observe(d.Seconds())
	r.lastBatch.Set(float64(finished.Unix()))
}

// RecordForwardFilled adds n resolved forward-return rows
func (r *Recorder) RecordForwardFilled(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.forwardFilled.Add(float64(n))
}

// RecordJob records one scheduled job run
func (r *Recorder) RecordJob(job string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.jobRuns.WithLabelValues(job, result).Inc()
}

// RecordHTTP records one served request
func (r *Recorder) RecordHTTP(route, method string, status int, d time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// InFlight adjusts the in-flight request gauge by delta
func (r *Recorder) InFlight(delta float64) {
	if r == nil {
		return
	}
	r.httpInFlight.Add(delta)
}
