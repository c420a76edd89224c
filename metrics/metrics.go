// Package metrics records conversation metrics on a private Prometheus
// registry. The CLI has no HTTP listener, so metrics are written to a
// node-exporter style textfile on exit.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/c360studio/intake/export"
	"github.com/c360studio/intake/validation"
)

// Recorder holds the intake metrics. It implements session.Observer.
type Recorder struct {
	registry *prometheus.Registry

	sessionsStarted   prometheus.Counter
	sessionsCompleted prometheus.Counter
	sessionsReset     prometheus.Counter
	answers           *prometheus.CounterVec
	rejections        *prometheus.CounterVec
	progress          prometheus.Gauge
	questions         prometheus.Gauge
	exports           *prometheus.CounterVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		sessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "sessions_started_total",
			Help:      "Conversations started",
		}),
		sessionsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "sessions_completed_total",
			Help:      "Conversations in which every question was answered",
		}),
		sessionsReset: f.NewCounter(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "sessions_reset_total",
			Help:      "Confirmed session resets",
		}),
		answers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "answers_total",
			Help:      "Submitted answers by validation result",
		}, []string{"result"}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "rejections_total",
			Help:      "Rejected answers by reason",
		}, []string{"reason"}),
		progress: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "intake",
			Name:      "progress_index",
			Help:      "Number of answered questions in the current session",
		}),
		questions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "intake",
			Name:      "catalog_questions",
			Help:      "Number of questions in the loaded catalog",
		}),
		exports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "exports_total",
			Help:      "Export attempts by format and result",
		}, []string{"format", "result"}),
	}
}

func (r *Recorder) Started()   { r.sessionsStarted.Inc() }
func (r *Recorder) Completed() { r.sessionsCompleted.Inc() }
func (r *Recorder) Reset()     { r.sessionsReset.Inc() }

func (r *Recorder) Accepted(string) {
	r.answers.WithLabelValues("accepted").Inc()
}

func (r *Recorder) Rejected(_ string, reason validation.Reason) {
	r.answers.WithLabelValues("rejected").Inc()
	r.rejections.WithLabelValues(string(reason)).Inc()
}

func (r *Recorder) Progressed(index, total int) {
	r.progress.Set(float64(index))
	r.questions.Set(float64(total))
}

// RecordExport counts one export attempt.
func (r *Recorder) RecordExport(format export.Format, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	r.exports.WithLabelValues(string(format), result).Inc()
}

// WriteTextfile writes every metric to path in the Prometheus text format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
