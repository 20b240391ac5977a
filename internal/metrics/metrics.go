// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the pipeline.
//
// It exposes a narrow interface (Backend) for counters and duration
// observations, and a global, pluggable backend that defaults to a no-op so
// metrics calls are always safe. Concrete systems live in subpackages:
// prompush (Prometheus Pushgateway) and datadog (DogStatsD).
package metrics

import "time"

// Metric names shared by all backends.
const (
	StepTotal    = "datalake_step_total"
	StepDuration = "datalake_step_duration_seconds"
	RecordsTotal = "datalake_records_total"
	FilesTotal   = "datalake_files_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep counts one pipeline step and observes its duration, labelled
// with its outcome.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}
	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// Row kinds reported through RecordRow.
const (
	KindSongRecords = "song_records"
	KindLogEvents   = "log_events"
	KindParseErrors = "parse_errors"
	KindPlays       = "plays"
	KindUsers       = "users"
	KindTime        = "time"
	KindSongplays   = "songplays"
	KindUnmatched   = "unmatched"
	KindMissingTS   = "missing_ts"
	KindWritten     = "written"
)

// RecordRow increments a record-level counter for the given job and kind.
// Non-positive deltas are ignored.
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RecordsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordFiles counts Parquet files committed for a table.
func RecordFiles(job, table string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(FilesTotal, float64(delta), Labels{
		"job":   job,
		"table": table,
	})
}
