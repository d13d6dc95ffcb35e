// Package metrics is the process-wide metrics facade.
//
// Core packages record through the package-level helpers; cmd/* choose the
// backend once at startup with SetBackend. The default backend discards
// everything, so library code and tests never need to configure metrics.
package metrics

import (
	"sync/atomic"
	"time"
)

// Labels are metric dimensions. Backends decide which keys they keep.
type Labels map[string]string

// Backend receives metric observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

type holder struct{ b Backend }

var current atomic.Pointer[holder]

func init() { current.Store(&holder{b: nopBackend{}}) }

// SetBackend installs b. A nil b restores the discarding backend.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	current.Store(&holder{b: b})
}

func backend() Backend { return current.Load().b }

func IncCounter(name string, delta float64, labels Labels) {
	backend().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	backend().ObserveHistogram(name, value, labels)
}

// Flush asks the backend to submit buffered data.
func Flush() error { return backend().Flush() }

// RecordStage counts one pipeline stage outcome and its duration.
// status is "ok", "degraded" or "error".
func RecordStage(stage, status string, d time.Duration) {
	IncCounter("plotprep_stage_total", 1, Labels{"stage": stage, "status": status})
	ObserveHistogram("plotprep_stage_duration_seconds", d.Seconds(), Labels{"stage": stage})
}

// AddRows counts rows by kind ("loaded", "prepared", "sampled_out").
func AddRows(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter("plotprep_rows_total", float64(n), Labels{"kind": kind})
}
