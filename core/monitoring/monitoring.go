// Package monitoring is the error reporting facade. Components report
// through the package-level functions so the backend stays swappable;
// without Init everything is a no-op.
package monitoring

import "time"

// Monitor receives unexpected errors and panics.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Recover()
	Flush(timeout time.Duration)
}

// NopMonitor discards everything.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}

var current Monitor = NopMonitor{}

// Init sets the global monitor implementation.
func Init(m Monitor) {
	if m != nil {
		current = m
	}
}

// CaptureException records the error with optional tags.
func CaptureException(err error, tags map[string]string) {
	current.CaptureException(err, tags)
}

// Recover captures a panic in the calling goroutine and re-raises it.
func Recover() {
	current.Recover()
}

// Flush drains buffered events before shutdown.
func Flush(d time.Duration) {
	current.Flush(d)
}
