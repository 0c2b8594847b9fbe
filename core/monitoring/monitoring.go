// Package monitoring is the error-reporting boundary. The process-wide
// monitor defaults to a no-op and is replaced by infra/monitoring when
// Sentry is configured.
package monitoring

import (
	"sync/atomic"
	"time"
)

// Monitor reports unexpected failures.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	CapturePanic(v any)
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) CapturePanic(any)                          {}
func (NopMonitor) Flush(time.Duration)                       {}

type holder struct{ m Monitor }

var current atomic.Value

func init() { current.Store(holder{NopMonitor{}}) }

// Init sets the global monitor. A nil monitor is ignored.
func Init(m Monitor) {
	if m != nil {
		current.Store(holder{m})
	}
}

// Current returns the global monitor.
func Current() Monitor { return current.Load().(holder).m }

// CaptureException records err with the given tags. Nil errors are ignored.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	Current().CaptureException(err, tags)
}

// Recover reports a panic and re-raises it. It must be deferred directly.
func Recover() {
	if r := recover(); r != nil {
		m := Current()
		m.CapturePanic(r)
		m.Flush(2 * time.Second)
		panic(r)
	}
}

// Flush waits for buffered events to be sent.
func Flush(d time.Duration) { Current().Flush(d) }
