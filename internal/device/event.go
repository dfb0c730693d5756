package device

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Event marks a point in a stream. It completes once the stream reaches it.
type Event struct {
	stream int
	done   chan struct{}
	at     time.Time
	err    error
}

func newEvent(stream int) *Event {
	return &Event{stream: stream, done: make(chan struct{})}
}

func (e *Event) complete(err error) {
	e.at = time.Now()
	e.err = err
	close(e.done)
}

func (e *Event) wait() error {
	<-e.done
	return e.err
}

// Stream returns the id of the stream the event was recorded on.
func (e *Event) Stream() int { return e.stream }

// Done reports whether the event has completed, without blocking.
func (e *Event) Done() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Synchronize blocks the host until the event completes and returns the
// fault its stream carried at that point.
func (e *Event) Synchronize() error { return e.wait() }

// Time returns the completion timestamp. It is zero until Done.
func (e *Event) Time() time.Time {
	if !e.Done() {
		return time.Time{}
	}
	return e.at
}

// Fault is a device-level execution failure on one stream.
// Upstream faults were inherited through a Wait on a faulted event.
type Fault struct {
	Stream   int
	Label    Label
	Upstream bool
	Err      error
}

func (f *Fault) Error() string {
	if f.Upstream {
		return fmt.Sprintf("stream %d: waiting at %s: upstream fault: %v", f.Stream, f.Label, f.Err)
	}
	return fmt.Sprintf("stream %d: %s: %v", f.Stream, f.Label, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// OriginFault picks the fault that started a failure among errs: the
// non-upstream fault with the lowest layer. Ties keep the earlier entry.
// It returns nil when errs holds no origin fault.
func OriginFault(errs []error) *Fault {
	var origin *Fault
	for _, err := range errs {
		var f *Fault
		if !errors.As(err, &f) || f.Upstream {
			continue
		}
		if origin == nil || f.Label.Layer < origin.Label.Layer {
			origin = f
		}
	}
	return origin
}
