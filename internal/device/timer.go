package device

import (
	"time"

	"github.com/pkg/errors"
)

// Timer measures device time from Start to a stop marker recorded on the
// default stream after a device-wide barrier. It holds one of the device's
// timer slots until Release.
type Timer struct {
	dev      *Device
	start    time.Time
	released bool
}

// Start stamps the start time on the host, before any work issued after it
// can begin on any stream.
func (t *Timer) Start() {
	t.start = time.Now()
}

// Stop waits for all device work to finish, records the stop marker and
// returns the elapsed time. Faults raised by the barrier are returned.
func (t *Timer) Stop() (time.Duration, error) {
	if t.released {
		return 0, ErrTimerReleased
	}
	if t.start.IsZero() {
		return 0, errors.New("device: timer stopped before start")
	}
	if err := t.dev.Synchronize(); err != nil {
		return 0, errors.Wrap(err, "timer barrier")
	}
	stop := t.dev.defaultStream.Record()
	if err := stop.Synchronize(); err != nil {
		return 0, errors.Wrap(err, "timer stop marker")
	}
	return stop.Time().Sub(t.start), nil
}

// Release returns the timer slot to the device.
func (t *Timer) Release() error {
	if t.released {
		return ErrTimerReleased
	}
	t.released = true
	<-t.dev.timers
	return nil
}
