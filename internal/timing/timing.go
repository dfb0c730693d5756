// Package timing measures device work between two timer markers.
package timing

import (
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/mwiater/prefetchbench/internal/device"
)

// Sample is the elapsed device time of one measured scope.
type Sample struct {
	ElapsedMs float64 `json:"elapsed_ms"`
}

// Samples accumulates measurements in the order they were taken.
type Samples []Sample

// Millis returns the elapsed times in milliseconds.
func (s Samples) Millis() []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = v.ElapsedMs
	}
	return out
}

// MeasurementError reports a timer that could not be acquired, read or released.
type MeasurementError struct {
	Op  string
	Err error
}

func (e *MeasurementError) Error() string {
	return fmt.Sprintf("measurement %s failed: %v", e.Op, e.Err)
}

func (e *MeasurementError) Unwrap() error { return e.Err }

// Measure runs fn between a start and a stop marker and returns the elapsed
// time once all device work issued in between has completed. If fn fails the
// timer is released and fn's error is returned as is.
func Measure(dev *device.Device, fn func() error) (Sample, error) {
	timer, err := dev.AcquireTimer()
	if err != nil {
		return Sample{}, &MeasurementError{Op: "acquire", Err: err}
	}

	timer.Start()
	if err := fn(); err != nil {
		if relErr := timer.Release(); relErr != nil {
			klog.Warningf("releasing timer after failed scope: %v", relErr)
		}
		return Sample{}, err
	}

	elapsed, stopErr := timer.Stop()
	if relErr := timer.Release(); relErr != nil {
		return Sample{}, &MeasurementError{Op: "release", Err: relErr}
	}
	if stopErr != nil {
		return Sample{}, &MeasurementError{Op: "stop", Err: stopErr}
	}
	return Sample{ElapsedMs: float64(elapsed) / float64(time.Millisecond)}, nil
}

// Block measures one scope.
type Block func(fn func() error) (Sample, error)

// Wrap returns a Block bound to dev.
func Wrap(dev *device.Device) Block {
	return func(fn func() error) (Sample, error) { return Measure(dev, fn) }
}
