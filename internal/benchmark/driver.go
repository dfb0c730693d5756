package benchmark

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/mwiater/prefetchbench/internal/dataset"
	"github.com/mwiater/prefetchbench/internal/executor"
	"github.com/mwiater/prefetchbench/internal/logging"
	"github.com/mwiater/prefetchbench/internal/timing"
)

// Driver runs the warm-up phase and then the measured phase against one
// executor. Any failed forward pass aborts the run.
type Driver struct {
	exec       executor.Executor
	source     *dataset.Source
	measure    timing.Block
	model      string
	warmups    int
	iterations int

	bar      *progressbar.ProgressBar
	warmedUp bool
	samples  timing.Samples
	wall     time.Duration
}

// NewDriver prepares a run of warmups untimed and iterations timed forward
// passes. source must hold exactly warmups+iterations batches. progress may
// be nil to disable the progress bar.
func NewDriver(exec executor.Executor, source *dataset.Source, measure timing.Block, model string, warmups, iterations int, progress io.Writer) (*Driver, error) {
	if warmups < 0 || iterations < 1 {
		return nil, fmt.Errorf("invalid phase sizes: warmups=%d iterations=%d", warmups, iterations)
	}
	if source.Len() != warmups+iterations {
		return nil, fmt.Errorf("batch source holds %d batches, run needs %d", source.Len(), warmups+iterations)
	}
	d := &Driver{
		exec:       exec,
		source:     source,
		measure:    measure,
		model:      model,
		warmups:    warmups,
		iterations: iterations,
	}
	if progress != nil {
		d.bar = progressbar.NewOptions(warmups+iterations,
			progressbar.OptionSetWriter(progress),
			progressbar.OptionSetDescription(exec.Name()),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("passes"),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionClearOnFinish(),
		)
	}
	return d, nil
}

func (d *Driver) step() {
	if d.bar != nil {
		_ = d.bar.Add(1)
	}
}

// Warmup runs the untimed passes that absorb one-time costs such as kernel autotuning.
func (d *Driver) Warmup() error {
	for i := 0; i < d.warmups; i++ {
		batch, err := d.source.Next()
		if err != nil {
			return fmt.Errorf("warm-up batch %d: %w", i+1, err)
		}
		if _, err := d.exec.Forward(batch); err != nil {
			return fmt.Errorf("warm-up iteration %d: %w", i+1, err)
		}
		logging.LogRun("warmup", d.exec.Name(), d.model, map[string]int{"iteration": i + 1})
		d.step()
	}
	d.warmedUp = true
	return nil
}

// Measure runs the timed passes. It must follow Warmup.
func (d *Driver) Measure() error {
	if !d.warmedUp {
		return errors.New("measure called before warm-up")
	}
	for _, s := range d.exec.Streams() {
		s.ResetBusy()
	}
	start := time.Now()
	for i := 0; i < d.iterations; i++ {
		batch, err := d.source.Next()
		if err != nil {
			return fmt.Errorf("measured batch %d: %w", i+1, err)
		}
		sample, err := d.measure(func() error {
			_, err := d.exec.Forward(batch)
			return err
		})
		if err != nil {
			return fmt.Errorf("measured iteration %d: %w", i+1, err)
		}
		d.samples = append(d.samples, sample)
		logging.LogRun("measure", d.exec.Name(), d.model, sample)
		d.step()
	}
	d.wall = time.Since(start)
	if d.bar != nil {
		_ = d.bar.Finish()
	}
	return nil
}

// Samples returns the measured latencies collected so far.
func (d *Driver) Samples() timing.Samples { return append(timing.Samples(nil), d.samples...) }

// Utilization reports per-stream busy time over the wall time of the measured phase.
func (d *Driver) Utilization() []StreamUtilization {
	var out []StreamUtilization
	for _, s := range d.exec.Streams() {
		busy := s.Busy()
		u := StreamUtilization{Stream: s.ID(), BusyMs: float64(busy) / float64(time.Millisecond)}
		if d.wall > 0 {
			u.Fraction = float64(busy) / float64(d.wall)
			if u.Fraction > 1 {
				u.Fraction = 1
			}
		}
		out = append(out, u)
	}
	return out
}
