// Package executor runs GPT-2 forward passes on a simulated device.
//
// Baseline issues every operation on one stream. Prefetching spreads layers
// round-robin over a stream pool and stages the next layer's weights while
// the current layer computes.
package executor

import (
	"github.com/pkg/errors"

	"github.com/mwiater/prefetchbench/internal/dataset"
	"github.com/mwiater/prefetchbench/internal/device"
	"github.com/mwiater/prefetchbench/internal/gpt2"
	"github.com/mwiater/prefetchbench/internal/nn"
)

// Operation names used in device labels and StreamExecutionError.Op.
const (
	OpEmbed     = "embed"
	OpPrefetch  = "prefetch"
	OpCompute   = "compute"
	OpFinalNorm = "final_norm"
)

// Executor runs one forward pass per call. Calls must not overlap.
type Executor interface {
	// Name identifies the strategy in reports.
	Name() string
	// Forward returns the final hidden state of shape (seqLen, embedDim).
	Forward(batch dataset.TokenBatch) (*nn.Tensor, error)
	// Streams lists the device streams the executor issues work on.
	Streams() []*device.Stream
	// Close releases the streams.
	Close() error
}

// kernels binds a model and its activation workspace to device kernels.
type kernels struct {
	dev   *device.Device
	model *gpt2.Model
	ws    *gpt2.Workspace
}

func newKernels(dev *device.Device, model *gpt2.Model) (kernels, error) {
	if dev == nil {
		return kernels{}, errors.New("executor: nil device")
	}
	if model == nil {
		return kernels{}, errors.New("executor: nil model")
	}
	return kernels{dev: dev, model: model, ws: &gpt2.Workspace{}}, nil
}

func (k kernels) check(batch dataset.TokenBatch) error {
	if len(batch) != k.model.SeqLen() {
		return errors.Errorf("executor: batch has %d tokens, model expects %d", len(batch), k.model.SeqLen())
	}
	return nil
}

func (k kernels) embed(tokens []int) func() error {
	return func() error { return k.model.Embed(k.ws, tokens) }
}

func (k kernels) compute(slot []float32) func() error {
	return func() error {
		k.model.Forward(k.ws, k.model.View(slot), k.dev.Tuner())
		return nil
	}
}

func (k kernels) finalNorm(out *nn.Tensor) func() error {
	return func() error {
		k.model.FinalNorm(k.ws, out.Data)
		return nil
	}
}

func closeStreams(streams []*device.Stream) {
	for _, s := range streams {
		s.Close()
	}
}

// syncStreams drains every stream and converts collected faults into a
// StreamExecutionError naming the origin with the lowest layer index.
func syncStreams(streams []*device.Stream) error {
	var faults []error
	for _, s := range streams {
		if err := s.Synchronize(); err != nil {
			faults = append(faults, err)
		}
	}
	if len(faults) == 0 {
		return nil
	}
	return originError(faults)
}

func originError(faults []error) error {
	origin := device.OriginFault(faults)
	if origin == nil {
		var f *device.Fault
		if errors.As(faults[0], &f) {
			return &StreamExecutionError{Layer: f.Label.Layer, Stream: f.Stream, Op: f.Label.Op, Err: f}
		}
		return errors.Wrap(faults[0], "executor")
	}
	return &StreamExecutionError{Layer: origin.Label.Layer, Stream: origin.Stream, Op: origin.Label.Op, Err: origin.Err}
}
