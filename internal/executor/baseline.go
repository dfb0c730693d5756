package executor

import (
	"github.com/mwiater/prefetchbench/internal/dataset"
	"github.com/mwiater/prefetchbench/internal/device"
	"github.com/mwiater/prefetchbench/internal/gpt2"
	"github.com/mwiater/prefetchbench/internal/nn"
)

// Baseline runs the whole forward pass in order on a single stream, staging
// each layer's weights right before computing it.
type Baseline struct {
	kernels
	stream *device.Stream
	slot   []float32
}

// NewBaseline creates a baseline executor with its own stream.
func NewBaseline(dev *device.Device, model *gpt2.Model) (*Baseline, error) {
	k, err := newKernels(dev, model)
	if err != nil {
		return nil, err
	}
	s, err := dev.NewStream()
	if err != nil {
		return nil, err
	}
	return &Baseline{kernels: k, stream: s, slot: make([]float32, model.LayerLen())}, nil
}

func (b *Baseline) Name() string { return "baseline" }

func (b *Baseline) Streams() []*device.Stream { return []*device.Stream{b.stream} }

func (b *Baseline) Forward(batch dataset.TokenBatch) (*nn.Tensor, error) {
	if err := b.check(batch); err != nil {
		return nil, err
	}
	tokens := append([]int(nil), batch...)
	out := nn.NewTensor(b.model.OutputShape()...)
	last := b.model.NumLayers() - 1

	s := b.stream
	s.Launch(device.Label{Op: OpEmbed, Layer: 0}, b.embed(tokens))
	for i := 0; i <= last; i++ {
		s.Copy(device.Label{Op: OpPrefetch, Layer: i}, b.slot, b.model.HostLayer(i))
		s.Launch(device.Label{Op: OpCompute, Layer: i}, b.compute(b.slot))
	}
	s.Launch(device.Label{Op: OpFinalNorm, Layer: last}, b.finalNorm(out))

	if err := syncStreams(b.Streams()); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Baseline) Close() error {
	closeStreams(b.Streams())
	return nil
}
