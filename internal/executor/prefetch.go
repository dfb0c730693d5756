package executor

import (
	"k8s.io/klog/v2"

	"github.com/mwiater/prefetchbench/internal/dataset"
	"github.com/mwiater/prefetchbench/internal/device"
	"github.com/mwiater/prefetchbench/internal/gpt2"
	"github.com/mwiater/prefetchbench/internal/models"
	"github.com/mwiater/prefetchbench/internal/nn"
)

// StageDescriptor is the schedule of one layer within a forward pass.
type StageDescriptor struct {
	Layer int
	// Stream is the pool index the layer computes on.
	Stream int
	// PrefetchStream is the pool index that stages the layer's weights.
	PrefetchStream int
	// Ahead is set when the layer's weights are staged before the previous
	// layer's compute is issued.
	Ahead bool
	// Slot is the staging buffer holding the layer's weights.
	Slot int
}

// BuildPlan assigns layers round-robin to streams and staging slots.
// With more than one stream, layer i+1 is staged on layer i's stream ahead
// of layer i's compute; with one stream every layer is staged inline.
func BuildPlan(numLayers, numStreams int) []StageDescriptor {
	slots := numStreams + 1
	plan := make([]StageDescriptor, numLayers)
	for i := range plan {
		st := StageDescriptor{Layer: i, Stream: i % numStreams, PrefetchStream: i % numStreams, Slot: i % slots}
		if numStreams > 1 && i > 0 {
			st.PrefetchStream = (i - 1) % numStreams
			st.Ahead = true
		}
		plan[i] = st
	}
	return plan
}

// Prefetching overlaps weight staging with compute across a pool of streams.
type Prefetching struct {
	kernels
	streams []*device.Stream
	slots   [][]float32
	plan    []StageDescriptor
}

// NewPrefetching creates an executor owning numStreams device streams and
// numStreams+1 layer-sized staging buffers.
func NewPrefetching(dev *device.Device, model *gpt2.Model, numStreams int) (*Prefetching, error) {
	if numStreams < 1 {
		return nil, &models.ConfigurationError{Field: "numStreams", Value: numStreams, Reason: "must be at least 1"}
	}
	k, err := newKernels(dev, model)
	if err != nil {
		return nil, err
	}
	p := &Prefetching{kernels: k, plan: BuildPlan(model.NumLayers(), numStreams)}
	for i := 0; i < numStreams; i++ {
		s, err := dev.NewStream()
		if err != nil {
			closeStreams(p.streams)
			return nil, err
		}
		p.streams = append(p.streams, s)
	}
	p.slots = make([][]float32, numStreams+1)
	for i := range p.slots {
		p.slots[i] = make([]float32, model.LayerLen())
	}
	klog.V(1).Infof("prefetching executor: %d streams, %d staging slots of %d floats",
		numStreams, len(p.slots), model.LayerLen())
	return p, nil
}

func (p *Prefetching) Name() string { return "prefetch" }

// Streams returns the pool in stream-index order.
func (p *Prefetching) Streams() []*device.Stream { return p.streams }

// Plan returns a copy of the per-layer schedule.
func (p *Prefetching) Plan() []StageDescriptor {
	return append([]StageDescriptor(nil), p.plan...)
}

// pass tracks the events of one forward pass.
type pass struct {
	p            *Prefetching
	embedDone    *device.Event
	prefetchDone []*device.Event
	computeDone  []*device.Event
}

func (ps *pass) prefetch(i int) {
	p := ps.p
	st := p.plan[i]
	s := p.streams[st.PrefetchStream]
	// The slot was last read by layer i-len(slots).
	if prev := i - len(p.slots); prev >= 0 {
		s.Wait(ps.computeDone[prev])
	}
	s.Copy(device.Label{Op: OpPrefetch, Layer: i}, p.slots[st.Slot], p.model.HostLayer(i))
	ps.prefetchDone[i] = s.Record()
}

func (ps *pass) compute(i int) {
	p := ps.p
	st := p.plan[i]
	s := p.streams[st.Stream]
	if i == 0 {
		s.Wait(ps.embedDone)
	} else {
		s.Wait(ps.computeDone[i-1])
	}
	s.Wait(ps.prefetchDone[i])
	s.Launch(device.Label{Op: OpCompute, Layer: i}, p.kernels.compute(p.slots[st.Slot]))
	ps.computeDone[i] = s.Record()
}

func (p *Prefetching) Forward(batch dataset.TokenBatch) (*nn.Tensor, error) {
	if err := p.check(batch); err != nil {
		return nil, err
	}
	tokens := append([]int(nil), batch...)
	out := nn.NewTensor(p.model.OutputShape()...)
	n := len(p.plan)
	ps := &pass{p: p, prefetchDone: make([]*device.Event, n), computeDone: make([]*device.Event, n)}

	first := p.streams[p.plan[0].Stream]
	first.Launch(device.Label{Op: OpEmbed, Layer: 0}, p.embed(tokens))
	ps.embedDone = first.Record()

	for i, st := range p.plan {
		if !st.Ahead {
			ps.prefetch(i)
		}
		if i+1 < n && p.plan[i+1].Ahead {
			ps.prefetch(i + 1)
		}
		ps.compute(i)
	}

	last := p.streams[p.plan[n-1].Stream]
	last.Launch(device.Label{Op: OpFinalNorm, Layer: n - 1}, p.finalNorm(out))

	if err := syncStreams(p.streams); err != nil {
		klog.V(1).Infof("prefetching forward failed: %v", err)
		return nil, err
	}
	return out, nil
}

func (p *Prefetching) Close() error {
	closeStreams(p.streams)
	return nil
}
