package benchmark

import (
	"testing"
	"time"

	"github.com/mwiater/prefetchbench/internal/dataset"
	"github.com/mwiater/prefetchbench/internal/device"
	"github.com/mwiater/prefetchbench/internal/executor"
	"github.com/mwiater/prefetchbench/internal/gpt2"
	"github.com/mwiater/prefetchbench/internal/models"
	"github.com/mwiater/prefetchbench/internal/timing"
)

const driverSeqLen = 8

func meanThroughput(t *testing.T, prefetch bool) float64 {
	t.Helper()
	model, err := gpt2.New(models.Config{EmbedDim: 16, NumHeads: 2, NumLayers: 6}, driverSeqLen, 64, 7)
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	dev, err := device.Open(device.Options{
		TransferBandwidth: float64(4*model.LayerLen()) / 0.008,
		LaunchLatency:     8 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("device: %v", err)
	}
	defer dev.Close()

	var ex executor.Executor
	if prefetch {
		ex, err = executor.NewPrefetching(dev, model, 3)
	} else {
		ex, err = executor.NewBaseline(dev, model)
	}
	if err != nil {
		t.Fatalf("executor: %v", err)
	}
	defer ex.Close()

	source, err := dataset.New(3, driverSeqLen, 64, 1)
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	d, err := NewDriver(ex, source, timing.Wrap(dev), "tiny", 1, 2, nil)
	if err != nil {
		t.Fatalf("driver: %v", err)
	}
	if err := d.Warmup(); err != nil {
		t.Fatalf("warmup: %v", err)
	}
	if err := d.Measure(); err != nil {
		t.Fatalf("measure: %v", err)
	}

	result := &BenchmarkResult{SeqLen: driverSeqLen}
	for i, s := range d.Samples() {
		result.Iterations = append(result.Iterations, IterationResult{Iteration: i + 1, Stats: IterationStats{ElapsedMs: s.ElapsedMs}})
	}
	if err := calculateAggregates(result); err != nil {
		t.Fatalf("aggregates: %v", err)
	}

	util := d.Utilization()
	if len(util) != len(ex.Streams()) {
		t.Fatalf("expected one utilization entry per stream, got %d", len(util))
	}
	for _, u := range util {
		if u.Fraction < 0 || u.Fraction > 1 {
			t.Fatalf("utilization out of range: %+v", u)
		}
	}
	return result.Throughput
}

func TestPrefetchThroughputNotBelowBaseline(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	base := meanThroughput(t, false)
	pre := meanThroughput(t, true)
	t.Logf("baseline %.1f tokens/sec, prefetch %.1f tokens/sec", base, pre)
	if base <= 0 || pre <= 0 {
		t.Fatalf("expected positive throughput, got %v and %v", base, pre)
	}
	if pre < base {
		t.Fatalf("prefetch throughput %.1f below baseline %.1f", pre, base)
	}
}

func TestMeasureRequiresWarmup(t *testing.T) {
	dev, err := device.Open(device.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()
	s, err := dev.NewStream()
	if err != nil {
		t.Fatal(err)
	}
	fake := &fakeExecutor{name: "baseline", stream: s, seqLen: 4}
	source, err := dataset.New(2, 4, 10, 1)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewDriver(fake, source, timing.Wrap(dev), "m", 0, 3, nil); err == nil {
		t.Fatal("expected error for a source that does not cover both phases")
	}
	d, err := NewDriver(fake, source, timing.Wrap(dev), "m", 0, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Measure(); err == nil {
		t.Fatal("expected Measure before Warmup to fail")
	}
	if err := d.Warmup(); err != nil {
		t.Fatal(err)
	}
	if err := d.Measure(); err != nil {
		t.Fatal(err)
	}
	if fake.calls != 2 || len(d.Samples()) != 2 {
		t.Fatalf("expected 2 measured passes, got %d calls and %d samples", fake.calls, len(d.Samples()))
	}
}
