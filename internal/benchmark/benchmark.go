// internal/benchmark/benchmark.go
package benchmark

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/mwiater/prefetchbench/internal/appconfig"
	"github.com/mwiater/prefetchbench/internal/dataset"
	"github.com/mwiater/prefetchbench/internal/device"
	"github.com/mwiater/prefetchbench/internal/executor"
	"github.com/mwiater/prefetchbench/internal/gpt2"
	"github.com/mwiater/prefetchbench/internal/logging"
	"github.com/mwiater/prefetchbench/internal/models"
	"github.com/mwiater/prefetchbench/internal/timing"
)

var (
	newExecutor    = defaultExecutor
	writeResultsFn = writeResults
)

// progressOutput receives the progress bar when enabled.
var progressOutput io.Writer = os.Stderr

var throughputColor = color.New(color.FgGreen, color.Bold)

// defaultExecutor builds the model and the executor selected by cfg.
// Weights, staging slots and the workspace are reserved on dev before any of
// them is allocated, so a preset that does not fit fails with
// device.ErrOutOfMemory instead of exhausting the process.
func defaultExecutor(cfg appconfig.Config, dev *device.Device, mc models.Config) (executor.Executor, error) {
	slots := 1
	if cfg.EnablePrefetch {
		slots = cfg.NumStreams + 1
	}
	need := gpt2.Footprint(mc, cfg.SeqLen, dataset.DefaultVocabSize, slots)
	if err := dev.Reserve(cfg.Model, need); err != nil {
		return nil, err
	}
	model, err := gpt2.New(mc, cfg.SeqLen, dataset.DefaultVocabSize, cfg.Seed)
	if err != nil {
		dev.Free(need)
		return nil, err
	}
	logging.Debugf("model %s: %d layers of %d floats, vocabulary %d, %s reserved",
		cfg.Model, model.NumLayers(), model.LayerLen(), model.VocabSize(), humanize.Bytes(uint64(need)))
	if cfg.EnablePrefetch {
		return executor.NewPrefetching(dev, model, cfg.NumStreams)
	}
	return executor.NewBaseline(dev, model)
}

// resolveSeed maps the zero seed to a time based one.
func resolveSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return time.Now().UnixNano()
}

// Run benchmarks the executor selected by cfg and prints the average throughput.
func Run(cfg appconfig.Config, out io.Writer) (*BenchmarkResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mc, err := cfg.ModelConfig()
	if err != nil {
		return nil, err
	}
	latency, err := cfg.LaunchLatencyDuration()
	if err != nil {
		return nil, err
	}
	cfg.Seed = resolveSeed(cfg.Seed)

	printBanner(out, cfg)

	dev, err := device.Open(device.Options{
		Ordinal:           cfg.Device,
		TransferBandwidth: cfg.TransferBandwidth(),
		LaunchLatency:     latency,
		MemoryBytes:       cfg.MemoryBytes(),
		Autotune:          cfg.EnableCudnnBenchmark,
	})
	if err != nil {
		return nil, fmt.Errorf("open device: %w", err)
	}
	defer dev.Close()

	exec, err := newExecutor(cfg, dev, mc)
	if err != nil {
		return nil, err
	}
	defer exec.Close()

	source, err := dataset.New(cfg.Warmups+cfg.Iterations, cfg.SeqLen, dataset.DefaultVocabSize, cfg.Seed)
	if err != nil {
		return nil, err
	}

	var progress io.Writer
	if cfg.Progress {
		progress = progressOutput
	}
	driver, err := NewDriver(exec, source, timing.Wrap(dev), cfg.Model, cfg.Warmups, cfg.Iterations, progress)
	if err != nil {
		return nil, err
	}

	startedAt := time.Now()
	logging.LogEvent("Running %s executor on %s (device %d, autotune=%v) with %d warm-up and %d measured iterations",
		exec.Name(), cfg.Model, dev.Ordinal(), dev.Tuner().Autotune(), cfg.Warmups, cfg.Iterations)
	if err := driver.Warmup(); err != nil {
		return nil, err
	}
	if err := driver.Measure(); err != nil {
		return nil, err
	}

	numStreams := 1
	if cfg.EnablePrefetch {
		numStreams = cfg.NumStreams
	}
	result := &BenchmarkResult{
		RunID:          uuid.NewString(),
		StartedAt:      startedAt,
		ModelName:      cfg.Model,
		Executor:       exec.Name(),
		NumStreams:     numStreams,
		SeqLen:         cfg.SeqLen,
		Seed:           cfg.Seed,
		Warmups:        cfg.Warmups,
		BenchmarkCount: cfg.Iterations,
		Streams:        driver.Utilization(),
	}
	for i, s := range driver.Samples() {
		tps, err := tokensPerSecond(cfg.SeqLen, s.ElapsedMs)
		if err != nil {
			return nil, err
		}
		result.Iterations = append(result.Iterations, IterationResult{
			Iteration: i + 1,
			Stats:     IterationStats{ElapsedMs: s.ElapsedMs, TokensPerSecond: tps},
		})
	}
	if err := calculateAggregates(result); err != nil {
		return nil, err
	}
	logging.Debugf("latency ms: mean=%.3f stddev=%.3f p50=%.3f p90=%.3f min=%.3f max=%.3f",
		result.Latency.MeanMs, result.Latency.StdDevMs, result.Latency.P50Ms, result.Latency.P90Ms,
		result.MinStats.ElapsedMs, result.MaxStats.ElapsedMs)

	throughputColor.Fprintf(out, "Avg. throughput: %v tokens/sec\n", result.Throughput)

	if cfg.ShowStreams {
		printStreams(out, result.Streams)
	}
	if cfg.ExportPath != "" {
		if err := writeResultsFn(cfg.ExportPath, map[string]*BenchmarkResult{resultKey(result): result}); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Compare runs the baseline and the prefetching executor on the same
// configuration and reports the speedup of the latter.
func Compare(cfg appconfig.Config, out io.Writer) (*Comparison, error) {
	export := cfg.ExportPath
	cfg.ExportPath = ""
	cfg.Seed = resolveSeed(cfg.Seed)

	baseCfg := cfg
	baseCfg.EnablePrefetch = false
	base, err := Run(baseCfg, out)
	if err != nil {
		return nil, fmt.Errorf("baseline run: %w", err)
	}

	preCfg := cfg
	preCfg.EnablePrefetch = true
	pre, err := Run(preCfg, out)
	if err != nil {
		return nil, fmt.Errorf("prefetch run: %w", err)
	}

	cmp := &Comparison{Baseline: base, Prefetch: pre}
	if base.Throughput > 0 {
		cmp.Speedup = pre.Throughput / base.Throughput
	}
	printComparison(out, cmp)

	if export != "" {
		results := map[string]*BenchmarkResult{resultKey(base): base, resultKey(pre): pre}
		if err := writeResultsFn(export, results); err != nil {
			return nil, err
		}
	}
	return cmp, nil
}

// tokensPerSecond converts a latency into throughput. A latency that is not
// positive and finite cannot yield a throughput and is a measurement error.
func tokensPerSecond(seqLen int, ms float64) (float64, error) {
	if !(ms > 0) || math.IsInf(ms, 1) {
		return 0, &timing.MeasurementError{Op: "throughput", Err: fmt.Errorf("elapsed time %vms is not positive and finite", ms)}
	}
	return float64(seqLen) / (ms / 1000), nil
}

// calculateAggregates fills mean, min, max and spread statistics. The
// headline throughput is derived from the mean latency only.
func calculateAggregates(result *BenchmarkResult) error {
	if len(result.Iterations) == 0 {
		return nil
	}

	result.MinStats = result.Iterations[0].Stats
	result.MaxStats = result.Iterations[0].Stats

	ms := make([]float64, 0, len(result.Iterations))
	for _, iter := range result.Iterations {
		ms = append(ms, iter.Stats.ElapsedMs)

		if iter.Stats.ElapsedMs < result.MinStats.ElapsedMs {
			result.MinStats.ElapsedMs = iter.Stats.ElapsedMs
		}
		if iter.Stats.ElapsedMs > result.MaxStats.ElapsedMs {
			result.MaxStats.ElapsedMs = iter.Stats.ElapsedMs
		}
		if iter.Stats.TokensPerSecond < result.MinStats.TokensPerSecond {
			result.MinStats.TokensPerSecond = iter.Stats.TokensPerSecond
		}
		if iter.Stats.TokensPerSecond > result.MaxStats.TokensPerSecond {
			result.MaxStats.TokensPerSecond = iter.Stats.TokensPerSecond
		}
	}

	mean := stat.Mean(ms, nil)
	result.Latency.MeanMs = mean
	if len(ms) > 1 {
		result.Latency.StdDevMs = stat.StdDev(ms, nil)
	}
	sorted := append([]float64(nil), ms...)
	sort.Float64s(sorted)
	result.Latency.P50Ms = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	result.Latency.P90Ms = stat.Quantile(0.9, stat.Empirical, sorted, nil)

	tps, err := tokensPerSecond(result.SeqLen, mean)
	if err != nil {
		return err
	}
	result.AverageStats.ElapsedMs = mean
	result.AverageStats.TokensPerSecond = tps
	result.Throughput = tps
	return nil
}

func resultKey(r *BenchmarkResult) string {
	return fmt.Sprintf("%s-%s-%d", r.ModelName, r.Executor, r.NumStreams)
}

// writeResults writes the benchmark results to a JSON file. When path is an
// existing directory the file name is derived from the result keys.
func writeResults(path string, results map[string]*BenchmarkResult) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		var keys []string
		for key := range results {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		path = filepath.Join(path, Slugify(strings.Join(keys, "-"))+".json")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating results directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating result file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(results); err != nil {
		return fmt.Errorf("error writing results to file: %w", err)
	}

	logging.LogEvent("Benchmark results written to %s", path)

	return nil
}

// Slugify converts a string into a "slug" format,
// including replacing colons (:) with underscores (_).
func Slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, ":", "_")
	re := regexp.MustCompile(`[^a-z0-9_]+`)
	s = re.ReplaceAllString(s, "-")
	s = regexp.MustCompile(`-+`).ReplaceAllString(s, "-")
	s = strings.Trim(s, "-_")

	return s
}
