// internal/benchmark/types.go
package benchmark

import "time"

// BenchmarkResult holds the aggregated results of one benchmark run.
type BenchmarkResult struct {
	RunID          string              `json:"runId"`
	StartedAt      time.Time           `json:"startedAt"`
	ModelName      string              `json:"modelName"`
	Executor       string              `json:"executor"`
	NumStreams     int                 `json:"numStreams"`
	SeqLen         int                 `json:"seqLen"`
	Seed           int64               `json:"seed"`
	Warmups        int                 `json:"warmups"`
	BenchmarkCount int                 `json:"benchmarkCount"`
	AverageStats   IterationStats      `json:"averageStats"`
	MinStats       IterationStats      `json:"minStats"`
	MaxStats       IterationStats      `json:"maxStats"`
	Latency        LatencyStats        `json:"latency"`
	Throughput     float64             `json:"throughputTokensPerSec"`
	Iterations     []IterationResult   `json:"iterations"`
	Streams        []StreamUtilization `json:"streams,omitempty"`
}

// IterationResult holds the statistics for a single measured iteration.
type IterationResult struct {
	Iteration int            `json:"iteration"`
	Stats     IterationStats `json:"stats"`
}

// IterationStats contains the performance of one forward pass.
type IterationStats struct {
	ElapsedMs       float64 `json:"elapsedMs"`
	TokensPerSecond float64 `json:"tokensPerSecond"`
}

// LatencyStats summarizes measured latencies in milliseconds.
type LatencyStats struct {
	MeanMs   float64 `json:"meanMs"`
	StdDevMs float64 `json:"stdDevMs"`
	P50Ms    float64 `json:"p50Ms"`
	P90Ms    float64 `json:"p90Ms"`
}

// StreamUtilization is the share of the measured phase a stream spent executing work.
type StreamUtilization struct {
	Stream   int     `json:"stream"`
	BusyMs   float64 `json:"busyMs"`
	Fraction float64 `json:"fraction"`
}

// Comparison pairs a baseline and a prefetching run on the same configuration.
type Comparison struct {
	Baseline *BenchmarkResult `json:"baseline"`
	Prefetch *BenchmarkResult `json:"prefetch"`
	Speedup  float64          `json:"speedup"`
}
