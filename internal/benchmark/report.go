package benchmark

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mwiater/prefetchbench/internal/appconfig"
)

const (
	bannerWidth = 60
	barWidth    = 40
)

var (
	bannerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	streamStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func printBanner(out io.Writer, cfg appconfig.Config) {
	rule := strings.Repeat("=", bannerWidth)
	fmt.Fprintln(out, bannerStyle.Render(rule))
	fmt.Fprintln(out, bannerStyle.Render("Benchmark configuration"))
	appconfig.Dump(out, cfg)
	fmt.Fprintln(out, bannerStyle.Render(rule))
}

func printStreams(out io.Writer, streams []StreamUtilization) {
	bar := progress.New(progress.WithWidth(barWidth), progress.WithSolidFill("#5fd7af"))
	fmt.Fprintln(out, "Stream utilization:")
	for _, s := range streams {
		label := streamStyle.Render(fmt.Sprintf("  stream %-3d", s.Stream))
		fmt.Fprintf(out, "%s %s %8.1f ms busy\n", label, bar.ViewAs(s.Fraction), s.BusyMs)
	}
}

func printComparison(out io.Writer, cmp *Comparison) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("executor", "streams", "mean ms", "p90 ms", "tokens/sec")
	for _, r := range []*BenchmarkResult{cmp.Baseline, cmp.Prefetch} {
		t.Row(
			r.Executor,
			fmt.Sprint(r.NumStreams),
			fmt.Sprintf("%.2f", r.Latency.MeanMs),
			fmt.Sprintf("%.2f", r.Latency.P90Ms),
			fmt.Sprintf("%.1f", r.Throughput),
		)
	}
	fmt.Fprintln(out, t.Render())
	fmt.Fprintf(out, "Speedup: %.2fx\n", cmp.Speedup)
}
