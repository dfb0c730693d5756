package appconfig

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/k0kubun/pp"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// ShowConfig prints the current configuration summary.
func ShowConfig(out io.Writer, file string, cfg *Config, fallback Config) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}

	if cfg == nil {
		cfg = &fallback
	}
	fmt.Fprintln(out, headerStyle.Render("Current configuration:"))
	row := func(label string, value any) {
		fmt.Fprintf(out, "  %s %v\n", labelStyle.Render(fmt.Sprintf("%-24s", label+":")), value)
	}
	row("Model", cfg.Model)
	row("Enable Prefetch", cfg.EnablePrefetch)
	row("Enable Cudnn Benchmark", cfg.EnableCudnnBenchmark)
	row("Num Streams", cfg.NumStreams)
	row("Warmups", cfg.Warmups)
	row("Iterations", cfg.Iterations)
	row("Seq Len", cfg.SeqLen)
	row("Seed", cfg.Seed)
	row("Transfer GB/s", cfg.TransferGBps)
	row("Launch Latency", cfg.LaunchLatency)
	row("Device", cfg.Device)
	row("Device Memory GB", cfg.DeviceMemoryGB)
	row("Export", cfg.ExportPath)
	row("Debug", cfg.Debug)
	row("Log File", cfg.LogFilePath())
}

// Dump writes cfg with pp, the way the benchmark prints its resolved configuration.
func Dump(out io.Writer, cfg Config) {
	_, _ = pp.Fprintln(out, cfg)
}
