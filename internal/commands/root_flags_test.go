package prefetchbench

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/mwiater/prefetchbench/internal/appconfig"
	"github.com/mwiater/prefetchbench/internal/benchmark"
	"github.com/mwiater/prefetchbench/internal/logging"
	"github.com/mwiater/prefetchbench/internal/models"
)

var benchFlags = []string{
	"model", "enable-prefetch", "enable-cudnn-benchmark", "num-streams", "warmups",
	"iterations", "seq-len", "seed", "transfer-gbps", "launch-latency", "device",
	"device-memory-gb", "export", "show-streams", "progress", "debug", "logFile",
}

func resetFlag(cmdFlag string) {
	flag := rootCmd.PersistentFlags().Lookup(cmdFlag)
	if flag == nil {
		return
	}
	_ = flag.Value.Set(flag.DefValue)
	flag.Changed = false
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// useConfig points the root command at a config file and a temporary log
// file, and restores the previous state when the test ends.
func useConfig(t *testing.T, configPath string) {
	t.Helper()
	prevCfgFile := cfgFile
	cfgFile = configPath
	viper.SetConfigFile(configPath)
	for _, name := range benchFlags {
		resetFlag(name)
	}
	_ = rootCmd.PersistentFlags().Set("logFile", filepath.Join(t.TempDir(), "prefetchbench.log"))
	t.Cleanup(func() {
		cfgFile = prevCfgFile
		viper.SetConfigFile(prevCfgFile)
		viper.SetConfigType("json")
		_ = viper.ReadConfig(strings.NewReader("{}"))
		for _, name := range benchFlags {
			resetFlag(name)
		}
		rootCmd.SetArgs([]string{})
		_ = logging.Close()
	})
}

func stubRun(t *testing.T) *appconfig.Config {
	t.Helper()
	var got appconfig.Config
	prev := runBenchmark
	runBenchmark = func(cfg appconfig.Config, out io.Writer) (*benchmark.BenchmarkResult, error) {
		got = cfg
		return &benchmark.BenchmarkResult{}, nil
	}
	t.Cleanup(func() { runBenchmark = prev })
	return &got
}

func TestPersistentPreRunEUsesFlagValues(t *testing.T) {
	configPath := writeTempConfig(t, "{}")
	useConfig(t, configPath)

	_ = rootCmd.PersistentFlags().Set("debug", "true")
	_ = rootCmd.PersistentFlags().Set("enable-prefetch", "true")
	_ = rootCmd.PersistentFlags().Set("num-streams", "5")
	_ = rootCmd.PersistentFlags().Set("seed", "99")
	_ = rootCmd.PersistentFlags().Set("transfer-gbps", "12.5")
	_ = rootCmd.PersistentFlags().Set("launch-latency", "20us")
	_ = rootCmd.PersistentFlags().Set("export", "out.json")
	_ = rootCmd.PersistentFlags().Set("device-memory-gb", "2.5")

	if err := rootCmd.PersistentPreRunE(rootCmd, []string{}); err != nil {
		t.Fatalf("PersistentPreRunE error: %v", err)
	}

	if currentConfig == nil || currentConfig.ConfigPath != configPath {
		t.Fatalf("expected config loaded with path %s", configPath)
	}
	if !currentConfig.Debug || !currentConfig.EnablePrefetch {
		t.Fatalf("expected flag values to flow into config: %+v", currentConfig)
	}
	if currentConfig.NumStreams != 5 || currentConfig.Seed != 99 {
		t.Fatalf("expected numStreams 5 and seed 99, got %+v", currentConfig)
	}
	if currentConfig.TransferGBps != 12.5 || currentConfig.LaunchLatency != "20us" {
		t.Fatalf("expected link settings from flags, got %+v", currentConfig)
	}
	if currentConfig.DeviceMemoryGB != 2.5 || currentConfig.MemoryBytes() != 2.5e9 {
		t.Fatalf("expected device memory from flag, got %v", currentConfig.DeviceMemoryGB)
	}
	if currentConfig.ExportPath != "out.json" {
		t.Fatalf("expected export path set, got %q", currentConfig.ExportPath)
	}
	if currentConfig.Model != models.DefaultModel || currentConfig.Warmups != appconfig.DefaultWarmups {
		t.Fatalf("expected defaults for unset values, got %+v", currentConfig)
	}
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	configPath := writeTempConfig(t, `{"model": "gpt2_small", "numStreams": 4, "seqLen": 64, "iterations": 7}`)
	useConfig(t, configPath)
	got := stubRun(t)

	rootCmd.SetOut(io.Discard)
	rootCmd.SetArgs([]string{"--seq-len", "32", "--enable-prefetch"})
	if _, err := rootCmd.ExecuteC(); err != nil {
		t.Fatalf("ExecuteC error: %v", err)
	}

	if got.Model != "gpt2_small" || got.NumStreams != 4 || got.Iterations != 7 {
		t.Fatalf("expected file values, got %+v", *got)
	}
	if got.SeqLen != 32 || !got.EnablePrefetch {
		t.Fatalf("expected flags to win over the file, got %+v", *got)
	}
	if got.Warmups != appconfig.DefaultWarmups || !got.Progress {
		t.Fatalf("expected defaults for values set nowhere, got %+v", *got)
	}
}

func TestMissingConfigFileFallsBackToDefaults(t *testing.T) {
	useConfig(t, filepath.Join(t.TempDir(), "absent.json"))
	got := stubRun(t)

	rootCmd.SetOut(io.Discard)
	rootCmd.SetArgs([]string{})
	if _, err := rootCmd.ExecuteC(); err != nil {
		t.Fatalf("ExecuteC error: %v", err)
	}
	if got.ConfigPath != "" {
		t.Fatalf("expected no config path, got %q", got.ConfigPath)
	}
	want := appconfig.Default()
	if got.Model != want.Model || got.NumStreams != want.NumStreams || got.SeqLen != want.SeqLen {
		t.Fatalf("expected defaults, got %+v", *got)
	}
}

func TestPersistentPreRunERejectsInvalidConfigFile(t *testing.T) {
	for name, content := range map[string]string{
		"wrong type":  `{"numStreams": "many"}`,
		"unknown key": `{"streams": 3}`,
		"below range": `{"iterations": 0}`,
	} {
		t.Run(name, func(t *testing.T) {
			useConfig(t, writeTempConfig(t, content))
			err := rootCmd.PersistentPreRunE(rootCmd, []string{})
			if err == nil {
				t.Fatalf("expected schema error for %s", content)
			}
			var cfgErr *models.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %T: %v", err, err)
			}
		})
	}
}

func TestRunErrorIsReturned(t *testing.T) {
	useConfig(t, writeTempConfig(t, "{}"))
	prev := runBenchmark
	runBenchmark = func(cfg appconfig.Config, out io.Writer) (*benchmark.BenchmarkResult, error) {
		return nil, &models.UnknownModelError{Name: cfg.Model}
	}
	t.Cleanup(func() { runBenchmark = prev })

	rootCmd.SetOut(io.Discard)
	rootCmd.SetArgs([]string{"--model", "gpt5"})
	_, err := rootCmd.ExecuteC()
	var unknown *models.UnknownModelError
	if !errors.As(err, &unknown) || unknown.Name != "gpt5" {
		t.Fatalf("expected UnknownModelError for gpt5, got %v", err)
	}
}

func TestCompareCommandUsesResolvedConfig(t *testing.T) {
	useConfig(t, writeTempConfig(t, `{"numStreams": 2}`))
	var got appconfig.Config
	prev := runCompare
	runCompare = func(cfg appconfig.Config, out io.Writer) (*benchmark.Comparison, error) {
		got = cfg
		return &benchmark.Comparison{}, nil
	}
	t.Cleanup(func() { runCompare = prev })

	rootCmd.SetOut(io.Discard)
	rootCmd.SetArgs([]string{"compare", "--warmups", "0"})
	if _, err := rootCmd.ExecuteC(); err != nil {
		t.Fatalf("ExecuteC error: %v", err)
	}
	if got.NumStreams != 2 || got.Warmups != 0 {
		t.Fatalf("expected file and flag values, got %+v", got)
	}
}

func TestShowConfigCommandOutput(t *testing.T) {
	configPath := writeTempConfig(t, `{"numStreams": 6}`)
	useConfig(t, configPath)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"--debug", "show", "config"})
	_, err := rootCmd.ExecuteC()
	if err != nil {
		t.Fatalf("ExecuteC error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Config file: "+configPath) {
		t.Fatalf("expected config file path in output, got %s", out)
	}
	for _, want := range []string{"Num Streams:", "6", "Debug:", "true"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got %s", want, out)
		}
	}
}

func TestListModelsCommandOutput(t *testing.T) {
	useConfig(t, writeTempConfig(t, "{}"))

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"list", "models"})
	if _, err := rootCmd.ExecuteC(); err != nil {
		t.Fatalf("ExecuteC error: %v", err)
	}
	for _, name := range models.Names() {
		if !strings.Contains(buf.String(), name) {
			t.Fatalf("expected %s in output, got %s", name, buf.String())
		}
	}
}

func TestConfigFileGoesThroughLoader(t *testing.T) {
	configPath := writeTempConfig(t, `{"deviceMemoryGB": 64}`)
	useConfig(t, configPath)

	var loaded []string
	prev := loadConfig
	loadConfig = func(path string) (appconfig.Config, error) {
		loaded = append(loaded, path)
		return prev(path)
	}
	t.Cleanup(func() { loadConfig = prev })

	if err := rootCmd.PersistentPreRunE(rootCmd, []string{}); err != nil {
		t.Fatalf("PersistentPreRunE error: %v", err)
	}
	if len(loaded) != 1 || loaded[0] != configPath {
		t.Fatalf("expected one load of %s, got %v", configPath, loaded)
	}
	if currentConfig.DeviceMemoryGB != 64 {
		t.Fatalf("expected deviceMemoryGB from file, got %v", currentConfig.DeviceMemoryGB)
	}
}
