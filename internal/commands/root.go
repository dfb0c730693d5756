// internal/commands/root.go
package prefetchbench

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mwiater/prefetchbench/internal/appconfig"
	"github.com/mwiater/prefetchbench/internal/benchmark"
	"github.com/mwiater/prefetchbench/internal/logging"
	"github.com/mwiater/prefetchbench/internal/models"
)

var (
	cfgFile       string
	currentConfig *appconfig.Config
	appVersion    = "dev"
	appCommit     = "none"
	appDate       = "unknown"
)

var (
	loadConfig   = appconfig.Load
	runBenchmark = benchmark.Run
	runCompare   = benchmark.Compare
)

// rootCmd runs the benchmark when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "prefetchbench",
	Short:         "prefetchbench: transformer inference throughput with and without stream prefetching",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := ensureConfigLoaded()
		if err != nil {
			return err
		}
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}
		currentConfig = &cfg

		if err := logging.Init(currentConfig.LogFilePath()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.SetDebug(currentConfig.Debug)
		logging.Debugf("resolved configuration from %q", currentConfig.ConfigPath)

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runBenchmark(*GetConfig(), cmd.OutOrStdout())
		return err
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", appVersion, appCommit, appDate)

	err := rootCmd.Execute()
	_ = logging.Close()
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", appconfig.DefaultConfigPath, "config file (e.g., config/config.json)")

	flags.String("model", models.DefaultModel, "model preset to benchmark (see 'list models')")
	flags.Bool("enable-prefetch", false, "use the prefetching executor instead of the baseline")
	flags.Bool("enable-cudnn-benchmark", false, "autotune kernel variants on first use")
	flags.Int("num-streams", appconfig.DefaultNumStreams, "number of prefetch streams")
	flags.Int("warmups", appconfig.DefaultWarmups, "untimed warm-up iterations")
	flags.Int("iterations", appconfig.DefaultIterations, "measured iterations")
	flags.Int("seq-len", appconfig.DefaultSeqLen, "tokens per batch")
	flags.Int64("seed", 0, "seed for weights and batches (0 = time based)")
	flags.Float64("transfer-gbps", 0, "host-to-device link bandwidth in GB/s (0 = unthrottled)")
	flags.String("launch-latency", "", "latency added to every kernel launch (e.g. 20us)")
	flags.Int("device", 0, "device ordinal")
	flags.Float64("device-memory-gb", appconfig.DefaultDeviceMemoryGB, "simulated device memory in GB; models that do not fit are rejected")
	flags.String("export", "", "write results to this JSON file or directory")
	flags.Bool("show-streams", false, "print per-stream utilization")
	flags.Bool("progress", true, "show a progress bar on stderr")
	flags.Bool("debug", false, "enable debug logging")
	flags.String("logFile", "", "path to the log file")
	flags.AddGoFlag(logging.KlogFlags().Lookup("v"))

	for key, name := range map[string]string{
		"model":                "model",
		"enablePrefetch":       "enable-prefetch",
		"enableCudnnBenchmark": "enable-cudnn-benchmark",
		"numStreams":           "num-streams",
		"warmups":              "warmups",
		"iterations":           "iterations",
		"seqLen":               "seq-len",
		"seed":                 "seed",
		"transferGBps":         "transfer-gbps",
		"launchLatency":        "launch-latency",
		"device":               "device",
		"deviceMemoryGB":       "device-memory-gb",
		"export":               "export",
		"showStreams":          "show-streams",
		"progress":             "progress",
		"debug":                "debug",
		"logFile":              "logFile",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(name))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// ensureConfigLoaded returns the configuration flags are applied over: the
// validated config file when one exists, the defaults otherwise. The file is
// also read into viper so unchanged flags do not mask its values.
func ensureConfigLoaded() (appconfig.Config, error) {
	if cfgFile == "" {
		return appconfig.Default(), nil
	}
	if _, err := os.Stat(cfgFile); errors.Is(err, fs.ErrNotExist) {
		return appconfig.Default(), nil
	}
	fileCfg, err := loadConfig(cfgFile)
	if err != nil {
		return appconfig.Config{}, err
	}
	if err := viper.ReadInConfig(); err != nil {
		return appconfig.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return fileCfg, nil
}

// GetConfig returns the loaded application configuration for other packages.
func GetConfig() *appconfig.Config {
	return currentConfig
}

// SetVersionInfo allows the main package to inject build-time variables.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}
