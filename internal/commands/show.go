// internal/commands/show.go
package prefetchbench

import (
	"github.com/spf13/cobra"

	"github.com/mwiater/prefetchbench/internal/appconfig"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show resolved settings",
}

// showConfigCmd implements 'show config', which prints the configuration
// after the file, flags and defaults have been merged.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the JSON config is loaded properly and overridden by flags accordingly.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := GetConfig()
		file := ""
		if cfg != nil {
			file = cfg.ConfigPath
		}
		appconfig.ShowConfig(cmd.OutOrStdout(), file, cfg, appconfig.Default())
	},
}

func init() {
	showCmd.AddCommand(showConfigCmd)
	rootCmd.AddCommand(showCmd)
}
