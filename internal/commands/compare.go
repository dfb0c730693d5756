// internal/commands/compare.go
package prefetchbench

import (
	"github.com/spf13/cobra"
)

// compareCmd runs the baseline and the prefetching executor back to back
// with the same configuration and prints the speedup.
var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Benchmark baseline and prefetch executors and report the speedup",
	Long: `The 'compare' subcommand runs the baseline executor and then the prefetching executor
with the resolved configuration, ignoring --enable-prefetch, and prints both results side by side.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runCompare(*GetConfig(), cmd.OutOrStdout())
		return err
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)
}
