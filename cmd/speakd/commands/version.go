package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/haivivi/speakd/cmd/speakd/internal/build"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(build.String())
		if IsVerbose() {
			fmt.Printf("  go:     %s\n", runtime.Version())
			if cfg, err := GetConfig(); err == nil && cfg.Path() != "" {
				fmt.Printf("  config: %s\n", cfg.Path())
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
