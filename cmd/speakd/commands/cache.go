package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/speakd/pkg/cli"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the semantic cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		st, err := newClient(cfg).Status(cmd.Context())
		if err != nil {
			return err
		}
		if st.Cache == nil {
			cli.PrintInfo("cache is disabled")
			return nil
		}
		if jsonOutput {
			return cli.Output(st.Cache, cli.OutputOptions{Format: cli.FormatJSON, Indent: "  "})
		}
		fmt.Printf("entries:          %d\n", st.Cache.Entries)
		fmt.Printf("dimension:        %d\n", st.Cache.Dimension)
		fmt.Printf("orphan artifacts: %d\n", st.Cache.OrphanArtifacts)
		return nil
	},
}

var purgeYes bool

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every cache entry and its audio artifacts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !purgeYes {
			return fmt.Errorf("refusing to purge without --yes")
		}
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := newClient(cfg).PurgeCache(cmd.Context()); err != nil {
			return err
		}
		cli.PrintSuccess("cache purged")
		return nil
	},
}

func init() {
	cachePurgeCmd.Flags().BoolVar(&purgeYes, "yes", false, "confirm the purge")
	cacheCmd.AddCommand(cacheStatsCmd, cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
