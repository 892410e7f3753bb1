package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/speakd/cmd/speakd/internal/config"
	"github.com/haivivi/speakd/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage speakd configuration",
}

var initForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file with defaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := cli.NewPaths("speakd")
		if err != nil {
			return err
		}
		path := paths.ConfigFile()
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := paths.EnsureConfigDir(); err != nil {
			return err
		}
		if err := config.Default().Write(path); err != nil {
			return err
		}
		cli.PrintSuccess("wrote %s", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		format := cli.FormatYAML
		if jsonOutput {
			format = cli.FormatJSON
		}
		return cli.Output(cfg, cli.OutputOptions{Format: format, Indent: "  "})
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
