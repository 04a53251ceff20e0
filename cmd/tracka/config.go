package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/michaelomichael/tracka/internal/config"
	"github.com/michaelomichael/tracka/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "maintenance",
	Short:   "Create or show the configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [PATH]",
	Short: "Write a config file with every default value",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultPath()
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if err := config.WriteDefault(path, force); err != nil {
			return err
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	Long: `Print every setting after applying the config file, TRACKA_* environment
variables and flags. The signing secret is masked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := config.Settings(v)
		if s, ok := settings[config.KeyAuthSecret].(string); ok && s != "" {
			settings[config.KeyAuthSecret] = "********"
		}

		if jsonOutput {
			return printJSON(settings)
		}
		if cfg.File != "" {
			fmt.Println(ui.RenderMuted("# from " + cfg.File))
		} else {
			fmt.Println(ui.RenderMuted("# no config file found; defaults and environment only"))
		}
		return config.Encode(os.Stdout, settings)
	},
}

func init() {
	configInitCmd.Flags().BoolP("force", "f", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
