package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/michaelomichael/tracka/internal/backend"
	"github.com/michaelomichael/tracka/internal/store"
	"github.com/michaelomichael/tracka/internal/types"
	"github.com/michaelomichael/tracka/internal/ui"
)

// doctorReport is the machine-readable result of `tracka doctor`.
type doctorReport struct {
	User     string          `json:"user" yaml:"user"`
	Remote   string          `json:"remote" yaml:"remote"`
	Stats    store.Stats     `json:"stats" yaml:"stats"`
	Warnings []types.Warning `json:"warnings" yaml:"warnings"`
}

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	GroupID: "maintenance",
	Short:   "Check references between lists and tasks",
	Long: `Run the data integrity check and report what it found.

Tasks missing from the list they name are added back to it. Every other problem
is only reported. The exit status is 2 when anything was found.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if jsonOutput {
			format = "json"
		}
		switch format {
		case "text", "json", "yaml":
		default:
			return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
		}

		return withSession(cmd.Context(), func(b *backend.Backend) error {
			warnings, err := b.CheckDataIntegrity(cmd.Context())
			if warnings == nil {
				warnings = []types.Warning{}
			}
			report := doctorReport{
				User:     b.UserID(),
				Remote:   cfg.Remote.URL,
				Stats:    b.Stats(),
				Warnings: warnings,
			}

			switch format {
			case "json":
				if perr := printJSON(report); perr != nil {
					return perr
				}
			case "yaml":
				enc := yaml.NewEncoder(os.Stdout)
				enc.SetIndent(2)
				if perr := enc.Encode(report); perr != nil {
					return perr
				}
				enc.Close()
			default:
				fmt.Printf("%s %d lists, %d tasks (%d done) for user %s\n\n",
					ui.RenderAccent("●"), report.Stats.Lists, report.Stats.Tasks, report.Stats.DoneTasks, report.User)
				printWarnings(warnings)
			}

			if err != nil {
				return err
			}
			if len(warnings) > 0 {
				return &exitError{code: 2, err: fmt.Errorf("%d integrity problem(s) found", len(warnings))}
			}
			return nil
		})
	},
}

func init() {
	doctorCmd.Flags().String("format", "text", "output format: text, json or yaml")
	rootCmd.AddCommand(doctorCmd)
}
