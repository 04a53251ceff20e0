package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelomichael/tracka/internal/backend"
	"github.com/michaelomichael/tracka/internal/ui"
)

var archiveCmd = &cobra.Command{
	Use:     "archive",
	GroupID: "maintenance",
	Short:   "Move finished tasks to the archive",
	Long: `Copy every done task to the archive and delete it from its list.

A task is only archived together with the tasks it is linked to as parent or
child, and only when every task in that group is done. Linked tasks that are
still open keep the whole group in place.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(b *backend.Backend) error {
			n, err := b.ArchiveDoneTasks(cmd.Context())
			if jsonOutput {
				if perr := printJSON(map[string]int{"archived": n}); perr != nil {
					return perr
				}
			} else if n == 0 {
				fmt.Println(ui.RenderMuted("Nothing to archive."))
			} else {
				fmt.Printf("%s Archived %d task(s)\n", ui.RenderPass("✓"), n)
			}
			return err
		})
	},
}

var archivedCmd = &cobra.Command{
	Use:     "archived",
	GroupID: "maintenance",
	Short:   "Show archived tasks",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(b *backend.Backend) error {
			archived, err := b.GetArchivedTasks(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(archived)
			}
			if len(archived) == 0 {
				fmt.Println(ui.RenderMuted("The archive is empty."))
				return nil
			}
			rows := make([][]string, 0, len(archived))
			for _, a := range archived {
				rows = append(rows, []string{
					ui.RenderMuted(a.ID),
					a.Title,
					a.ArchivedTimestamp.Local().Format(time.DateTime),
				})
			}
			fmt.Print(ui.Table([]string{"ID", "TITLE", "ARCHIVED"}, rows))
			return nil
		})
	},
}

var backupCmd = &cobra.Command{
	Use:     "backup",
	GroupID: "maintenance",
	Short:   "Write every list and task to a JSON backup",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		return withSession(cmd.Context(), func(b *backend.Backend) error {
			data, err := b.CreateBackupJSON()
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err := os.Stdout.Write(append(data, '\n'))
				return err
			}
			if err := os.WriteFile(out, data, 0600); err != nil {
				return fmt.Errorf("failed to write backup: %w", err)
			}
			stats := b.Stats()
			fmt.Fprintf(os.Stderr, "%s Backed up %d lists and %d tasks to %s\n", ui.RenderPass("✓"), stats.Lists, stats.Tasks, out)
			return nil
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:     "restore FILE",
	GroupID: "maintenance",
	Short:   "Replace all lists and tasks with the contents of a backup",
	Long: `Delete every list and task of the current user, then write the documents
from FILE as that user. The special lists are provisioned again and the data
integrity check runs afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read backup: %w", err)
		}
		yes, _ := cmd.Flags().GetBool("yes")

		return withSession(cmd.Context(), func(b *backend.Backend) error {
			if !yes {
				ok, err := confirm(fmt.Sprintf("Replace all data of user %s with %s?", b.UserID(), args[0]))
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("not restoring without confirmation (use --yes)")
				}
			}
			warnings, err := b.RestoreFromBackupJSON(cmd.Context(), data)
			if err != nil {
				return err
			}
			stats := b.Stats()
			fmt.Printf("%s Restored %d lists and %d tasks\n", ui.RenderPass("✓"), stats.Lists, stats.Tasks)
			if len(warnings) > 0 {
				fmt.Println()
				printWarnings(warnings)
			}
			return nil
		})
	},
}

func init() {
	backupCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
	restoreCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	rootCmd.AddCommand(archiveCmd, archivedCmd, backupCmd, restoreCmd)
}
