package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/michaelomichael/tracka/internal/backend"
	"github.com/michaelomichael/tracka/internal/types"
	"github.com/michaelomichael/tracka/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "data",
	Short:   "Create, show, change and delete lists",
}

var listAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Create a list",
	Long: `Create a list. Without --order the list goes after every existing list.

Tasks named with --tasks are moved into the new list from wherever they are.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := backend.NewList{Name: args[0]}
		if cmd.Flags().Changed("order") {
			order, _ := cmd.Flags().GetInt("order")
			in.Order = &order
		}
		special, _ := cmd.Flags().GetString("special")
		in.SpecialCategory = types.SpecialCategory(strings.ToUpper(special))
		in.TaskIDs, _ = cmd.Flags().GetStringSlice("tasks")

		return withSession(cmd.Context(), func(b *backend.Backend) error {
			l, err := b.AddList(cmd.Context(), in)
			if l == nil {
				return err
			}
			if jsonOutput {
				if perr := printJSON(l); perr != nil {
					return perr
				}
			} else {
				fmt.Printf("%s Created list %s (%s)\n", ui.RenderPass("✓"), ui.RenderBold(l.Name), l.ID)
			}
			return err
		})
	},
}

var listLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"show"},
	Short:   "Show every list",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(b *backend.Backend) error {
			lists, err := b.Lists()
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(lists)
			}

			rows := make([][]string, 0, len(lists))
			for _, l := range lists {
				special := ""
				if l.IsSpecial() {
					special = ui.RenderAccent(string(l.SpecialCategory))
				}
				rows = append(rows, []string{
					ui.RenderMuted(l.ID),
					strconv.Itoa(l.Order),
					ui.RenderBold(l.Name),
					special,
					strconv.Itoa(len(l.TaskIDs)),
				})
			}
			fmt.Print(ui.Table([]string{"ID", "ORDER", "NAME", "SPECIAL", "TASKS"}, rows))
			return nil
		})
	},
}

var listPatchCmd = &cobra.Command{
	Use:   "patch LIST",
	Short: "Change a list",
	Long: `Change the fields given as flags. LIST is a list id or name.

Replacing the task ids with --tasks only changes this list. Tasks keep pointing
at the list they name; run 'tracka doctor' to see the resulting mismatches.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch backend.ListPatch
		flags := cmd.Flags()
		if flags.Changed("name") {
			name, _ := flags.GetString("name")
			patch.Name = types.Set(name)
		}
		if flags.Changed("order") {
			order, _ := flags.GetInt("order")
			patch.Order = types.Set(order)
		}
		if flags.Changed("tasks") {
			ids, _ := flags.GetStringSlice("tasks")
			patch.TaskIDs = types.Set(ids)
		}
		if flags.Changed("special") {
			special, _ := flags.GetString("special")
			patch.SpecialCategory = types.Set(types.SpecialCategory(strings.ToUpper(special)))
		}

		return withSession(cmd.Context(), func(b *backend.Backend) error {
			l, err := findList(b, args[0])
			if err != nil {
				return err
			}
			l, err = b.PatchList(cmd.Context(), backend.ListByValue(l), patch)
			if l == nil {
				return err
			}
			if jsonOutput {
				if perr := printJSON(l); perr != nil {
					return perr
				}
			} else {
				fmt.Printf("%s Updated list %s (version %d)\n", ui.RenderPass("✓"), ui.RenderBold(l.Name), l.Version)
			}
			return err
		})
	},
}

var listRmCmd = &cobra.Command{
	Use:   "rm LIST",
	Short: "Delete an empty list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		return withSession(cmd.Context(), func(b *backend.Backend) error {
			l, err := findList(b, args[0])
			if err != nil {
				return err
			}
			if !yes {
				ok, err := confirm(fmt.Sprintf("Delete list %q?", l.Name))
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("not deleting list %q without confirmation (use --yes)", l.Name)
				}
			}
			if err := b.DeleteList(cmd.Context(), backend.ListByValue(l)); err != nil {
				return err
			}
			fmt.Printf("%s Deleted list %s\n", ui.RenderPass("✓"), l.Name)
			return nil
		})
	},
}

func init() {
	listAddCmd.Flags().Int("order", 0, "position among the lists")
	listAddCmd.Flags().String("special", "", "special category (BACKLOG, TODAY or DONE)")
	listAddCmd.Flags().StringSlice("tasks", nil, "task ids to move into the list")

	listPatchCmd.Flags().String("name", "", "new name")
	listPatchCmd.Flags().Int("order", 0, "new position")
	listPatchCmd.Flags().StringSlice("tasks", nil, "replace the list's task ids")
	listPatchCmd.Flags().String("special", "", "special category, or empty to clear it")

	listRmCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	listCmd.AddCommand(listAddCmd, listLsCmd, listPatchCmd, listRmCmd)
	rootCmd.AddCommand(listCmd)
}
