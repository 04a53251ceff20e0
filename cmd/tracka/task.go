package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/michaelomichael/tracka/internal/backend"
	"github.com/michaelomichael/tracka/internal/types"
	"github.com/michaelomichael/tracka/internal/ui"
)

var dueParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseDue accepts an RFC 3339 time, a YYYY-MM-DD date (midnight local
// time) or a phrase such as "tomorrow 5pm" or "next friday".
func parseDue(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t.UTC(), nil
	}
	r, err := dueParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse due date %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("failed to parse due date %q", s)
	}
	return r.Time.UTC(), nil
}

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "data",
	Short:   "Create, show, change and delete tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add TITLE",
	Short: "Create a task",
	Long: `Create a task. Without --list it goes to the TODAY list.

The task is put at the top of its list. With --parent it is appended to the
parent's children; with --children the named tasks become its children.`,
	Example: `  tracka task add "Book flights" --list Trips --due "next friday"
  tracka task add "Pack" --parent 5c1d --done`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		in := backend.NewTask{Title: args[0]}
		in.Description, _ = flags.GetString("desc")
		in.ParentTaskID, _ = flags.GetString("parent")
		in.ChildTaskIDs, _ = flags.GetStringSlice("children")
		in.IsDone, _ = flags.GetBool("done")
		if due, _ := flags.GetString("due"); due != "" {
			t, err := parseDue(due, time.Now())
			if err != nil {
				return err
			}
			in.DueByTimestamp = &t
		}

		return withSession(cmd.Context(), func(b *backend.Backend) error {
			list, err := taskList(b, cmd)
			if err != nil {
				return err
			}
			in.ListID = list.ID

			t, err := b.AddTask(cmd.Context(), in)
			if t == nil {
				return err
			}
			if jsonOutput {
				if perr := printJSON(t); perr != nil {
					return perr
				}
			} else {
				fmt.Printf("%s Added %s to %s (%s)\n", ui.RenderPass("✓"), ui.RenderBold(t.Title), list.Name, t.ID)
			}
			return err
		})
	},
}

// taskList resolves --list, defaulting to the TODAY list.
func taskList(b *backend.Backend, cmd *cobra.Command) (*types.List, error) {
	if name, _ := cmd.Flags().GetString("list"); name != "" {
		return findList(b, name)
	}
	return b.NewItemsList()
}

var taskLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "Show tasks in list order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		listArg, _ := cmd.Flags().GetString("list")
		hideDone, _ := cmd.Flags().GetBool("open")

		return withSession(cmd.Context(), func(b *backend.Backend) error {
			var lists []*types.List
			if listArg != "" {
				l, err := findList(b, listArg)
				if err != nil {
					return err
				}
				lists = []*types.List{l}
			} else {
				var err error
				if lists, err = b.Lists(); err != nil {
					return err
				}
			}

			byList := make(map[string][]*types.Task, len(lists))
			for _, l := range lists {
				for _, id := range l.TaskIDs {
					t, err := b.GetTask(id, false)
					if err != nil {
						return err
					}
					if t == nil || (hideDone && t.IsDone) {
						continue
					}
					byList[l.ID] = append(byList[l.ID], t)
				}
			}

			if jsonOutput {
				return printJSON(byList)
			}
			for i, l := range lists {
				if i > 0 {
					fmt.Println()
				}
				fmt.Println(ui.Header(l.Name))
				printTasks(b, byList[l.ID])
			}
			return nil
		})
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show TASK",
	Short: "Show a task with its list, parent and children",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(b *backend.Backend) error {
			t, err := b.GetTask(args[0], true)
			if err != nil {
				return err
			}
			list, err := b.GetListForTask(t.ID)
			if err != nil {
				return err
			}
			parent, err := b.GetParentTaskForTask(t.ID)
			if err != nil {
				return err
			}
			children, err := b.GetChildTasksForTask(t.ID)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(struct {
					Task     *types.Task   `json:"task"`
					List     *types.List   `json:"list"`
					Parent   *types.Task   `json:"parent"`
					Children []*types.Task `json:"children"`
				}{t, list, parent, children})
			}

			fmt.Printf("%s %s\n", ui.Checkbox(t.IsDone), ui.RenderBold(t.Title))
			fmt.Printf("  %s %s\n", ui.RenderMuted("id:      "), t.ID)
			if list != nil {
				fmt.Printf("  %s %s\n", ui.RenderMuted("list:    "), list.Name)
			} else {
				fmt.Printf("  %s %s\n", ui.RenderMuted("list:    "), ui.RenderWarn(t.ListID+" (missing)"))
			}
			if t.Description != "" {
				fmt.Printf("  %s %s\n", ui.RenderMuted("notes:   "), t.Description)
			}
			if t.DueByTimestamp != nil {
				fmt.Printf("  %s %s\n", ui.RenderMuted("due:     "), formatDue(t.DueByTimestamp))
			}
			if t.DoneTimestamp != nil {
				fmt.Printf("  %s %s\n", ui.RenderMuted("done:    "), t.DoneTimestamp.Local().Format(time.DateTime))
			}
			fmt.Printf("  %s %s (version %d)\n", ui.RenderMuted("modified:"), t.ModifiedTimestamp.Local().Format(time.DateTime), t.Version)
			if parent != nil {
				fmt.Printf("  %s %s (%s)\n", ui.RenderMuted("parent:  "), parent.Title, parent.ID)
			}
			if len(children) > 0 {
				fmt.Println()
				printTasks(b, children)
			}
			return nil
		})
	},
}

var taskPatchCmd = &cobra.Command{
	Use:   "patch TASK",
	Short: "Change a task",
	Long: `Change the fields given as flags.

Moving a task with --list also moves its id between the two lists. --parent ""
detaches the task from its parent; --children replaces the set of children.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch backend.TaskPatch
		flags := cmd.Flags()
		if flags.Changed("title") {
			val, _ := flags.GetString("title")
			patch.Title = types.Set(val)
		}
		if flags.Changed("desc") {
			val, _ := flags.GetString("desc")
			patch.Description = types.Set(val)
		}
		if flags.Changed("parent") {
			val, _ := flags.GetString("parent")
			patch.ParentTaskID = types.Set(val)
		}
		if flags.Changed("children") {
			val, _ := flags.GetStringSlice("children")
			patch.ChildTaskIDs = types.Set(val)
		}
		if flags.Changed("done") {
			val, _ := flags.GetBool("done")
			patch.IsDone = types.Set(val)
		}
		if flags.Changed("due") {
			due, _ := flags.GetString("due")
			if due == "" {
				patch.DueByTimestamp = types.Set[*time.Time](nil)
			} else {
				t, err := parseDue(due, time.Now())
				if err != nil {
					return err
				}
				patch.DueByTimestamp = types.Set(&t)
			}
		}

		return withSession(cmd.Context(), func(b *backend.Backend) error {
			if flags.Changed("list") {
				l, err := taskList(b, cmd)
				if err != nil {
					return err
				}
				patch.ListID = types.Set(l.ID)
			}

			t, err := b.PatchTask(cmd.Context(), backend.TaskByID(args[0]), patch)
			if t == nil {
				return err
			}
			if jsonOutput {
				if perr := printJSON(t); perr != nil {
					return perr
				}
			} else {
				fmt.Printf("%s Updated %s (version %d)\n", ui.RenderPass("✓"), ui.RenderBold(t.Title), t.Version)
			}
			return err
		})
	},
}

var taskRmCmd = &cobra.Command{
	Use:   "rm TASK",
	Short: "Delete a task that has no children",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(b *backend.Backend) error {
			if err := b.DeleteTask(cmd.Context(), backend.TaskByID(args[0])); err != nil {
				return err
			}
			fmt.Printf("%s Deleted task %s\n", ui.RenderPass("✓"), args[0])
			return nil
		})
	},
}

var taskFindCmd = &cobra.Command{
	Use:   "find TEXT",
	Short: "Find tasks whose title or description contains TEXT",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(b *backend.Backend) error {
			tasks, err := b.FindTasks(strings.Join(args, " "))
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(tasks)
			}
			printTasks(b, tasks)
			return nil
		})
	},
}

func init() {
	taskAddCmd.Flags().StringP("list", "l", "", "list id or name (default: the TODAY list)")
	taskAddCmd.Flags().String("desc", "", "description")
	taskAddCmd.Flags().String("parent", "", "parent task id")
	taskAddCmd.Flags().StringSlice("children", nil, "ids of tasks to adopt as children")
	taskAddCmd.Flags().Bool("done", false, "create the task already done")
	taskAddCmd.Flags().String("due", "", `due date: 2024-06-01, RFC 3339, or a phrase like "next friday"`)

	taskLsCmd.Flags().StringP("list", "l", "", "only this list")
	taskLsCmd.Flags().Bool("open", false, "hide done tasks")

	taskPatchCmd.Flags().String("title", "", "new title")
	taskPatchCmd.Flags().String("desc", "", "new description")
	taskPatchCmd.Flags().StringP("list", "l", "", "move to this list")
	taskPatchCmd.Flags().String("parent", "", `new parent id, or "" to detach`)
	taskPatchCmd.Flags().StringSlice("children", nil, "replace the children")
	taskPatchCmd.Flags().Bool("done", false, "mark done (--done=false to reopen)")
	taskPatchCmd.Flags().String("due", "", `new due date, or "" to clear it`)

	taskCmd.AddCommand(taskAddCmd, taskLsCmd, taskShowCmd, taskPatchCmd, taskRmCmd, taskFindCmd)
	rootCmd.AddCommand(taskCmd)
}
