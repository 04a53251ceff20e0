package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/michaelomichael/tracka/internal/backend"
	"github.com/michaelomichael/tracka/internal/types"
	"github.com/michaelomichael/tracka/internal/ui"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// findList resolves arg as a list id, or failing that as a unique list name
// (case-insensitive).
func findList(b *backend.Backend, arg string) (*types.List, error) {
	lists, err := b.Lists()
	if err != nil {
		return nil, err
	}
	var byName []*types.List
	for _, l := range lists {
		if l.ID == arg {
			return l, nil
		}
		if strings.EqualFold(l.Name, arg) {
			byName = append(byName, l)
		}
	}
	switch len(byName) {
	case 0:
		return nil, &types.NotFoundError{Entity: "list", ID: arg}
	case 1:
		return byName[0], nil
	}
	return nil, &types.MultipleMatchesError{What: fmt.Sprintf("lists named '%s'", arg), Count: len(byName)}
}

func listName(b *backend.Backend, id string) string {
	l, err := b.GetList(id, false)
	if err != nil || l == nil {
		return ui.RenderWarn(id)
	}
	return l.Name
}

func formatDue(t *time.Time) string {
	if t == nil {
		return ""
	}
	local := t.Local()
	if local.Hour() == 0 && local.Minute() == 0 {
		return local.Format("2006-01-02")
	}
	return local.Format("2006-01-02 15:04")
}

func taskRows(b *backend.Backend, tasks []*types.Task) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		title := t.Title
		if t.ParentTaskID != "" {
			title = ui.RenderMuted("↳ ") + title
		}
		rows = append(rows, []string{
			ui.RenderMuted(t.ID),
			ui.Checkbox(t.IsDone),
			title,
			listName(b, t.ListID),
			formatDue(t.DueByTimestamp),
		})
	}
	return rows
}

func printTasks(b *backend.Backend, tasks []*types.Task) {
	if len(tasks) == 0 {
		fmt.Println(ui.RenderMuted("No tasks."))
		return
	}
	fmt.Print(ui.Table([]string{"ID", "DONE", "TITLE", "LIST", "DUE"}, taskRows(b, tasks)))
}

func printWarnings(ws []types.Warning) {
	if len(ws) == 0 {
		fmt.Printf("%s No integrity problems found\n", ui.RenderPass("✓"))
		return
	}
	rows := make([][]string, 0, len(ws))
	for _, w := range ws {
		status := ui.RenderWarn("warning")
		if w.Repaired {
			status = ui.RenderPass("repaired")
		}
		rows = append(rows, []string{status, string(w.Code), w.EntityKind + " " + w.EntityID, w.Message})
	}
	fmt.Print(ui.Table([]string{"STATUS", "CODE", "ENTITY", "DETAIL"}, rows))
}

// confirm asks a yes/no question on the terminal. Without a terminal the
// answer is no; callers offer --yes for scripts.
func confirm(title string) (bool, error) {
	if !ui.IsTerminal(os.Stdin) || !ui.IsTerminal(os.Stdout) {
		return false, nil
	}
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).WithShowHelp(false).Run()
	if err != nil {
		return false, err
	}
	return ok, nil
}
