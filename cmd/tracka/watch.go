package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelomichael/tracka/internal/backend"
	"github.com/michaelomichael/tracka/internal/store"
	"github.com/michaelomichael/tracka/internal/types"
	"github.com/michaelomichael/tracka/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "session",
	Short:   "Keep a session open and print changes as they arrive",
	Long: `Open a long-running session and print every lifecycle transition,
integrity warning and list or task change until interrupted.

Unlike other commands, watch does not need a logged-in user to start: it waits
for 'tracka login' and follows logins and logouts made from other terminals.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := newSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.close()

		b := s.backend
		stamp := func() string { return ui.RenderMuted(time.Now().Format(time.TimeOnly)) }

		defer b.SubscribeState(func(st backend.State) {
			fmt.Printf("%s %s %s\n", stamp(), ui.RenderAccent("state"), st)
			if st == backend.StateLoadingComplete {
				stats := b.Stats()
				fmt.Printf("%s %s %d lists, %d tasks\n", stamp(), ui.RenderPass("loaded"), stats.Lists, stats.Tasks)
			}
		})()
		defer b.SubscribeWarnings(func(ws []types.Warning) {
			for _, w := range ws {
				fmt.Printf("%s %s %s\n", stamp(), ui.RenderWarn("warning"), w)
			}
		})()
		defer b.Subscribe(types.CollectionLists, func(ev store.Event) {
			if !b.IsLoaded() {
				return
			}
			fmt.Printf("%s %s\n", stamp(), describeListEvent(b, ev))
		})()
		defer b.Subscribe(types.CollectionTasks, func(ev store.Event) {
			if !b.IsLoaded() {
				return
			}
			fmt.Printf("%s %s\n", stamp(), describeTaskEvent(b, ev))
		})()

		if err := s.start(ctx, false); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	},
}

func describeListEvent(b *backend.Backend, ev store.Event) string {
	switch {
	case ev.ID == "":
		return ui.RenderAccent("lists") + " reset"
	case ev.Removed:
		return ui.RenderFail("list removed") + " " + ev.ID
	}
	l, err := b.GetList(ev.ID, true)
	if err != nil {
		return ui.RenderAccent("list") + " " + ev.ID
	}
	return fmt.Sprintf("%s %s (%s, %d tasks, v%d)", ui.RenderAccent("list"), ui.RenderBold(l.Name), l.ID, len(l.TaskIDs), l.Version)
}

func describeTaskEvent(b *backend.Backend, ev store.Event) string {
	switch {
	case ev.ID == "":
		return ui.RenderAccent("tasks") + " reset"
	case ev.Removed:
		return ui.RenderFail("task removed") + " " + ev.ID
	}
	t, err := b.GetTask(ev.ID, true)
	if err != nil {
		return ui.RenderAccent("task") + " " + ev.ID
	}
	return fmt.Sprintf("%s %s %s (%s, v%d)", ui.RenderAccent("task"), ui.Checkbox(t.IsDone), ui.RenderBold(t.Title), t.ID, t.Version)
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
