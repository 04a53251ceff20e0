package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/michaelomichael/tracka/internal/remote"
	"github.com/michaelomichael/tracka/internal/remote/memory"
	"github.com/michaelomichael/tracka/internal/store"
	"github.com/michaelomichael/tracka/internal/types"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// setupAdapter creates an adapter over a fresh in-memory remote store.
func setupAdapter(t *testing.T) (*Adapter, *memory.Store) {
	t.Helper()
	rs := memory.New()
	a := New(rs, quietLogger())
	t.Cleanup(func() {
		a.Stop()
		rs.Close()
	})
	return a, rs
}

func nextEvent(t *testing.T, a *Adapter) Event {
	t.Helper()
	select {
	case ev := <-a.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func listDoc(t *testing.T, l types.List) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(l)
	if err != nil {
		t.Fatalf("failed to marshal list: %v", err)
	}
	return data
}

func TestAdapter_InitialSnapshots(t *testing.T) {
	ctx := context.Background()
	a, rs := setupAdapter(t)

	rs.Upsert(ctx, types.CollectionLists, "l1", listDoc(t, types.List{ID: "l1", Name: "Inbox", OwnerID: "u1"}))

	if err := a.Start(ctx, "u1"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	seen := map[types.Collection]Event{}
	for i := 0; i < 2; i++ {
		ev := nextEvent(t, a)
		if !ev.Initial {
			t.Errorf("expected initial event, got %+v", ev)
		}
		if ev.OwnerID != "u1" || ev.Generation != 1 {
			t.Errorf("unexpected owner/generation: %+v", ev)
		}
		seen[ev.Collection] = ev
	}
	if len(seen[types.CollectionLists].Snapshot.Changes) != 1 {
		t.Errorf("expected one list in initial snapshot, got %+v", seen[types.CollectionLists])
	}
	if _, ok := seen[types.CollectionTasks]; !ok {
		t.Error("missing initial tasks snapshot")
	}

	rs.Upsert(ctx, types.CollectionLists, "l2", listDoc(t, types.List{ID: "l2", Name: "Other", OwnerID: "u1"}))
	ev := nextEvent(t, a)
	if ev.Initial || ev.Collection != types.CollectionLists {
		t.Errorf("expected non-initial list event, got %+v", ev)
	}
}

func TestAdapter_StartIsIdempotent(t *testing.T) {
	ctx := context.Background()
	rs := memory.New()
	defer rs.Close()

	var logs bytes.Buffer
	a := New(rs, log.New(&logs, "", 0))
	defer a.Stop()

	if err := a.Start(ctx, "u1"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := a.Start(ctx, "u2"); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if a.OwnerID() != "u1" || a.Generation() != 1 {
		t.Errorf("second Start changed state: owner=%s gen=%d", a.OwnerID(), a.Generation())
	}
	if !strings.Contains(logs.String(), "already open") {
		t.Errorf("expected warning, got %q", logs.String())
	}
}

func TestAdapter_StopAndRestart(t *testing.T) {
	ctx := context.Background()
	a, _ := setupAdapter(t)

	if err := a.Start(ctx, "u1"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// Stop without draining must not deadlock on the forwarders.
	a.Stop()
	a.Stop()
	if a.Active() {
		t.Fatal("adapter still active after Stop")
	}

	if err := a.Start(ctx, "u2"); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if a.Generation() != 2 {
		t.Errorf("expected generation 2, got %d", a.Generation())
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-a.Events():
			if ev.Generation == 2 {
				if ev.OwnerID != "u2" {
					t.Errorf("expected owner u2, got %s", ev.OwnerID)
				}
				return
			}
		case <-deadline:
			t.Fatal("no event from second generation")
		}
	}
}

type denyGuard map[string]bool

func (g denyGuard) ShouldApply(_ types.Collection, id string, _ int, _ bool) bool {
	return !g[id]
}

func TestApply(t *testing.T) {
	st := store.New(quietLogger())
	st.PutTask(&types.Task{ID: "gone", Title: "Old", ListID: "l1"})

	ev := Event{
		Collection: types.CollectionTasks,
		Snapshot: remote.Snapshot{Changes: []remote.Change{
			{Type: remote.ChangeAdded, ID: "t1", Data: json.RawMessage(`{"id":"t1","title":"A","listId":"l1","childTaskIds":null,"version":1}`)},
			{Type: remote.ChangeModified, ID: "t2", Data: json.RawMessage(`{"title":"no id in body","listId":"l1"}`)},
			{Type: remote.ChangeAdded, ID: "bad", Data: json.RawMessage(`{"title":`)},
			{Type: remote.ChangeAdded, ID: "vetoed", Data: json.RawMessage(`{"id":"vetoed"}`)},
			{Type: remote.ChangeRemoved, ID: "gone"},
		}},
	}

	res := Apply(st, ev, denyGuard{"vetoed": true}, quietLogger())
	if res.Upserted != 2 || res.Removed != 1 || res.Skipped != 2 {
		t.Errorf("unexpected result: %+v", res)
	}

	t1, ok := st.Task("t1")
	if !ok || t1.Title != "A" || t1.ChildTaskIDs == nil {
		t.Errorf("t1 not applied correctly: %+v", t1)
	}
	if t2, ok := st.Task("t2"); !ok || t2.ID != "t2" {
		t.Errorf("t2 should take its id from the change: %+v", t2)
	}
	if _, ok := st.Task("gone"); ok {
		t.Error("removed task still present")
	}
	if _, ok := st.Task("vetoed"); ok {
		t.Error("vetoed task applied")
	}
}

func TestApply_Idempotent(t *testing.T) {
	st := store.New(quietLogger())
	ev := Event{
		Collection: types.CollectionLists,
		Snapshot: remote.Snapshot{Changes: []remote.Change{
			{Type: remote.ChangeModified, ID: "l1", Data: json.RawMessage(`{"id":"l1","name":"Inbox","taskIds":["a","b"],"order":3}`)},
		}},
	}

	Apply(st, ev, nil, quietLogger())
	first := st.Lists()
	Apply(st, ev, nil, quietLogger())
	second := st.Lists()

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected one list, got %d then %d", len(first), len(second))
	}
	a, _ := json.Marshal(first[0])
	b, _ := json.Marshal(second[0])
	if !bytes.Equal(a, b) {
		t.Errorf("second apply changed state:\n%s\n%s", a, b)
	}
}

func TestApply_MalformedDocumentKeptAsIs(t *testing.T) {
	st := store.New(quietLogger())
	// Structurally invalid (empty name, duplicate ids) but decodable.
	ev := Event{
		Collection: types.CollectionLists,
		Snapshot: remote.Snapshot{Changes: []remote.Change{
			{Type: remote.ChangeAdded, ID: "l1", Data: json.RawMessage(`{"id":"l1","taskIds":["x","x"]}`)},
		}},
	}
	Apply(st, ev, nil, quietLogger())

	l, ok := st.List("l1")
	if !ok {
		t.Fatal("list not stored")
	}
	if len(l.TaskIDs) != 2 {
		t.Errorf("document was altered: %+v", l)
	}
}
