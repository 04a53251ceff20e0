package store

import (
	"bytes"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/michaelomichael/tracka/internal/types"
)

func newTestStore(t *testing.T) (*Store, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return New(log.New(&buf, "", 0)), &buf
}

func TestStore_LookupsGatedOnLoaded(t *testing.T) {
	s, _ := newTestStore(t)
	s.PutList(&types.List{ID: "l1", Name: "Inbox"})
	s.PutTask(&types.Task{ID: "t1", Title: "T", ListID: "l1"})

	if _, err := s.GetList("l1", true); !errors.Is(err, types.ErrLoadState) {
		t.Errorf("expected LoadStateError before load, got %v", err)
	}
	if _, err := s.GetTask("t1", false); !errors.Is(err, types.ErrLoadState) {
		t.Errorf("expected LoadStateError before load, got %v", err)
	}

	s.SetLoaded(true)
	l, err := s.GetList("l1", true)
	if err != nil {
		t.Fatalf("GetList failed: %v", err)
	}
	if l.Name != "Inbox" {
		t.Errorf("expected Inbox, got %s", l.Name)
	}
}

func TestStore_MissingLookup(t *testing.T) {
	s, logs := newTestStore(t)
	s.SetLoaded(true)

	if _, err := s.GetTask("nope", true); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	task, err := s.GetTask("nope", false)
	if err != nil || task != nil {
		t.Errorf("expected nil, nil; got %v, %v", task, err)
	}
	if !strings.Contains(logs.String(), "Warning: task with id 'nope' not found") {
		t.Errorf("expected warning in log, got %q", logs.String())
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetLoaded(true)
	orig := &types.List{ID: "l1", Name: "Inbox", TaskIDs: []string{"a"}}
	s.PutList(orig)
	orig.TaskIDs[0] = "changed"

	l, _ := s.GetList("l1", true)
	if l.TaskIDs[0] != "a" {
		t.Errorf("store shares memory with caller: %v", l.TaskIDs)
	}
	l.Name = "Mutated"
	again, _ := s.GetList("l1", true)
	if again.Name != "Inbox" {
		t.Error("mutating a returned list changed the store")
	}
}

func TestStore_ListsSortedByOrder(t *testing.T) {
	s, _ := newTestStore(t)
	s.PutList(&types.List{ID: "c", Name: "C", Order: 7})
	s.PutList(&types.List{ID: "a", Name: "A", Order: 2})
	s.PutList(&types.List{ID: "b", Name: "B", Order: 2})

	var got []string
	for _, l := range s.Lists() {
		got = append(got, l.ID)
	}
	if strings.Join(got, ",") != "a,b,c" {
		t.Errorf("unexpected order: %v", got)
	}
}

func TestStore_SpecialList(t *testing.T) {
	s, logs := newTestStore(t)

	if _, err := s.SpecialList(types.CategoryDone, false); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected NotFound with no DONE list, got %v", err)
	}

	s.PutList(&types.List{ID: "d1", Name: "Done", Order: 1, SpecialCategory: types.CategoryDone})
	l, err := s.SpecialList(types.CategoryDone, false)
	if err != nil || l.ID != "d1" {
		t.Fatalf("SpecialList(DONE) = %v, %v", l, err)
	}

	s.PutList(&types.List{ID: "d2", Name: "Done 2", Order: 2, SpecialCategory: types.CategoryDone})
	if _, err := s.SpecialList(types.CategoryDone, false); !errors.Is(err, types.ErrMultipleMatches) {
		t.Errorf("expected MultipleMatches, got %v", err)
	}

	l, err = s.SpecialList(types.CategoryDone, true)
	if err != nil || l.ID != "d1" {
		t.Errorf("tolerant SpecialList(DONE) = %v, %v", l, err)
	}
	if !strings.Contains(logs.String(), "found 2 DONE lists") {
		t.Errorf("expected tolerance warning, got %q", logs.String())
	}

	if _, err := s.SpecialList(types.CategoryToday, true); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected NotFound for TODAY, got %v", err)
	}
}

func TestStore_Subscribe(t *testing.T) {
	s, _ := newTestStore(t)

	var events []Event
	cancel := s.Subscribe(types.CollectionTasks, func(ev Event) {
		events = append(events, ev)
		// listeners may read back into the store
		s.Task(ev.ID)
	})

	s.PutTask(&types.Task{ID: "t1", Title: "T", ListID: "l"})
	s.PutList(&types.List{ID: "l", Name: "L"})
	s.DeleteTask("t1")
	s.DeleteTask("t1")
	s.Clear()
	cancel()
	s.PutTask(&types.Task{ID: "t2", Title: "T", ListID: "l"})

	want := []Event{
		{Collection: types.CollectionTasks, ID: "t1"},
		{Collection: types.CollectionTasks, ID: "t1", Removed: true},
		{Collection: types.CollectionTasks},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestStore_ClearResetsLoaded(t *testing.T) {
	s := New(log.New(io.Discard, "", 0))
	s.PutList(&types.List{ID: "l1", Name: "L"})
	s.SetLoaded(true)
	s.Clear()

	if s.IsLoaded() {
		t.Error("store still loaded after Clear")
	}
	if len(s.Lists()) != 0 {
		t.Error("lists not cleared")
	}
}

func TestStore_StatsAndSnapshot(t *testing.T) {
	s, _ := newTestStore(t)
	s.PutList(&types.List{ID: "l1", Name: "L"})
	s.PutTask(&types.Task{ID: "t1", Title: "A", ListID: "l1", IsDone: true})
	s.PutTask(&types.Task{ID: "t2", Title: "B", ListID: "l1"})

	st := s.Stats()
	if st.Lists != 1 || st.Tasks != 2 || st.DoneTasks != 1 || st.Loaded {
		t.Errorf("unexpected stats: %+v", st)
	}

	lists, tasks := s.Snapshot()
	if len(lists) != 1 || len(tasks) != 2 {
		t.Fatalf("unexpected snapshot sizes: %d lists, %d tasks", len(lists), len(tasks))
	}
	tasks["t1"].Title = "changed"
	if got, _ := s.Task("t1"); got.Title != "A" {
		t.Error("snapshot shares memory with store")
	}
}
