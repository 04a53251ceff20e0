package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/michaelomichael/tracka/internal/remote"
	"github.com/michaelomichael/tracka/internal/types"
)

func doc(id, owner string) json.RawMessage {
	return json.RawMessage(`{"id":"` + id + `","ownerId":"` + owner + `"}`)
}

func next(t *testing.T, sub remote.Subscription) remote.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.Snapshots():
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for snapshot")
	}
	return remote.Snapshot{}
}

func TestStore_InitialSnapshotFiltersByOwner(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	if err := s.Upsert(ctx, types.CollectionLists, "l1", doc("l1", "u1")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := s.Upsert(ctx, types.CollectionLists, "l2", doc("l2", "u2")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	sub, err := s.Subscribe(ctx, types.CollectionLists, "u1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	snap := next(t, sub)
	if len(snap.Changes) != 1 || snap.Changes[0].ID != "l1" || snap.Changes[0].Type != remote.ChangeAdded {
		t.Fatalf("unexpected initial snapshot: %+v", snap)
	}

	empty, err := s.Subscribe(ctx, types.CollectionTasks, "u1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer empty.Unsubscribe()
	if snap := next(t, empty); len(snap.Changes) != 0 {
		t.Errorf("expected empty initial snapshot, got %+v", snap)
	}
}

func TestStore_ChangeStream(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	sub, err := s.Subscribe(ctx, types.CollectionTasks, "u1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()
	next(t, sub)

	s.Upsert(ctx, types.CollectionTasks, "t1", doc("t1", "u1"))
	s.Upsert(ctx, types.CollectionTasks, "t1", doc("t1", "u1"))
	s.Upsert(ctx, types.CollectionTasks, "t2", doc("t2", "u2"))
	s.Delete(ctx, types.CollectionTasks, "t1")
	s.Delete(ctx, types.CollectionTasks, "missing")

	want := []remote.ChangeType{remote.ChangeAdded, remote.ChangeModified, remote.ChangeRemoved}
	for i, typ := range want {
		snap := next(t, sub)
		if got := snap.Changes[0]; got.Type != typ || got.ID != "t1" {
			t.Errorf("change %d: expected %s t1, got %s %s", i, typ, got.Type, got.ID)
		}
	}
}

func TestStore_OwnerChangeEmitsRemoved(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	s.Upsert(ctx, types.CollectionLists, "l1", doc("l1", "u1"))
	sub, _ := s.Subscribe(ctx, types.CollectionLists, "u1")
	defer sub.Unsubscribe()
	next(t, sub)

	s.Upsert(ctx, types.CollectionLists, "l1", doc("l1", "u2"))
	if c := next(t, sub).Changes[0]; c.Type != remote.ChangeRemoved {
		t.Errorf("expected removed, got %s", c.Type)
	}
}

func TestStore_WriteError(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	boom := errors.New("network down")
	s.SetWriteError(boom)
	if err := s.Upsert(ctx, types.CollectionLists, "l1", doc("l1", "u1")); !errors.Is(err, boom) {
		t.Errorf("expected write error, got %v", err)
	}
	if s.Get(types.CollectionLists, "l1") != nil {
		t.Error("document stored despite write error")
	}

	s.SetWriteError(nil)
	if err := s.Upsert(ctx, types.CollectionLists, "l1", doc("l1", "u1")); err != nil {
		t.Errorf("Upsert failed: %v", err)
	}
}

func TestStore_RejectsInvalidJSON(t *testing.T) {
	s := New()
	defer s.Close()
	if err := s.Upsert(context.Background(), types.CollectionLists, "x", json.RawMessage(`{`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestStore_ContextCancelEndsSubscription(t *testing.T) {
	s := New()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := s.Subscribe(ctx, types.CollectionLists, "u1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	cancel()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Snapshots():
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("subscription not closed after cancel")
		}
	}
}

func TestStore_ClosedStore(t *testing.T) {
	s := New()
	s.Close()
	if _, err := s.GetAll(context.Background(), types.CollectionLists, "u1"); !errors.Is(err, remote.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
