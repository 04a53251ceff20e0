package remote

import (
	"encoding/json"
	"testing"
	"time"
)

func TestFeed_PushDoesNotBlock(t *testing.T) {
	f := NewFeed(nil)
	defer f.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			f.Push(Snapshot{Changes: []Change{{Type: ChangeAdded, ID: "x"}}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Push blocked without a reader")
	}

	for i := 0; i < 100; i++ {
		select {
		case <-f.Snapshots():
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for snapshot %d", i)
		}
	}
}

func TestFeed_PreservesOrder(t *testing.T) {
	f := NewFeed(nil)
	defer f.Close()

	for _, id := range []string{"a", "b", "c"} {
		f.Push(Snapshot{Changes: []Change{{Type: ChangeModified, ID: id}}})
	}
	for _, want := range []string{"a", "b", "c"} {
		snap := <-f.Snapshots()
		if got := snap.Changes[0].ID; got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	}
}

func TestFeed_CloseClosesChannel(t *testing.T) {
	closed := 0
	f := NewFeed(func() { closed++ })
	f.Push(Snapshot{})
	f.Unsubscribe()
	f.Unsubscribe()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-f.Snapshots():
			if !ok {
				if closed != 1 {
					t.Errorf("onClose ran %d times, want 1", closed)
				}
				return
			}
		case <-timeout:
			t.Fatal("snapshot channel not closed")
		}
	}
}

func TestOwnerOf(t *testing.T) {
	tests := []struct {
		doc  string
		want string
	}{
		{`{"id":"x","ownerId":"u1"}`, "u1"},
		{`{"id":"x"}`, ""},
		{`not json`, ""},
		{`[1,2]`, ""},
	}
	for _, tt := range tests {
		if got := OwnerOf(json.RawMessage(tt.doc)); got != tt.want {
			t.Errorf("OwnerOf(%s) = %q, want %q", tt.doc, got, tt.want)
		}
	}
}
