package filedoc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/michaelomichael/tracka/internal/remote"
	"github.com/michaelomichael/tracka/internal/types"
)

// subscription watches one collection directory for one owner.
type subscription struct {
	*remote.Feed
	store      *Store
	collection types.Collection
	ownerID    string
	dir        string
	watcher    *fsnotify.Watcher

	// known holds the ids delivered to this subscriber and not since
	// removed. A file event only carries a name, so it is what turns a
	// deletion or an owner change into a removal for the right owner. Only
	// processEvents touches it once the subscription is running.
	known map[string]bool
}

// Subscribe implements remote.Store.
//
// The directory is watched before it is listed, so a file written during
// the listing may be reported twice but is never missed.
func (s *Store) Subscribe(ctx context.Context, collection types.Collection, ownerID string) (remote.Subscription, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	dir := s.dir(collection)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", collection, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s directory %s: %w", collection, dir, err)
	}

	docs, err := s.GetAll(ctx, collection, ownerID)
	if err != nil {
		w.Close()
		return nil, err
	}

	sub := &subscription{
		store:      s,
		collection: collection,
		ownerID:    ownerID,
		dir:        dir,
		watcher:    w,
		known:      make(map[string]bool, len(docs)),
	}
	sub.Feed = remote.NewFeed(func() {
		if err := w.Close(); err != nil {
			s.logger.Printf("Warning: failed to close watcher on %s: %v", dir, err)
		}
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Close()
		return nil, remote.ErrClosed
	}
	s.subs[sub] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	initial := remote.Snapshot{Changes: make([]remote.Change, 0, len(docs))}
	for _, doc := range docs {
		sub.known[doc.ID] = true
		initial.Changes = append(initial.Changes, remote.Change{Type: remote.ChangeAdded, ID: doc.ID, Data: doc.Data})
	}
	sub.Push(initial)

	go s.processEvents(ctx, sub)
	return sub, nil
}

// processEvents turns fsnotify events into snapshots until the subscription
// is closed or ctx is done.
func (s *Store) processEvents(ctx context.Context, sub *subscription) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			sub.Close()
			return

		case <-sub.Done():
			return

		case event, ok := <-sub.watcher.Events:
			if !ok {
				return
			}
			if c, ok := sub.convertEvent(event); ok {
				sub.Push(remote.Snapshot{Changes: []remote.Change{c}})
			}

		case err, ok := <-sub.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Printf("Warning: watcher error on %s: %v", sub.dir, err)
		}
	}
}

// convertEvent maps a file event to a change for this subscriber, if any.
//
// The change type comes from what the subscriber has already seen rather
// than from the event: a rename over an existing file arrives as a create
// but is a modification, and a file now owned by someone else is a removal.
func (sub *subscription) convertEvent(event fsnotify.Event) (remote.Change, bool) {
	if filepath.Dir(event.Name) != sub.dir {
		return remote.Change{}, false
	}
	id, ok := documentID(filepath.Base(event.Name))
	if !ok {
		return remote.Change{}, false
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		data, err := os.ReadFile(event.Name)
		if errors.Is(err, fs.ErrNotExist) {
			return sub.removal(id)
		}
		if err != nil {
			sub.store.logger.Printf("Warning: failed to read %s/%s: %v", sub.collection, id, err)
			return remote.Change{}, false
		}
		if !json.Valid(data) {
			// Most likely a non-atomic writer caught mid-write; the next
			// write event carries the full document.
			return remote.Change{}, false
		}
		if remote.OwnerOf(data) != sub.ownerID {
			return sub.removal(id)
		}
		typ := remote.ChangeAdded
		if sub.known[id] {
			typ = remote.ChangeModified
		}
		sub.known[id] = true
		return remote.Change{Type: typ, ID: id, Data: data}, true

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return sub.removal(id)
	}
	return remote.Change{}, false
}

func (sub *subscription) removal(id string) (remote.Change, bool) {
	if !sub.known[id] {
		return remote.Change{}, false
	}
	delete(sub.known, id)
	return remote.Change{Type: remote.ChangeRemoved, ID: id}, true
}
