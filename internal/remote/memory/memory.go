// Package memory provides an in-process remote.Store.
//
// It is the store used by the backend tests and by mem:// remote URLs.
// Snapshots are queued in the order writes were made.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/michaelomichael/tracka/internal/remote"
	"github.com/michaelomichael/tracka/internal/types"
)

type subscription struct {
	*remote.Feed
	collection types.Collection
	ownerID    string
}

// Store is an in-memory remote.Store.
type Store struct {
	mu       sync.Mutex
	docs     map[types.Collection]map[string]json.RawMessage
	subs     map[*subscription]struct{}
	writeErr error
	closed   bool
}

var _ remote.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		docs: make(map[types.Collection]map[string]json.RawMessage),
		subs: make(map[*subscription]struct{}),
	}
}

// SetWriteError makes every subsequent Upsert and Delete fail with err.
// Pass nil to restore normal behaviour.
func (s *Store) SetWriteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// Get returns a copy of a stored document, or nil.
func (s *Store) Get(collection types.Collection, id string) json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[collection][id]
	if !ok {
		return nil
	}
	return bytes.Clone(doc)
}

// Len returns the number of documents in a collection, across all owners.
func (s *Store) Len(collection types.Collection) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs[collection])
}

// GetAll implements remote.Store.
func (s *Store) GetAll(ctx context.Context, collection types.Collection, ownerID string) ([]remote.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, remote.ErrClosed
	}
	return s.ownedLocked(collection, ownerID), nil
}

func (s *Store) ownedLocked(collection types.Collection, ownerID string) []remote.Document {
	docs := make([]remote.Document, 0)
	for id, doc := range s.docs[collection] {
		if remote.OwnerOf(doc) == ownerID {
			docs = append(docs, remote.Document{ID: id, Data: bytes.Clone(doc)})
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

// Subscribe implements remote.Store.
func (s *Store) Subscribe(ctx context.Context, collection types.Collection, ownerID string) (remote.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, remote.ErrClosed
	}

	sub := &subscription{collection: collection, ownerID: ownerID}
	sub.Feed = remote.NewFeed(func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	})
	s.subs[sub] = struct{}{}

	initial := remote.Snapshot{Changes: make([]remote.Change, 0)}
	for _, doc := range s.ownedLocked(collection, ownerID) {
		initial.Changes = append(initial.Changes, remote.Change{Type: remote.ChangeAdded, ID: doc.ID, Data: doc.Data})
	}
	sub.Push(initial)

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.Done():
		}
	}()
	return sub, nil
}

// Upsert implements remote.Store.
func (s *Store) Upsert(ctx context.Context, collection types.Collection, id string, doc json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !json.Valid(doc) {
		return fmt.Errorf("failed to upsert %s/%s: document is not valid JSON", collection, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return remote.ErrClosed
	}
	if s.writeErr != nil {
		return s.writeErr
	}

	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string]json.RawMessage)
	}
	prev, existed := s.docs[collection][id]
	data := bytes.Clone(doc)
	s.docs[collection][id] = data

	newOwner := remote.OwnerOf(data)
	oldOwner := ""
	if existed {
		oldOwner = remote.OwnerOf(prev)
	}

	for sub := range s.subs {
		if sub.collection != collection {
			continue
		}
		switch {
		case existed && sub.ownerID == oldOwner && oldOwner != newOwner:
			sub.Push(remote.Snapshot{Changes: []remote.Change{{Type: remote.ChangeRemoved, ID: id}}})
		case sub.ownerID == newOwner:
			typ := remote.ChangeAdded
			if existed && oldOwner == newOwner {
				typ = remote.ChangeModified
			}
			sub.Push(remote.Snapshot{Changes: []remote.Change{{Type: typ, ID: id, Data: bytes.Clone(data)}}})
		}
	}
	return nil
}

// Delete implements remote.Store.
func (s *Store) Delete(ctx context.Context, collection types.Collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return remote.ErrClosed
	}
	if s.writeErr != nil {
		return s.writeErr
	}

	prev, existed := s.docs[collection][id]
	if !existed {
		return nil
	}
	delete(s.docs[collection], id)

	owner := remote.OwnerOf(prev)
	for sub := range s.subs {
		if sub.collection == collection && sub.ownerID == owner {
			sub.Push(remote.Snapshot{Changes: []remote.Change{{Type: remote.ChangeRemoved, ID: id}}})
		}
	}
	return nil
}

// Close implements remote.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return nil
}
