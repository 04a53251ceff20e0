// Package store holds the in-memory entity maps the rest of the system reads
// from.
//
// The Store is a pure data holder: it keeps clones of every list and task
// known for the current user, derives sorted and filtered views over them,
// and notifies listeners when an entity changes. It never propagates
// references between entities; that is the backend's job.
//
// Lookups through GetList and GetTask are gated on the loaded flag, which the
// backend sets once the session has finished loading and checking data.
package store

import (
	"log"
	"os"
	"sort"
	"sync"

	"github.com/michaelomichael/tracka/internal/types"
)

// Event describes a change to one entity. An empty ID means the whole
// collection was reset.
type Event struct {
	Collection types.Collection
	ID         string
	Removed    bool
}

// Listener receives change events. It is called outside the store's lock and
// may read from the store.
type Listener func(Event)

// Store is the entity store. All methods are safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	lists  map[string]*types.List
	tasks  map[string]*types.Task
	loaded bool

	listenerMu sync.Mutex
	listeners  map[types.Collection]map[int]Listener
	nextID     int

	logger *log.Logger
}

// New creates an empty, not-loaded store.
//
// If logger is nil, a default logger writing to stderr is used.
func New(logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	return &Store{
		lists:     make(map[string]*types.List),
		tasks:     make(map[string]*types.Task),
		listeners: make(map[types.Collection]map[int]Listener),
		logger:    logger,
	}
}

// SetLoaded opens or closes the lookup gate.
func (s *Store) SetLoaded(loaded bool) {
	s.mu.Lock()
	s.loaded = loaded
	s.mu.Unlock()
}

// IsLoaded reports whether lookups are permitted.
func (s *Store) IsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// List returns a copy of a list regardless of the loaded flag.
func (s *Store) List(id string) (*types.List, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lists[id]
	return l.Clone(), ok
}

// Task returns a copy of a task regardless of the loaded flag.
func (s *Store) Task(id string) (*types.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t.Clone(), ok
}

// PutList stores a copy of l, replacing any list with the same id.
func (s *Store) PutList(l *types.List) {
	c := l.Clone()
	c.Normalize()
	s.mu.Lock()
	s.lists[c.ID] = c
	s.mu.Unlock()
	s.notify(Event{Collection: types.CollectionLists, ID: c.ID})
}

// PutTask stores a copy of t, replacing any task with the same id.
func (s *Store) PutTask(t *types.Task) {
	c := t.Clone()
	c.Normalize()
	s.mu.Lock()
	s.tasks[c.ID] = c
	s.mu.Unlock()
	s.notify(Event{Collection: types.CollectionTasks, ID: c.ID})
}

// DeleteList removes a list and reports whether it was present.
func (s *Store) DeleteList(id string) bool {
	s.mu.Lock()
	_, ok := s.lists[id]
	delete(s.lists, id)
	s.mu.Unlock()
	if ok {
		s.notify(Event{Collection: types.CollectionLists, ID: id, Removed: true})
	}
	return ok
}

// DeleteTask removes a task and reports whether it was present.
func (s *Store) DeleteTask(id string) bool {
	s.mu.Lock()
	_, ok := s.tasks[id]
	delete(s.tasks, id)
	s.mu.Unlock()
	if ok {
		s.notify(Event{Collection: types.CollectionTasks, ID: id, Removed: true})
	}
	return ok
}

// Clear empties both maps and closes the lookup gate.
func (s *Store) Clear() {
	s.mu.Lock()
	s.lists = make(map[string]*types.List)
	s.tasks = make(map[string]*types.Task)
	s.loaded = false
	s.mu.Unlock()
	s.notify(Event{Collection: types.CollectionLists})
	s.notify(Event{Collection: types.CollectionTasks})
}

// GetList returns a copy of a list once the store is loaded.
//
// When the id is unknown, mustExist selects between a NotFoundError and a
// logged warning with a nil result.
func (s *Store) GetList(id string, mustExist bool) (*types.List, error) {
	s.mu.RLock()
	loaded := s.loaded
	l, ok := s.lists[id]
	l = l.Clone()
	s.mu.RUnlock()

	if !loaded {
		return nil, &types.LoadStateError{Op: "getList"}
	}
	if !ok {
		if mustExist {
			return nil, &types.NotFoundError{Entity: "list", ID: id}
		}
		s.logger.Printf("Warning: list with id '%s' not found", id)
		return nil, nil
	}
	return l, nil
}

// GetTask returns a copy of a task once the store is loaded. See GetList.
func (s *Store) GetTask(id string, mustExist bool) (*types.Task, error) {
	s.mu.RLock()
	loaded := s.loaded
	t, ok := s.tasks[id]
	t = t.Clone()
	s.mu.RUnlock()

	if !loaded {
		return nil, &types.LoadStateError{Op: "getTask"}
	}
	if !ok {
		if mustExist {
			return nil, &types.NotFoundError{Entity: "task", ID: id}
		}
		s.logger.Printf("Warning: task with id '%s' not found", id)
		return nil, nil
	}
	return t, nil
}

// Subscribe registers fn for changes to collection and returns a function
// that removes the registration.
func (s *Store) Subscribe(collection types.Collection, fn Listener) (cancel func()) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	id := s.nextID
	s.nextID++
	if s.listeners[collection] == nil {
		s.listeners[collection] = make(map[int]Listener)
	}
	s.listeners[collection][id] = fn
	return func() {
		s.listenerMu.Lock()
		defer s.listenerMu.Unlock()
		delete(s.listeners[collection], id)
	}
}

func (s *Store) notify(ev Event) {
	s.listenerMu.Lock()
	fns := make([]Listener, 0, len(s.listeners[ev.Collection]))
	ids := make([]int, 0, len(s.listeners[ev.Collection]))
	for id := range s.listeners[ev.Collection] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, s.listeners[ev.Collection][id])
	}
	s.listenerMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
