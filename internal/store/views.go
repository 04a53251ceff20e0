package store

import (
	"fmt"
	"sort"

	"github.com/michaelomichael/tracka/internal/types"
)

// Lists returns copies of all lists sorted ascending by order, then id.
func (s *Store) Lists() []*types.List {
	s.mu.RLock()
	out := make([]*types.List, 0, len(s.lists))
	for _, l := range s.lists {
		out = append(out, l.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Tasks returns copies of all tasks, sorted by id for stable output.
func (s *Store) Tasks() []*types.Task {
	s.mu.RLock()
	out := make([]*types.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListsWithCategory returns the lists carrying cat, in Lists order.
func (s *Store) ListsWithCategory(cat types.SpecialCategory) []*types.List {
	var out []*types.List
	for _, l := range s.Lists() {
		if l.SpecialCategory == cat {
			out = append(out, l)
		}
	}
	return out
}

// SpecialList returns the single list carrying cat.
//
// Zero matches is a NotFoundError. Several matches is a MultipleMatchesError
// unless tolerateMultiple is set, in which case the first in Lists order is
// returned and a warning is logged.
func (s *Store) SpecialList(cat types.SpecialCategory, tolerateMultiple bool) (*types.List, error) {
	matches := s.ListsWithCategory(cat)
	switch {
	case len(matches) == 0:
		return nil, &types.NotFoundError{Entity: "list", ID: fmt.Sprintf("specialCategory=%s", cat)}
	case len(matches) > 1 && !tolerateMultiple:
		return nil, &types.MultipleMatchesError{What: fmt.Sprintf("%s list", cat), Count: len(matches)}
	case len(matches) > 1:
		s.logger.Printf("Warning: found %d %s lists, using '%s'", len(matches), cat, matches[0].ID)
	}
	return matches[0], nil
}

// Snapshot returns copies of both maps keyed by id.
func (s *Store) Snapshot() (map[string]*types.List, map[string]*types.Task) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lists := make(map[string]*types.List, len(s.lists))
	for id, l := range s.lists {
		lists[id] = l.Clone()
	}
	tasks := make(map[string]*types.Task, len(s.tasks))
	for id, t := range s.tasks {
		tasks[id] = t.Clone()
	}
	return lists, tasks
}

// Stats summarises the store for status displays.
type Stats struct {
	Lists     int  `json:"lists"`
	Tasks     int  `json:"tasks"`
	DoneTasks int  `json:"doneTasks"`
	Loaded    bool `json:"loaded"`
}

// Stats counts the entities currently held.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Lists: len(s.lists), Tasks: len(s.tasks), Loaded: s.loaded}
	for _, t := range s.tasks {
		if t.IsDone {
			st.DoneTasks++
		}
	}
	return st
}
