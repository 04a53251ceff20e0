// Package types defines the list and task documents shared by the entity
// store, the remote document stores and the backend.
//
// Documents are flat JSON objects keyed by id. Cross references between
// lists and tasks are stored redundantly on both sides:
//
//	List.TaskIDs       <->  Task.ListID
//	Task.ChildTaskIDs  <->  Task.ParentTaskID
//
// Keeping both sides in step is the backend's job; the types here only check
// the invariants that can be verified on a single document.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Collection names a remote document collection.
type Collection string

const (
	// CollectionLists holds List documents.
	CollectionLists Collection = "lists"
	// CollectionTasks holds Task documents.
	CollectionTasks Collection = "tasks"
	// CollectionArchivedTasks holds ArchivedTask documents. Write-only from
	// the backend's point of view, apart from GetArchivedTasks.
	CollectionArchivedTasks Collection = "archived_tasks"
)

// Collections lists every collection the backend knows about.
var Collections = []Collection{CollectionLists, CollectionTasks, CollectionArchivedTasks}

// SpecialCategory tags one of the lists every user is expected to have
// exactly once. The zero value means "no special category" and is encoded
// as JSON null.
type SpecialCategory string

const (
	CategoryNone    SpecialCategory = ""
	CategoryBacklog SpecialCategory = "BACKLOG"
	CategoryToday   SpecialCategory = "TODAY"
	CategoryDone    SpecialCategory = "DONE"
)

// SpecialCategories are provisioned in this order.
var SpecialCategories = []SpecialCategory{CategoryBacklog, CategoryToday, CategoryDone}

// IsValid reports whether c is empty or one of the three known categories.
func (c SpecialCategory) IsValid() bool {
	switch c {
	case CategoryNone, CategoryBacklog, CategoryToday, CategoryDone:
		return true
	default:
		return false
	}
}

// DefaultListName returns the name given to a provisioned list.
func (c SpecialCategory) DefaultListName() string {
	switch c {
	case CategoryBacklog:
		return "Backlog"
	case CategoryToday:
		return "Today"
	case CategoryDone:
		return "Done"
	default:
		return string(c)
	}
}

// MarshalJSON encodes the empty category as null.
func (c SpecialCategory) MarshalJSON() ([]byte, error) {
	if c == CategoryNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(c))
}

// UnmarshalJSON accepts null or a string.
func (c *SpecialCategory) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = CategoryNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("specialCategory: %w", err)
	}
	*c = SpecialCategory(s)
	return nil
}

// Optional carries a patch field. Fields with Set == false are left alone.
type Optional[T any] struct {
	Value T
	Set   bool
}

// Set returns an Optional holding v.
func Set[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// Get returns the value if set, otherwise fallback.
func (o Optional[T]) Get(fallback T) T {
	if o.Set {
		return o.Value
	}
	return fallback
}

// cloneIDs copies an id slice, normalising nil to an empty slice so that
// documents always carry [] rather than null.
func cloneIDs(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ContainsID reports whether id is present in ids.
func ContainsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// RemoveID returns ids without any occurrence of id, and whether anything
// was removed. The input slice is not modified.
func RemoveID(ids []string, id string) ([]string, bool) {
	out := make([]string, 0, len(ids))
	removed := false
	for _, v := range ids {
		if v == id {
			removed = true
			continue
		}
		out = append(out, v)
	}
	return out, removed
}

// PrependID returns id followed by ids with any existing occurrence removed.
func PrependID(ids []string, id string) []string {
	rest, _ := RemoveID(ids, id)
	return append([]string{id}, rest...)
}

// AppendID returns ids with id appended unless already present.
func AppendID(ids []string, id string) []string {
	if ContainsID(ids, id) {
		return cloneIDs(ids)
	}
	return append(cloneIDs(ids), id)
}

// hasDuplicates returns the first duplicated id, if any.
func hasDuplicates(ids []string) (string, bool) {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return id, true
		}
		seen[id] = struct{}{}
	}
	return "", false
}
