package types

import (
	"fmt"
	"time"
)

// List is a named, ordered collection of task references.
type List struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Order           int             `json:"order"`
	TaskIDs         []string        `json:"taskIds"`
	SpecialCategory SpecialCategory `json:"specialCategory"`

	OwnerID           string    `json:"ownerId"`
	CreatedTimestamp  time.Time `json:"createdTimestamp"`
	ModifiedTimestamp time.Time `json:"modifiedTimestamp"`
	Version           int       `json:"version"`
}

// Validate checks the single-document invariants of a list.
func (l *List) Validate() error {
	if l.Name == "" {
		return &ValidationError{Entity: "list", Field: "name", Message: "should not be empty"}
	}
	if l.Order < 0 {
		return &ValidationError{Entity: "list", Field: "order", Message: fmt.Sprintf("should be >= 0 (got %d)", l.Order)}
	}
	if dup, ok := hasDuplicates(l.TaskIDs); ok {
		return &ValidationError{Entity: "list", Field: "taskIds", Message: fmt.Sprintf("contains duplicate id '%s'", dup)}
	}
	if !l.SpecialCategory.IsValid() {
		return &ValidationError{Entity: "list", Field: "specialCategory", Message: fmt.Sprintf("has an invalid enum value '%s'", l.SpecialCategory)}
	}
	return nil
}

// Clone returns a deep copy.
func (l *List) Clone() *List {
	if l == nil {
		return nil
	}
	c := *l
	c.TaskIDs = cloneIDs(l.TaskIDs)
	return &c
}

// IsSpecial reports whether the list carries a special category.
func (l *List) IsSpecial() bool {
	return l.SpecialCategory != CategoryNone
}
