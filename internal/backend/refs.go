package backend

import "github.com/michaelomichael/tracka/internal/types"

// TaskRef identifies a task either by id or by a previously fetched value.
// Either way the task is resolved by id against the current store state.
type TaskRef struct {
	id string
}

// TaskByID refers to the task with id.
func TaskByID(id string) TaskRef { return TaskRef{id: id} }

// TaskByValue refers to the task t was fetched from.
func TaskByValue(t *types.Task) TaskRef {
	if t == nil {
		return TaskRef{}
	}
	return TaskRef{id: t.ID}
}

// ID returns the referenced id.
func (r TaskRef) ID() string { return r.id }

// ListRef identifies a list by id or by value. See TaskRef.
type ListRef struct {
	id string
}

// ListByID refers to the list with id.
func ListByID(id string) ListRef { return ListRef{id: id} }

// ListByValue refers to the list l was fetched from.
func ListByValue(l *types.List) ListRef {
	if l == nil {
		return ListRef{}
	}
	return ListRef{id: l.ID}
}

// ID returns the referenced id.
func (r ListRef) ID() string { return r.id }

func (b *Backend) resolveList(wb *writeBatch, ref ListRef) (*types.List, error) {
	l, ok := b.list(wb, ref.id)
	if !ok {
		return nil, &types.NotFoundError{Entity: "list", ID: ref.id}
	}
	return l, nil
}

func (b *Backend) resolveTask(wb *writeBatch, ref TaskRef) (*types.Task, error) {
	t, ok := b.task(wb, ref.id)
	if !ok {
		return nil, &types.NotFoundError{Entity: "task", ID: ref.id}
	}
	return t, nil
}
