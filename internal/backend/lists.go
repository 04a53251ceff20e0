package backend

import (
	"context"

	"github.com/michaelomichael/tracka/internal/types"
)

// NewList holds the fields a caller may supply to AddList. ID must be left
// empty; it is assigned by the backend.
type NewList struct {
	ID              string
	Name            string
	Order           *int
	TaskIDs         []string
	SpecialCategory types.SpecialCategory
}

// ListPatch holds the fields to change in PatchList.
type ListPatch struct {
	Name            types.Optional[string]
	Order           types.Optional[int]
	TaskIDs         types.Optional[[]string]
	SpecialCategory types.Optional[types.SpecialCategory]
}

// AddList creates a list owned by the current user. Without an explicit
// order the list goes after every existing one. Each task named in TaskIDs
// is moved into the new list.
func (b *Backend) AddList(ctx context.Context, in NewList) (*types.List, error) {
	var id string
	err := b.mutate(ctx, "addList", func(wb *writeBatch) error {
		l, err := b.addListLocked(wb, in)
		if err != nil {
			return err
		}
		id = l.ID
		return nil
	})
	if id == "" {
		return nil, err
	}
	return b.committedList(id), err
}

func (b *Backend) addListLocked(wb *writeBatch, in NewList) (*types.List, error) {
	if in.ID != "" {
		return nil, &types.ValidationError{Entity: "list", Field: "id", Message: "must not be supplied"}
	}

	now := b.now()
	order := b.nextOrder(wb)
	if in.Order != nil {
		order = *in.Order
	}
	l := &types.List{
		ID:                b.newID(),
		Name:              in.Name,
		Order:             order,
		TaskIDs:           append([]string{}, in.TaskIDs...),
		SpecialCategory:   in.SpecialCategory,
		OwnerID:           b.userID,
		CreatedTimestamp:  now,
		ModifiedTimestamp: now,
		Version:           1,
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	wb.putList(l)

	for _, taskID := range l.TaskIDs {
		t, ok := b.task(wb, taskID)
		if !ok {
			b.logger.Printf("Warning: new list %s names unknown task %s", l.ID, taskID)
			continue
		}
		b.detachFromListsLocked(wb, taskID, l.ID)
		if t.ListID != l.ID {
			t.ListID = l.ID
			wb.putTask(t)
		}
	}
	return l, nil
}

// PatchList merges the set fields of patch into the list.
//
// Member tasks are not touched: changing TaskIDs here does not update the
// listId of the tasks involved. Callers moving tasks between lists should
// use PatchTask, which keeps both sides in step.
func (b *Backend) PatchList(ctx context.Context, ref ListRef, patch ListPatch) (*types.List, error) {
	var id string
	err := b.mutate(ctx, "patchList", func(wb *writeBatch) error {
		l, err := b.resolveList(wb, ref)
		if err != nil {
			return err
		}
		l.Name = patch.Name.Get(l.Name)
		l.Order = patch.Order.Get(l.Order)
		if patch.TaskIDs.Set {
			l.TaskIDs = append([]string{}, patch.TaskIDs.Value...)
		}
		l.SpecialCategory = patch.SpecialCategory.Get(l.SpecialCategory)
		if err := l.Validate(); err != nil {
			return err
		}
		wb.putList(l)
		id = l.ID
		return nil
	})
	if id == "" {
		return nil, err
	}
	return b.committedList(id), err
}

// DeleteList removes an empty list. A list that still holds tasks is a
// PreconditionError and nothing is changed.
//
// The list is removed from the entity store before the remote delete is
// issued.
func (b *Backend) DeleteList(ctx context.Context, ref ListRef) error {
	return b.mutate(ctx, "deleteList", func(wb *writeBatch) error {
		l, err := b.resolveList(wb, ref)
		if err != nil {
			return err
		}
		if len(l.TaskIDs) > 0 {
			return &types.PreconditionError{Entity: "list", ID: l.ID, Reason: "cannot delete a non-empty list"}
		}
		wb.deleteList(l.ID)
		return nil
	})
}

// detachFromListsLocked removes taskID from every list except keep.
func (b *Backend) detachFromListsLocked(wb *writeBatch, taskID, keep string) {
	for _, l := range b.lists(wb) {
		if l.ID == keep {
			continue
		}
		if ids, removed := types.RemoveID(l.TaskIDs, taskID); removed {
			l.TaskIDs = ids
			wb.putList(l)
		}
	}
}

func (b *Backend) committedList(id string) *types.List {
	l, _ := b.store.List(id)
	return l
}

func (b *Backend) committedTask(id string) *types.Task {
	t, _ := b.store.Task(id)
	return t
}
