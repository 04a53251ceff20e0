package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/michaelomichael/tracka/internal/types"
)

// NewTask holds the fields a caller may supply to AddTask. ID must be left
// empty.
type NewTask struct {
	ID             string
	Title          string
	Description    string
	ListID         string
	ParentTaskID   string
	ChildTaskIDs   []string
	IsDone         bool
	DueByTimestamp *time.Time
}

// TaskPatch holds the fields to change in PatchTask. An empty ParentTaskID
// value detaches the task from its parent.
type TaskPatch struct {
	Title          types.Optional[string]
	Description    types.Optional[string]
	ListID         types.Optional[string]
	ParentTaskID   types.Optional[string]
	ChildTaskIDs   types.Optional[[]string]
	IsDone         types.Optional[bool]
	DueByTimestamp types.Optional[*time.Time]
}

// AddTask creates a task and links it into its list, its parent and its
// children. The new id is prepended to the list's taskIds and appended to
// the parent's childTaskIds.
//
// Every reference is checked before anything is written: an unknown list,
// parent or child is a NotFoundError, and a child that already has a
// different parent is a PreconditionError.
func (b *Backend) AddTask(ctx context.Context, in NewTask) (*types.Task, error) {
	var id string
	err := b.mutate(ctx, "addTask", func(wb *writeBatch) error {
		t, err := b.addTaskLocked(wb, in)
		if err != nil {
			return err
		}
		id = t.ID
		return nil
	})
	if id == "" {
		return nil, err
	}
	return b.committedTask(id), err
}

func (b *Backend) addTaskLocked(wb *writeBatch, in NewTask) (*types.Task, error) {
	if in.ID != "" {
		return nil, &types.ValidationError{Entity: "task", Field: "id", Message: "must not be supplied"}
	}

	now := b.now()
	t := &types.Task{
		ID:                b.newID(),
		Title:             in.Title,
		Description:       in.Description,
		ListID:            in.ListID,
		ParentTaskID:      in.ParentTaskID,
		ChildTaskIDs:      append([]string{}, in.ChildTaskIDs...),
		IsDone:            in.IsDone,
		DueByTimestamp:    in.DueByTimestamp,
		OwnerID:           b.userID,
		CreatedTimestamp:  now,
		ModifiedTimestamp: now,
		Version:           1,
	}
	t.SyncDoneTimestamp(now)
	if err := t.Validate(); err != nil {
		return nil, err
	}

	list, ok := b.list(wb, t.ListID)
	if !ok {
		return nil, &types.NotFoundError{Entity: "list", ID: t.ListID}
	}

	var parent *types.Task
	if t.ParentTaskID != "" {
		if parent, ok = b.task(wb, t.ParentTaskID); !ok {
			return nil, &types.NotFoundError{Entity: "task", ID: t.ParentTaskID}
		}
	}

	children := make([]*types.Task, 0, len(t.ChildTaskIDs))
	for _, childID := range t.ChildTaskIDs {
		child, ok := b.task(wb, childID)
		if !ok {
			return nil, &types.NotFoundError{Entity: "task", ID: childID}
		}
		if child.ParentTaskID != "" && child.ParentTaskID != t.ID {
			return nil, &types.PreconditionError{
				Entity: "task",
				ID:     childID,
				Reason: fmt.Sprintf("already has parent '%s'", child.ParentTaskID),
			}
		}
		children = append(children, child)
	}

	if t.ParentTaskID != "" {
		for _, ancestor := range b.ancestors(wb, t.ParentTaskID, nil) {
			if types.ContainsID(t.ChildTaskIDs, ancestor) {
				return nil, &types.ValidationError{Entity: "task", Field: "childTaskIds", Message: fmt.Sprintf("contains ancestor '%s'", ancestor)}
			}
		}
	}

	wb.putTask(t)

	list.TaskIDs = types.PrependID(list.TaskIDs, t.ID)
	wb.putList(list)

	if parent != nil {
		parent.ChildTaskIDs = types.AppendID(parent.ChildTaskIDs, t.ID)
		wb.putTask(parent)
	}

	for _, child := range children {
		child.ParentTaskID = t.ID
		wb.putTask(child)
	}
	return t, nil
}

// PatchTask merges the set fields of patch into the task and reconciles
// every redundant reference, in this order:
//
//  1. list: the id is removed from every list holding it and prepended to
//     the new list
//  2. parent: the id moves from the old parent's childTaskIds to the new
//     parent's
//  3. children: removed children are orphaned, added children are adopted
//     (and removed from their previous parent)
//
// doneTimestamp is set when the task becomes done and cleared when it stops
// being done.
func (b *Backend) PatchTask(ctx context.Context, ref TaskRef, patch TaskPatch) (*types.Task, error) {
	var id string
	err := b.mutate(ctx, "patchTask", func(wb *writeBatch) error {
		t, err := b.patchTaskLocked(wb, ref, patch)
		if err != nil {
			return err
		}
		id = t.ID
		return nil
	})
	if id == "" {
		return nil, err
	}
	return b.committedTask(id), err
}

func (b *Backend) patchTaskLocked(wb *writeBatch, ref TaskRef, patch TaskPatch) (*types.Task, error) {
	old, err := b.resolveTask(wb, ref)
	if err != nil {
		return nil, err
	}

	t := old.Clone()
	t.Title = patch.Title.Get(t.Title)
	t.Description = patch.Description.Get(t.Description)
	t.ListID = patch.ListID.Get(t.ListID)
	t.ParentTaskID = patch.ParentTaskID.Get(t.ParentTaskID)
	if patch.ChildTaskIDs.Set {
		t.ChildTaskIDs = append([]string{}, patch.ChildTaskIDs.Value...)
	}
	t.IsDone = patch.IsDone.Get(t.IsDone)
	t.DueByTimestamp = patch.DueByTimestamp.Get(t.DueByTimestamp)
	t.SyncDoneTimestamp(b.now())
	t.Normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}

	listChanged := t.ListID != old.ListID
	parentChanged := t.ParentTaskID != old.ParentTaskID
	removedChildren := difference(old.ChildTaskIDs, t.ChildTaskIDs)
	addedChildren := difference(t.ChildTaskIDs, old.ChildTaskIDs)

	if listChanged {
		if _, ok := b.list(wb, t.ListID); !ok {
			return nil, &types.NotFoundError{Entity: "list", ID: t.ListID}
		}
	}
	if parentChanged && t.ParentTaskID != "" {
		if _, ok := b.task(wb, t.ParentTaskID); !ok {
			return nil, &types.NotFoundError{Entity: "task", ID: t.ParentTaskID}
		}
	}
	for _, childID := range addedChildren {
		if _, ok := b.task(wb, childID); !ok {
			return nil, &types.NotFoundError{Entity: "task", ID: childID}
		}
	}
	if t.ParentTaskID != "" && (parentChanged || len(addedChildren) > 0) {
		// Removed children lose their link to t in this same patch.
		detached := make(map[string]bool, len(removedChildren))
		for _, id := range removedChildren {
			detached[id] = true
		}
		for _, ancestor := range b.ancestors(wb, t.ParentTaskID, detached) {
			if ancestor == t.ID || types.ContainsID(t.ChildTaskIDs, ancestor) {
				return nil, &types.ValidationError{Entity: "task", Field: "parentTaskId", Message: fmt.Sprintf("would create a cycle through '%s'", ancestor)}
			}
		}
	}

	if listChanged {
		b.detachFromListsLocked(wb, t.ID, t.ListID)
		list, _ := b.list(wb, t.ListID)
		list.TaskIDs = types.PrependID(list.TaskIDs, t.ID)
		wb.putList(list)
	}

	if parentChanged {
		if old.ParentTaskID != "" {
			if oldParent, ok := b.task(wb, old.ParentTaskID); ok {
				if ids, removed := types.RemoveID(oldParent.ChildTaskIDs, t.ID); removed {
					oldParent.ChildTaskIDs = ids
					wb.putTask(oldParent)
				}
			} else {
				b.logger.Printf("Warning: old parent %s of task %s not found", old.ParentTaskID, t.ID)
			}
		}
		if t.ParentTaskID != "" {
			newParent, _ := b.task(wb, t.ParentTaskID)
			newParent.ChildTaskIDs = types.AppendID(newParent.ChildTaskIDs, t.ID)
			wb.putTask(newParent)
		}
	}

	for _, childID := range removedChildren {
		child, ok := b.task(wb, childID)
		if !ok || child.ParentTaskID != t.ID {
			continue
		}
		child.ParentTaskID = ""
		wb.putTask(child)
	}
	for _, childID := range addedChildren {
		child, _ := b.task(wb, childID)
		if child.ParentTaskID == t.ID {
			continue
		}
		if child.ParentTaskID != "" {
			if prev, ok := b.task(wb, child.ParentTaskID); ok {
				if ids, removed := types.RemoveID(prev.ChildTaskIDs, childID); removed {
					prev.ChildTaskIDs = ids
					wb.putTask(prev)
				}
			}
		}
		child.ParentTaskID = t.ID
		wb.putTask(child)
	}

	wb.putTask(t)
	return t, nil
}

// DeleteTask removes a task that has no children. A task with children is a
// PreconditionError and nothing is changed.
//
// The id is removed from every list and from the parent's childTaskIds. The
// task leaves the entity store before the remote delete is issued.
func (b *Backend) DeleteTask(ctx context.Context, ref TaskRef) error {
	return b.mutate(ctx, "deleteTask", func(wb *writeBatch) error {
		return b.deleteTaskLocked(wb, ref)
	})
}

func (b *Backend) deleteTaskLocked(wb *writeBatch, ref TaskRef) error {
	t, err := b.resolveTask(wb, ref)
	if err != nil {
		return err
	}
	if len(t.ChildTaskIDs) > 0 {
		return &types.PreconditionError{Entity: "task", ID: t.ID, Reason: "cannot delete a task with children"}
	}

	b.detachFromListsLocked(wb, t.ID, "")

	if t.ParentTaskID != "" {
		if parent, ok := b.task(wb, t.ParentTaskID); ok {
			if ids, removed := types.RemoveID(parent.ChildTaskIDs, t.ID); removed {
				parent.ChildTaskIDs = ids
				wb.putTask(parent)
			}
		}
	}

	// Stale children pointing at the task are orphaned.
	for _, other := range b.tasks(wb) {
		if other.ID != t.ID && other.ParentTaskID == t.ID {
			b.logger.Printf("Warning: orphaning task %s left pointing at deleted parent %s", other.ID, t.ID)
			other.ParentTaskID = ""
			wb.putTask(other)
		}
	}

	wb.deleteTask(t.ID)
	return nil
}

// ancestors walks parentTaskId upwards from id, inclusive, stopping at the
// first unknown or repeated task. Tasks in detached are treated as having
// no parent.
func (b *Backend) ancestors(wb *writeBatch, id string, detached map[string]bool) []string {
	var out []string
	seen := make(map[string]bool)
	for id != "" && !seen[id] {
		seen[id] = true
		out = append(out, id)
		t, ok := b.task(wb, id)
		if !ok || detached[id] {
			break
		}
		id = t.ParentTaskID
	}
	return out
}

// difference returns the ids in a that are not in b, in a's order.
func difference(a, b []string) []string {
	var out []string
	for _, id := range a {
		if !types.ContainsID(b, id) {
			out = append(out, id)
		}
	}
	return out
}
