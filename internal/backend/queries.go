package backend

import (
	"strings"

	"github.com/michaelomichael/tracka/internal/types"
)

// Reads go straight to the entity store, whose lookup gate is open only in
// LOADING_COMPLETE. They never take the backend lock, so store listeners
// may call them.

// GetList returns the list with id. See store.Store.GetList for mustExist.
func (b *Backend) GetList(id string, mustExist bool) (*types.List, error) {
	return b.store.GetList(id, mustExist)
}

// GetTask returns the task with id. See store.Store.GetTask for mustExist.
func (b *Backend) GetTask(id string, mustExist bool) (*types.Task, error) {
	return b.store.GetTask(id, mustExist)
}

// Lists returns every list sorted by order.
func (b *Backend) Lists() ([]*types.List, error) {
	if !b.store.IsLoaded() {
		return nil, &types.LoadStateError{Op: "lists", State: string(b.State())}
	}
	return b.store.Lists(), nil
}

// Tasks returns every task.
func (b *Backend) Tasks() ([]*types.Task, error) {
	if !b.store.IsLoaded() {
		return nil, &types.LoadStateError{Op: "tasks", State: string(b.State())}
	}
	return b.store.Tasks(), nil
}

// SpecialList returns the single list tagged cat.
func (b *Backend) SpecialList(cat types.SpecialCategory, tolerateMultiple bool) (*types.List, error) {
	if !b.store.IsLoaded() {
		return nil, &types.LoadStateError{Op: "specialList", State: string(b.State())}
	}
	return b.store.SpecialList(cat, tolerateMultiple)
}

// DoneList returns the DONE list. Duplicates are tolerated with a warning.
func (b *Backend) DoneList() (*types.List, error) {
	return b.SpecialList(types.CategoryDone, true)
}

// NewItemsList returns the TODAY list, where newly captured tasks go.
// Duplicates are tolerated with a warning.
func (b *Backend) NewItemsList() (*types.List, error) {
	return b.SpecialList(types.CategoryToday, true)
}

// GetListForTask returns the list the task belongs to, or nil with a logged
// warning when that list is unknown.
func (b *Backend) GetListForTask(taskID string) (*types.List, error) {
	t, err := b.store.GetTask(taskID, true)
	if err != nil {
		return nil, err
	}
	return b.store.GetList(t.ListID, false)
}

// GetParentTaskForTask returns the parent, or nil if the task has none.
func (b *Backend) GetParentTaskForTask(taskID string) (*types.Task, error) {
	t, err := b.store.GetTask(taskID, true)
	if err != nil {
		return nil, err
	}
	if t.ParentTaskID == "" {
		return nil, nil
	}
	return b.store.GetTask(t.ParentTaskID, false)
}

// GetChildTasksForTask returns the known children in childTaskIds order.
// Unknown ids are skipped with a logged warning.
func (b *Backend) GetChildTasksForTask(taskID string) ([]*types.Task, error) {
	t, err := b.store.GetTask(taskID, true)
	if err != nil {
		return nil, err
	}
	children := make([]*types.Task, 0, len(t.ChildTaskIDs))
	for _, id := range t.ChildTaskIDs {
		child, err := b.store.GetTask(id, false)
		if err != nil {
			return nil, err
		}
		if child != nil {
			children = append(children, child)
		}
	}
	return children, nil
}

// GetParentAndChildTasksForTask returns the parent, if any, followed by the
// children.
func (b *Backend) GetParentAndChildTasksForTask(taskID string) ([]*types.Task, error) {
	parent, err := b.GetParentTaskForTask(taskID)
	if err != nil {
		return nil, err
	}
	children, err := b.GetChildTasksForTask(taskID)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Task, 0, len(children)+1)
	if parent != nil {
		out = append(out, parent)
	}
	return append(out, children...), nil
}

// FindTasks returns the tasks whose title or description contains search,
// ignoring case.
func (b *Backend) FindTasks(search string) ([]*types.Task, error) {
	all, err := b.Tasks()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(search)
	var out []*types.Task
	for _, t := range all {
		if strings.Contains(strings.ToLower(t.Title), needle) ||
			strings.Contains(strings.ToLower(t.Description), needle) {
			out = append(out, t)
		}
	}
	return out, nil
}
