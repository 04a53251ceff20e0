package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Task is a work item owned by exactly one list and optionally nested under
// a parent task. An empty ParentTaskID means the task has no parent and is
// encoded as null.
type Task struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	ListID       string   `json:"listId"`
	ParentTaskID string   `json:"parentTaskId"`
	ChildTaskIDs []string `json:"childTaskIds"`

	IsDone         bool       `json:"isDone"`
	DoneTimestamp  *time.Time `json:"doneTimestamp"`
	DueByTimestamp *time.Time `json:"dueByTimestamp"`

	OwnerID           string    `json:"ownerId"`
	CreatedTimestamp  time.Time `json:"createdTimestamp"`
	ModifiedTimestamp time.Time `json:"modifiedTimestamp"`
	Version           int       `json:"version"`
}

// Validate checks the single-document invariants of a task.
func (t *Task) Validate() error {
	if t.Title == "" {
		return &ValidationError{Entity: "task", Field: "title", Message: "should not be empty"}
	}
	if t.ListID == "" {
		return &ValidationError{Entity: "task", Field: "listId", Message: "should not be empty"}
	}
	if dup, ok := hasDuplicates(t.ChildTaskIDs); ok {
		return &ValidationError{Entity: "task", Field: "childTaskIds", Message: fmt.Sprintf("contains duplicate id '%s'", dup)}
	}
	if t.ID != "" {
		if t.ParentTaskID == t.ID {
			return &ValidationError{Entity: "task", Field: "parentTaskId", Message: "should not reference the task itself"}
		}
		if ContainsID(t.ChildTaskIDs, t.ID) {
			return &ValidationError{Entity: "task", Field: "childTaskIds", Message: "should not reference the task itself"}
		}
	}
	if t.ParentTaskID != "" && ContainsID(t.ChildTaskIDs, t.ParentTaskID) {
		return &ValidationError{Entity: "task", Field: "childTaskIds", Message: fmt.Sprintf("contains the parent id '%s'", t.ParentTaskID)}
	}
	return nil
}

// Clone returns a deep copy.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.ChildTaskIDs = cloneIDs(t.ChildTaskIDs)
	c.DoneTimestamp = cloneTime(t.DoneTimestamp)
	c.DueByTimestamp = cloneTime(t.DueByTimestamp)
	return &c
}

// SyncDoneTimestamp sets DoneTimestamp when the task is done and has none,
// and clears it when the task is not done.
func (t *Task) SyncDoneTimestamp(now time.Time) {
	switch {
	case t.IsDone && t.DoneTimestamp == nil:
		t.DoneTimestamp = &now
	case !t.IsDone:
		t.DoneTimestamp = nil
	}
}

// ArchivedTask is the copy written to the archive collection.
type ArchivedTask struct {
	Task
	ArchivedTimestamp time.Time `json:"archivedTimestamp"`
}

// taskFields is Task without its JSON methods.
type taskFields Task

// taskJSON shadows parentTaskId so that no parent travels as null.
type taskJSON struct {
	*taskFields
	ParentTaskID *string `json:"parentTaskId"`
}

func newTaskJSON(t *Task) taskJSON {
	w := taskJSON{taskFields: (*taskFields)(t)}
	if t.ParentTaskID != "" {
		id := t.ParentTaskID
		w.ParentTaskID = &id
	}
	return w
}

func (w taskJSON) parentID() string {
	if w.ParentTaskID == nil {
		return ""
	}
	return *w.ParentTaskID
}

// MarshalJSON encodes an empty ParentTaskID as null.
func (t Task) MarshalJSON() ([]byte, error) {
	return json.Marshal(newTaskJSON(&t))
}

// UnmarshalJSON accepts null or a string for parentTaskId.
func (t *Task) UnmarshalJSON(data []byte) error {
	w := taskJSON{taskFields: (*taskFields)(t)}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	t.ParentTaskID = w.parentID()
	return nil
}

type archivedTaskJSON struct {
	taskJSON
	ArchivedTimestamp time.Time `json:"archivedTimestamp"`
}

// MarshalJSON keeps the Task encoding and adds archivedTimestamp.
func (a ArchivedTask) MarshalJSON() ([]byte, error) {
	return json.Marshal(archivedTaskJSON{
		taskJSON:          newTaskJSON(&a.Task),
		ArchivedTimestamp: a.ArchivedTimestamp,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (a *ArchivedTask) UnmarshalJSON(data []byte) error {
	w := archivedTaskJSON{taskJSON: taskJSON{taskFields: (*taskFields)(&a.Task)}}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	a.Task.ParentTaskID = w.parentID()
	a.ArchivedTimestamp = w.ArchivedTimestamp
	return nil
}
