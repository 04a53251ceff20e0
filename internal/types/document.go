package types

import (
	"encoding/json"
	"fmt"
)

// DecodeList parses a list document. The result is not validated: remote
// documents are trusted as received and checked later by the integrity scan.
func DecodeList(data []byte) (*List, error) {
	var l List
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to parse list document: %w", err)
	}
	l.Normalize()
	return &l, nil
}

// DecodeTask parses a task document without validating it.
func DecodeTask(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse task document: %w", err)
	}
	t.Normalize()
	return &t, nil
}

// DecodeArchivedTask parses an archive document.
func DecodeArchivedTask(data []byte) (*ArchivedTask, error) {
	var a ArchivedTask
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse archived task document: %w", err)
	}
	a.Normalize()
	return &a, nil
}

// Encode marshals a document for the remote store.
func Encode(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return data, nil
}

// Normalize replaces a null taskIds with an empty slice.
func (l *List) Normalize() {
	if l.TaskIDs == nil {
		l.TaskIDs = []string{}
	}
}

// Normalize replaces a null childTaskIds with an empty slice.
func (t *Task) Normalize() {
	if t.ChildTaskIDs == nil {
		t.ChildTaskIDs = []string{}
	}
}
