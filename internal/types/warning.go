package types

import "fmt"

// WarningCode identifies the kind of integrity problem found.
type WarningCode string

const (
	WarnListUnknownTask      WarningCode = "list_unknown_task"
	WarnListTaskMismatch     WarningCode = "list_task_mismatch"
	WarnTaskUnknownList      WarningCode = "task_unknown_list"
	WarnTaskMissingFromList  WarningCode = "task_missing_from_list"
	WarnTaskSelfParent       WarningCode = "task_self_parent"
	WarnTaskSelfChild        WarningCode = "task_self_child"
	WarnTaskParentIsChild    WarningCode = "task_parent_is_child"
	WarnTaskUnknownChild     WarningCode = "task_unknown_child"
	WarnTaskUnknownParent    WarningCode = "task_unknown_parent"
	WarnParentMissingChild   WarningCode = "parent_missing_child"
	WarnChildParentMismatch  WarningCode = "child_parent_mismatch"
	WarnDuplicateSpecialList WarningCode = "duplicate_special_list"
)

// Warning is a non-fatal finding from the integrity scan.
type Warning struct {
	Code       WarningCode `json:"code" yaml:"code"`
	Message    string      `json:"message" yaml:"message"`
	EntityKind string      `json:"entityKind" yaml:"entityKind"`
	EntityID   string      `json:"entityId" yaml:"entityId"`
	Repaired   bool        `json:"repaired,omitempty" yaml:"repaired,omitempty"`
}

func (w Warning) String() string {
	s := fmt.Sprintf("[%s] %s %s: %s", w.Code, w.EntityKind, w.EntityID, w.Message)
	if w.Repaired {
		s += " (repaired)"
	}
	return s
}
