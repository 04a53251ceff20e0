package backend

import (
	"context"
	"fmt"

	"github.com/michaelomichael/tracka/internal/types"
)

// CheckDataIntegrity rescans the loaded data, repairs what it can and
// replaces the warnings list with the findings.
func (b *Backend) CheckDataIntegrity(ctx context.Context) ([]types.Warning, error) {
	var warnings []types.Warning
	err := b.mutate(ctx, "checkDataIntegrity", func(wb *writeBatch) error {
		warnings = b.checkIntegrityLocked(wb)
		b.setWarnings(warnings)
		return nil
	})
	return warnings, err
}

// checkIntegrityLocked flags dangling, self and mismatched references. The
// only repair is adding a task to its list when the list does not hold it.
func (b *Backend) checkIntegrityLocked(wb *writeBatch) []types.Warning {
	var warnings []types.Warning
	warn := func(code types.WarningCode, kind, id string, repaired bool, format string, args ...any) {
		warnings = append(warnings, types.Warning{
			Code:       code,
			Message:    fmt.Sprintf(format, args...),
			EntityKind: kind,
			EntityID:   id,
			Repaired:   repaired,
		})
	}

	tasks := b.tasks(wb)
	byID := make(map[string]*types.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	for _, l := range b.lists(wb) {
		for _, taskID := range l.TaskIDs {
			t, ok := byID[taskID]
			switch {
			case !ok:
				warn(types.WarnListUnknownTask, "list", l.ID, false, "taskIds references unknown task '%s'", taskID)
			case t.ListID != l.ID:
				warn(types.WarnListTaskMismatch, "list", l.ID, false, "holds task '%s' whose listId is '%s'", taskID, t.ListID)
			}
		}
	}

	for _, t := range tasks {
		if l, ok := b.list(wb, t.ListID); !ok {
			warn(types.WarnTaskUnknownList, "task", t.ID, false, "listId references unknown list '%s'", t.ListID)
		} else if !types.ContainsID(l.TaskIDs, t.ID) {
			l.TaskIDs = append(l.TaskIDs, t.ID)
			wb.putList(l)
			warn(types.WarnTaskMissingFromList, "task", t.ID, true, "missing from taskIds of list '%s'", l.ID)
		}

		if t.ParentTaskID != "" && t.ParentTaskID == t.ID {
			warn(types.WarnTaskSelfParent, "task", t.ID, false, "parentTaskId references itself")
		}
		if types.ContainsID(t.ChildTaskIDs, t.ID) {
			warn(types.WarnTaskSelfChild, "task", t.ID, false, "childTaskIds references itself")
		}
		if t.ParentTaskID != "" && types.ContainsID(t.ChildTaskIDs, t.ParentTaskID) {
			warn(types.WarnTaskParentIsChild, "task", t.ID, false, "'%s' is both parent and child", t.ParentTaskID)
		}

		if t.ParentTaskID != "" && t.ParentTaskID != t.ID {
			if parent, ok := byID[t.ParentTaskID]; !ok {
				warn(types.WarnTaskUnknownParent, "task", t.ID, false, "parentTaskId references unknown task '%s'", t.ParentTaskID)
			} else if !types.ContainsID(parent.ChildTaskIDs, t.ID) {
				warn(types.WarnParentMissingChild, "task", t.ID, false, "parent '%s' does not list it as a child", t.ParentTaskID)
			}
		}

		for _, childID := range t.ChildTaskIDs {
			if childID == t.ID {
				continue
			}
			child, ok := byID[childID]
			if !ok {
				warn(types.WarnTaskUnknownChild, "task", t.ID, false, "childTaskIds references unknown task '%s'", childID)
			} else if child.ParentTaskID != t.ID {
				warn(types.WarnChildParentMismatch, "task", t.ID, false, "child '%s' has parentTaskId '%s'", childID, child.ParentTaskID)
			}
		}
	}
	return warnings
}

// provisionDefaultListsLocked makes sure each special category is carried by
// exactly one list. A missing list is created after the existing ones. Of
// several lists with the same category the one holding most tasks survives
// (the first in list order on a tie); tasks pointing at a duplicate move to
// the survivor and the duplicate is deleted.
func (b *Backend) provisionDefaultListsLocked(wb *writeBatch) []types.Warning {
	var warnings []types.Warning

	for _, cat := range types.SpecialCategories {
		var matches []*types.List
		for _, l := range b.lists(wb) {
			if l.SpecialCategory == cat {
				matches = append(matches, l)
			}
		}

		switch {
		case len(matches) == 0:
			l, err := b.addListLocked(wb, NewList{Name: cat.DefaultListName(), SpecialCategory: cat})
			if err != nil {
				b.logger.Printf("Error: failed to create %s list: %v", cat, err)
				continue
			}
			b.logger.Printf("Created missing %s list %s", cat, l.ID)

		case len(matches) > 1:
			survivor := matches[0]
			for _, l := range matches[1:] {
				if len(l.TaskIDs) > len(survivor.TaskIDs) {
					survivor = l
				}
			}

			for _, dup := range matches {
				if dup.ID == survivor.ID {
					continue
				}
				moved := 0
				for _, t := range b.tasks(wb) {
					if t.ListID != dup.ID {
						continue
					}
					t.ListID = survivor.ID
					wb.putTask(t)
					survivor.TaskIDs = types.AppendID(survivor.TaskIDs, t.ID)
					moved++
				}
				if moved > 0 {
					wb.putList(survivor)
				}
				wb.deleteList(dup.ID)
				warnings = append(warnings, types.Warning{
					Code:       types.WarnDuplicateSpecialList,
					Message:    fmt.Sprintf("duplicate %s list merged into '%s' (%d tasks moved)", cat, survivor.ID, moved),
					EntityKind: "list",
					EntityID:   dup.ID,
					Repaired:   true,
				})
			}
		}
	}
	return warnings
}
