package backend

import (
	"context"
	"fmt"
	"sort"

	"github.com/michaelomichael/tracka/internal/types"
)

// ArchiveDoneTasks moves every task that is safe to archive into the archive
// collection and returns how many were moved.
//
// A task is safe when it is done and every task reachable from it through
// parent or child links is done as well. A not-done task blocks its whole
// connected chain: in A(done) -> B(done) -> C(not done), none are archived.
func (b *Backend) ArchiveDoneTasks(ctx context.Context) (int, error) {
	count := 0
	err := b.mutate(ctx, "archiveDoneTasks", func(wb *writeBatch) error {
		all := b.tasks(wb)
		safe := archivable(all)
		if len(safe) == 0 {
			return nil
		}

		now := b.now()
		byID := make(map[string]*types.Task, len(all))
		for _, t := range all {
			byID[t.ID] = t
		}

		for _, id := range safe {
			wb.putArchived(&types.ArchivedTask{Task: *byID[id].Clone(), ArchivedTimestamp: now})
		}

		// Links are cleared first so that each task passes the
		// no-children precondition of the normal delete path.
		for _, id := range safe {
			t, _ := b.task(wb, id)
			t.ParentTaskID = ""
			t.ChildTaskIDs = []string{}
			wb.putTask(t)
		}
		for _, id := range safe {
			if err := b.deleteTaskLocked(wb, TaskByID(id)); err != nil {
				return fmt.Errorf("failed to archive task %s: %w", id, err)
			}
		}
		count = len(safe)
		return nil
	})
	if err != nil && count == 0 {
		return 0, err
	}
	if count > 0 {
		b.logger.Printf("Archived %d done tasks", count)
	}
	return count, err
}

// archivable returns the ids of the done tasks whose connected chain is
// entirely done, sorted.
func archivable(tasks []*types.Task) []string {
	byID := make(map[string]*types.Task, len(tasks))
	excluded := make(map[string]bool)
	for _, t := range tasks {
		byID[t.ID] = t
		if !t.IsDone {
			excluded[t.ID] = true
		}
	}

	for changed := true; changed; {
		changed = false
		for _, t := range tasks {
			if excluded[t.ID] {
				continue
			}
			blocked := t.ParentTaskID != "" && excluded[t.ParentTaskID]
			for _, childID := range t.ChildTaskIDs {
				if excluded[childID] {
					blocked = true
					break
				}
			}
			// Links recorded only on the other side count too.
			if !blocked {
				for _, other := range tasks {
					if !excluded[other.ID] {
						continue
					}
					if other.ParentTaskID == t.ID || types.ContainsID(other.ChildTaskIDs, t.ID) {
						blocked = true
						break
					}
				}
			}
			if blocked {
				excluded[t.ID] = true
				changed = true
			}
		}
	}

	var out []string
	for _, t := range tasks {
		if !excluded[t.ID] {
			out = append(out, t.ID)
		}
	}
	sort.Strings(out)
	return out
}

// GetArchivedTasks reads the current user's archive, most recently archived
// first.
func (b *Backend) GetArchivedTasks(ctx context.Context) ([]*types.ArchivedTask, error) {
	b.mu.Lock()
	if err := b.requireLoadedLocked("getArchivedTasks"); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	userID := b.userID
	b.mu.Unlock()

	docs, err := b.remote.GetAll(ctx, types.CollectionArchivedTasks, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load archived tasks: %w", err)
	}

	out := make([]*types.ArchivedTask, 0, len(docs))
	for _, doc := range docs {
		a, err := types.DecodeArchivedTask(doc.Data)
		if err != nil {
			b.logger.Printf("Warning: skipping archived task %s: %v", doc.ID, err)
			continue
		}
		if a.ID == "" {
			a.ID = doc.ID
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ArchivedTimestamp.Equal(out[j].ArchivedTimestamp) {
			return out[i].ArchivedTimestamp.After(out[j].ArchivedTimestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
