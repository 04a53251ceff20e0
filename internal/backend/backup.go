package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/michaelomichael/tracka/internal/types"
)

// Backup is the full entity set keyed by id.
type Backup struct {
	ListsByID map[string]*types.List `json:"listsById"`
	TasksByID map[string]*types.Task `json:"tasksById"`
}

// CreateBackupJSON serialises every list and task of the current user.
func (b *Backend) CreateBackupJSON() ([]byte, error) {
	if !b.store.IsLoaded() {
		return nil, &types.LoadStateError{Op: "createBackupJson", State: string(b.State())}
	}
	lists, tasks := b.store.Snapshot()
	data, err := json.MarshalIndent(Backup{ListsByID: lists, TasksByID: tasks}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode backup: %w", err)
	}
	return data, nil
}

// RestoreFromBackupJSON replaces the current user's lists and tasks with the
// backup's. Entities absent from the backup are deleted, the rest are
// written over by id and re-owned by the current user. Default-list
// provisioning and the integrity scan run again afterwards.
//
// The restore is not transactional: if remote writes fail part way, the
// entity store and the remote store diverge until the next load.
func (b *Backend) RestoreFromBackupJSON(ctx context.Context, data []byte) ([]types.Warning, error) {
	var backup Backup
	if err := json.Unmarshal(data, &backup); err != nil {
		return nil, fmt.Errorf("failed to parse backup: %w", err)
	}

	var warnings []types.Warning
	err := b.mutate(ctx, "restoreFromBackupJson", func(wb *writeBatch) error {
		for _, l := range b.lists(wb) {
			if _, ok := backup.ListsByID[l.ID]; !ok {
				wb.deleteList(l.ID)
			}
		}
		for _, t := range b.tasks(wb) {
			if _, ok := backup.TasksByID[t.ID]; !ok {
				wb.deleteTask(t.ID)
			}
		}

		for _, id := range sortedKeys(backup.ListsByID) {
			l := backup.ListsByID[id]
			if l == nil {
				continue
			}
			l = l.Clone()
			l.ID = id
			l.OwnerID = b.userID
			l.Normalize()
			if cur, ok := b.store.List(id); ok {
				l.Version = max(l.Version, cur.Version) + 1
			} else if l.Version < 1 {
				l.Version = 1
			}
			wb.putListExact(l)
		}
		for _, id := range sortedKeys(backup.TasksByID) {
			t := backup.TasksByID[id]
			if t == nil {
				continue
			}
			t = t.Clone()
			t.ID = id
			t.OwnerID = b.userID
			t.Normalize()
			if cur, ok := b.store.Task(id); ok {
				t.Version = max(t.Version, cur.Version) + 1
			} else if t.Version < 1 {
				t.Version = 1
			}
			wb.putTaskExact(t)
		}

		warnings = b.provisionDefaultListsLocked(wb)
		warnings = append(warnings, b.checkIntegrityLocked(wb)...)
		b.setWarnings(warnings)
		return nil
	})
	if err == nil {
		b.logger.Printf("Restored %d lists and %d tasks from backup", len(backup.ListsByID), len(backup.TasksByID))
	}
	return warnings, err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
