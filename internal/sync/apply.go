package sync

import (
	"log"
	"os"

	"github.com/michaelomichael/tracka/internal/remote"
	"github.com/michaelomichael/tracka/internal/store"
	"github.com/michaelomichael/tracka/internal/types"
)

// Guard lets the consumer veto individual remote changes, for example an
// echo of a write that has since been superseded locally. version is 0 for
// removals.
type Guard interface {
	ShouldApply(collection types.Collection, id string, version int, removed bool) bool
}

// Result counts what Apply did with a snapshot.
type Result struct {
	Upserted int
	Removed  int
	Skipped  int
}

// Apply folds one event into st. Added and modified documents are upserted
// by id, removed documents are deleted. Documents that cannot be decoded are
// logged and skipped; everything else is stored as received.
//
// Applying the same event twice leaves st in the same state as applying it
// once. guard and logger may be nil.
func Apply(st *store.Store, ev Event, guard Guard, logger *log.Logger) Result {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}

	var res Result
	for _, ch := range ev.Snapshot.Changes {
		if ch.Type == remote.ChangeRemoved {
			if guard != nil && !guard.ShouldApply(ev.Collection, ch.ID, 0, true) {
				res.Skipped++
				continue
			}
			switch ev.Collection {
			case types.CollectionLists:
				st.DeleteList(ch.ID)
			case types.CollectionTasks:
				st.DeleteTask(ch.ID)
			}
			res.Removed++
			continue
		}

		switch ev.Collection {
		case types.CollectionLists:
			l, err := types.DecodeList(ch.Data)
			if err != nil {
				logger.Printf("WARNING: skipping list %s: %v", ch.ID, err)
				res.Skipped++
				continue
			}
			if l.ID == "" {
				l.ID = ch.ID
			}
			if guard != nil && !guard.ShouldApply(ev.Collection, l.ID, l.Version, false) {
				res.Skipped++
				continue
			}
			st.PutList(l)
			res.Upserted++

		case types.CollectionTasks:
			t, err := types.DecodeTask(ch.Data)
			if err != nil {
				logger.Printf("WARNING: skipping task %s: %v", ch.ID, err)
				res.Skipped++
				continue
			}
			if t.ID == "" {
				t.ID = ch.ID
			}
			if guard != nil && !guard.ShouldApply(ev.Collection, t.ID, t.Version, false) {
				res.Skipped++
				continue
			}
			st.PutTask(t)
			res.Upserted++

		default:
			res.Skipped++
		}
	}
	return res
}
