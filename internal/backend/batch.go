package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	gosync "sync"

	"golang.org/x/sync/errgroup"

	"github.com/michaelomichael/tracka/internal/types"
)

// maxConcurrentWrites bounds the remote writes in flight for one batch.
const maxConcurrentWrites = 8

type docKey struct {
	coll types.Collection
	id   string
}

// stagedOp is the final state of one document within a batch.
type stagedOp struct {
	list     *types.List
	task     *types.Task
	archived *types.ArchivedTask
	deleted  bool

	// exact keeps the staged version as is instead of bumping it past the
	// stored one.
	exact bool
}

// writeBatch collects the documents a mutation changes. Each document
// appears once, in the order it was first touched, holding its final state.
type writeBatch struct {
	order []docKey
	ops   map[docKey]*stagedOp
}

func newWriteBatch() *writeBatch {
	return &writeBatch{ops: make(map[docKey]*stagedOp)}
}

func (wb *writeBatch) op(k docKey) *stagedOp {
	op, ok := wb.ops[k]
	if !ok {
		op = &stagedOp{}
		wb.ops[k] = op
		wb.order = append(wb.order, k)
	}
	return op
}

// putList stages l. A list already staged with an exact version keeps it.
func (wb *writeBatch) putList(l *types.List) {
	op := wb.op(docKey{types.CollectionLists, l.ID})
	*op = stagedOp{list: l.Clone(), exact: op.exact && !op.deleted}
}

func (wb *writeBatch) putListExact(l *types.List) {
	op := wb.op(docKey{types.CollectionLists, l.ID})
	*op = stagedOp{list: l.Clone(), exact: true}
}

func (wb *writeBatch) putTask(t *types.Task) {
	op := wb.op(docKey{types.CollectionTasks, t.ID})
	*op = stagedOp{task: t.Clone(), exact: op.exact && !op.deleted}
}

func (wb *writeBatch) putTaskExact(t *types.Task) {
	op := wb.op(docKey{types.CollectionTasks, t.ID})
	*op = stagedOp{task: t.Clone(), exact: true}
}

func (wb *writeBatch) putArchived(a *types.ArchivedTask) {
	c := &types.ArchivedTask{Task: *a.Task.Clone(), ArchivedTimestamp: a.ArchivedTimestamp}
	op := wb.op(docKey{types.CollectionArchivedTasks, a.ID})
	*op = stagedOp{archived: c}
}

func (wb *writeBatch) deleteList(id string) {
	op := wb.op(docKey{types.CollectionLists, id})
	*op = stagedOp{deleted: true}
}

func (wb *writeBatch) deleteTask(id string) {
	op := wb.op(docKey{types.CollectionTasks, id})
	*op = stagedOp{deleted: true}
}

// list returns the staged or stored list with id.
func (b *Backend) list(wb *writeBatch, id string) (*types.List, bool) {
	if op, ok := wb.ops[docKey{types.CollectionLists, id}]; ok {
		if op.deleted {
			return nil, false
		}
		return op.list.Clone(), true
	}
	return b.store.List(id)
}

// task returns the staged or stored task with id.
func (b *Backend) task(wb *writeBatch, id string) (*types.Task, bool) {
	if op, ok := wb.ops[docKey{types.CollectionTasks, id}]; ok {
		if op.deleted {
			return nil, false
		}
		return op.task.Clone(), true
	}
	return b.store.Task(id)
}

// lists returns every list as the batch would leave it, sorted by order
// then id.
func (b *Backend) lists(wb *writeBatch) []*types.List {
	byID := make(map[string]*types.List)
	for _, l := range b.store.Lists() {
		byID[l.ID] = l
	}
	for k, op := range wb.ops {
		if k.coll != types.CollectionLists {
			continue
		}
		if op.deleted {
			delete(byID, k.id)
		} else {
			byID[k.id] = op.list.Clone()
		}
	}
	out := make([]*types.List, 0, len(byID))
	for _, l := range byID {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// tasks returns every task as the batch would leave it, sorted by id.
func (b *Backend) tasks(wb *writeBatch) []*types.Task {
	byID := make(map[string]*types.Task)
	for _, t := range b.store.Tasks() {
		byID[t.ID] = t
	}
	for k, op := range wb.ops {
		if k.coll != types.CollectionTasks {
			continue
		}
		if op.deleted {
			delete(byID, k.id)
		} else {
			byID[k.id] = op.task.Clone()
		}
	}
	out := make([]*types.Task, 0, len(byID))
	for _, t := range byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// nextOrder is max(order)+1 over the batch's view of the lists, or 0.
func (b *Backend) nextOrder(wb *writeBatch) int {
	next := 0
	for _, l := range b.lists(wb) {
		if l.Order+1 > next {
			next = l.Order + 1
		}
	}
	return next
}

// applyLocked writes the batch into the entity store. Updated documents get
// version+1 and a fresh modification time unless staged as exact. Every
// write is recorded as pending so that stale remote echoes are ignored.
func (b *Backend) applyLocked(wb *writeBatch) {
	now := b.now()
	for _, k := range wb.order {
		op := wb.ops[k]
		switch k.coll {
		case types.CollectionLists:
			if op.deleted {
				b.store.DeleteList(k.id)
				b.pending[k] = pendingWrite{deleted: true}
				continue
			}
			if cur, ok := b.store.List(k.id); ok && !op.exact {
				op.list.Version = cur.Version + 1
				op.list.ModifiedTimestamp = now
			}
			b.store.PutList(op.list)
			b.pending[k] = pendingWrite{version: op.list.Version}

		case types.CollectionTasks:
			if op.deleted {
				b.store.DeleteTask(k.id)
				b.pending[k] = pendingWrite{deleted: true}
				continue
			}
			if cur, ok := b.store.Task(k.id); ok && !op.exact {
				op.task.Version = cur.Version + 1
				op.task.ModifiedTimestamp = now
			}
			b.store.PutTask(op.task)
			b.pending[k] = pendingWrite{version: op.task.Version}
		}
	}
}

// mutate stages a change with fn, applies it locally and persists it.
// Nothing is applied if fn fails.
func (b *Backend) mutate(ctx context.Context, op string, fn func(wb *writeBatch) error) error {
	b.mu.Lock()
	if err := b.requireLoadedLocked(op); err != nil {
		b.mu.Unlock()
		return err
	}
	wb := newWriteBatch()
	if err := fn(wb); err != nil {
		b.mu.Unlock()
		return err
	}
	b.applyLocked(wb)
	return b.commitLocked(ctx, wb)
}

func (b *Backend) requireLoadedLocked(op string) error {
	state := b.stateLocked()
	if b.closed || state != StateLoadingComplete || !b.store.IsLoaded() {
		return &types.LoadStateError{Op: op, State: string(state)}
	}
	return nil
}

// commitLocked writes an applied batch to the remote store. It must be
// called with mu held and returns with mu released.
func (b *Backend) commitLocked(ctx context.Context, wb *writeBatch) error {
	b.flushMu.Lock()
	b.mu.Unlock()

	failed, err := b.flush(ctx, wb)
	b.flushMu.Unlock()

	if len(failed) > 0 {
		b.mu.Lock()
		for k, w := range failed {
			if b.pending[k] == w {
				delete(b.pending, k)
			}
		}
		b.mu.Unlock()
	}
	return err
}

// flush issues every write in the batch concurrently and waits for all of
// them. Each failure is reported; one failure does not cancel the others.
func (b *Backend) flush(ctx context.Context, wb *writeBatch) (map[docKey]pendingWrite, error) {
	var (
		mu     gosync.Mutex
		errs   []error
		failed = make(map[docKey]pendingWrite)
		g      errgroup.Group
	)
	g.SetLimit(maxConcurrentWrites)

	for _, k := range wb.order {
		k, op := k, wb.ops[k]
		var (
			doc  any
			want pendingWrite
		)
		switch {
		case op.deleted:
			want = pendingWrite{deleted: true}
		case op.list != nil:
			doc, want = op.list, pendingWrite{version: op.list.Version}
		case op.task != nil:
			doc, want = op.task, pendingWrite{version: op.task.Version}
		case op.archived != nil:
			doc = op.archived
		}

		g.Go(func() error {
			var err error
			if op.deleted {
				err = b.remote.Delete(ctx, k.coll, k.id)
			} else {
				var data []byte
				if data, err = types.Encode(doc); err == nil {
					err = b.remote.Upsert(ctx, k.coll, k.id, data)
				}
			}
			if err != nil {
				verb := "save"
				if op.deleted {
					verb = "delete"
				}
				mu.Lock()
				errs = append(errs, fmt.Errorf("failed to %s %s/%s: %w", verb, k.coll, k.id, err))
				failed[k] = want
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return failed, errors.Join(errs...)
}

// pendingWrite is the last local write of a document that the remote has
// not echoed yet.
type pendingWrite struct {
	version int
	deleted bool
}

// pendingWrites implements sync.Guard. It is only used with mu held.
type pendingWrites map[docKey]pendingWrite

// ShouldApply skips remote changes that predate a local write: echoes of
// older versions and resurrections of locally deleted documents.
func (p pendingWrites) ShouldApply(coll types.Collection, id string, version int, removed bool) bool {
	k := docKey{coll, id}
	w, ok := p[k]
	if !ok {
		return true
	}
	switch {
	case w.deleted && removed:
		delete(p, k)
		return true
	case w.deleted:
		return false
	case removed:
		delete(p, k)
		return true
	case version < w.version:
		return false
	default:
		delete(p, k)
		return true
	}
}
