package sqldoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/michaelomichael/tracka/internal/remote"
	"github.com/michaelomichael/tracka/internal/types"
)

type subscription struct {
	*remote.Feed
	collection types.Collection
	ownerID    string
	last       int64
}

// Subscribe implements remote.Store.
//
// The change log position is read before the initial documents, so a write
// racing with the subscription may be delivered twice (once in the initial
// snapshot, once from the log) but is never lost.
func (s *Store) Subscribe(ctx context.Context, collection types.Collection, ownerID string) (remote.Subscription, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	last, err := s.lastSeq(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := s.GetAll(ctx, collection, ownerID)
	if err != nil {
		return nil, err
	}

	sub := &subscription{collection: collection, ownerID: ownerID, last: last}
	sub.Feed = remote.NewFeed(func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Close()
		return nil, remote.ErrClosed
	}
	s.subs[sub] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	initial := remote.Snapshot{Changes: make([]remote.Change, 0, len(docs))}
	for _, doc := range docs {
		initial.Changes = append(initial.Changes, remote.Change{Type: remote.ChangeAdded, ID: doc.ID, Data: doc.Data})
	}
	sub.Push(initial)

	go s.pollLoop(ctx, sub)
	return sub, nil
}

// pollLoop reads the change log every poll interval until the subscription
// is closed or ctx is done.
func (s *Store) pollLoop(ctx context.Context, sub *subscription) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sub.Close()
			return
		case <-sub.Done():
			return
		case <-ticker.C:
			changes, last, err := s.changesSince(ctx, sub.collection, sub.ownerID, sub.last)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Printf("Warning: failed to poll %s changes for %s: %v", sub.collection, sub.ownerID, err)
				}
				continue
			}
			sub.last = last
			if len(changes) > 0 {
				sub.Push(remote.Snapshot{Changes: changes})
			}
		}
	}
}

func (s *Store) lastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM changes`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to read change log position: %w", err)
	}
	return seq.Int64, nil
}

// changesSince returns the logged changes after seq, oldest first, and the
// sequence number of the last one returned.
func (s *Store) changesSince(ctx context.Context, collection types.Collection, ownerID string, seq int64) ([]remote.Change, int64, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT seq, doc_id, op, data FROM changes
		WHERE collection = ? AND owner_id = ? AND seq > ?
		ORDER BY seq`),
		string(collection), ownerID, seq)
	if err != nil {
		return nil, seq, err
	}
	defer rows.Close()

	var changes []remote.Change
	last := seq
	for rows.Next() {
		var (
			n    int64
			id   string
			op   string
			data sql.NullString
		)
		if err := rows.Scan(&n, &id, &op, &data); err != nil {
			return nil, seq, err
		}
		c := remote.Change{Type: remote.ChangeType(op), ID: id}
		if data.Valid {
			c.Data = json.RawMessage(data.String)
		}
		changes = append(changes, c)
		last = n
	}
	if err := rows.Err(); err != nil {
		return nil, seq, err
	}
	return changes, last, nil
}
