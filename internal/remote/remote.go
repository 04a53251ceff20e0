// Package remote defines the document store the backend persists to and
// subscribes to.
//
// A Store is an abstract per-collection key-value store of JSON documents.
// Every document carries an "ownerId" field, which is the only filter
// reads and subscriptions support.
//
// Implementations:
//
//	memory   in-process maps, used by tests and mem:// URLs
//	sqldoc   SQL tables (embedded SQLite, Turso/libSQL, PostgreSQL)
//	filedoc  one JSON file per document, watched with fsnotify
package remote

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/michaelomichael/tracka/internal/types"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("remote store is closed")

// ChangeType is the kind of change reported by a subscription.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change is a single document change. Data is nil for removals.
type Change struct {
	Type ChangeType
	ID   string
	Data json.RawMessage
}

// Snapshot groups the changes delivered in one notification.
//
// The first snapshot of every subscription lists every matching document as
// ChangeAdded, possibly zero of them. Receiving it means the collection has
// been loaded for the subscribed owner.
type Snapshot struct {
	Changes []Change
}

// Document is a stored document as returned by GetAll.
type Document struct {
	ID   string
	Data json.RawMessage
}

// Subscription delivers snapshots until Unsubscribe is called.
type Subscription interface {
	// Snapshots returns the delivery channel. It is closed after Unsubscribe
	// or when the subscription's context is cancelled.
	Snapshots() <-chan Snapshot

	// Unsubscribe stops delivery. Calling it more than once is a no-op.
	Unsubscribe()
}

// Store is a remote document store.
//
// Writers are never blocked by slow subscribers: each subscription queues
// snapshots internally. Delivery is at-least-once; there is no ordering
// guarantee across different documents.
type Store interface {
	// GetAll returns every document in collection owned by ownerID.
	GetAll(ctx context.Context, collection types.Collection, ownerID string) ([]Document, error)

	// Subscribe opens a change stream over collection, filtered to ownerID.
	//
	// Example:
	//   sub, err := store.Subscribe(ctx, types.CollectionTasks, "user-1")
	//   for snap := range sub.Snapshots() { ... }
	Subscribe(ctx context.Context, collection types.Collection, ownerID string) (Subscription, error)

	// Upsert writes doc under id, replacing any existing document.
	Upsert(ctx context.Context, collection types.Collection, id string, doc json.RawMessage) error

	// Delete removes a document. Deleting a missing id is not an error.
	Delete(ctx context.Context, collection types.Collection, id string) error

	// Close releases the store's resources and ends every subscription.
	Close() error
}

// OwnerOf extracts the "ownerId" field of a document. Documents that are not
// JSON objects, or that have no owner, yield "".
func OwnerOf(doc json.RawMessage) string {
	var head struct {
		OwnerID string `json:"ownerId"`
	}
	if err := json.Unmarshal(doc, &head); err != nil {
		return ""
	}
	return head.OwnerID
}
