// Package sync replicates remote document changes into the entity store.
//
// Overview
//
// The Adapter opens one subscription per collection (lists and tasks) scoped
// to the current user and fans their snapshots into a single event channel:
//
//	remote.Store ── lists subscription ──┐
//	                                     ├──> Adapter.Events() ──> Apply ──> store.Store
//	remote.Store ── tasks subscription ──┘
//
// Events are consumed by a single routine (the backend's run loop), which
// calls Apply for each one. Apply upserts added and modified documents by id
// and deletes removed ones. Reference fields are never rewritten here:
// documents are trusted as received and checked later by the integrity scan.
//
// Usage
//
//	adapter := sync.New(remoteStore, nil)
//	if err := adapter.Start(ctx, "user-1"); err != nil {
//	    return err
//	}
//	defer adapter.Stop()
//
//	for ev := range adapter.Events() {
//	    res := sync.Apply(entities, ev, nil, nil)
//	    log.Printf("applied %d changes", res.Upserted+res.Removed)
//	}
//
// Lifecycle
//
// Start is idempotent: while subscriptions are open, further calls log a
// warning and return nil. Stop unsubscribes every subscription exactly once.
// Each Start bumps the generation stamped on events, so a consumer can drop
// events that were queued before a logout.
package sync
