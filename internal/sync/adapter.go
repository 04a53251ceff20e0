package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	gosync "sync"

	"github.com/michaelomichael/tracka/internal/remote"
	"github.com/michaelomichael/tracka/internal/types"
)

// Collections are the collections the adapter subscribes to.
var Collections = []types.Collection{types.CollectionLists, types.CollectionTasks}

// Event carries one remote snapshot for one collection.
type Event struct {
	Collection types.Collection
	OwnerID    string
	Generation uint64
	Snapshot   remote.Snapshot

	// Initial is set on the first snapshot of a subscription. It means the
	// collection has been loaded for OwnerID.
	Initial bool
}

// Adapter manages the per-collection subscriptions for one user at a time.
type Adapter struct {
	remote remote.Store
	logger *log.Logger
	events chan Event

	mu         gosync.Mutex
	active     bool
	ownerID    string
	generation uint64
	cancel     context.CancelFunc
	subs       []remote.Subscription
	wg         gosync.WaitGroup
}

// New creates an Adapter over store.
//
// If logger is nil, a default logger writing to stderr is used.
func New(store remote.Store, logger *log.Logger) *Adapter {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Adapter{
		remote: store,
		logger: logger,
		events: make(chan Event, 64),
	}
}

// Events returns the channel every subscription is forwarded to. It stays
// open for the lifetime of the Adapter.
func (a *Adapter) Events() <-chan Event {
	return a.events
}

// Start subscribes to every collection for ownerID. It is a no-op if
// subscriptions are already open.
func (a *Adapter) Start(ctx context.Context, ownerID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active {
		a.logger.Printf("Warning: subscriptions already open for user %s, ignoring start for %s", a.ownerID, ownerID)
		return nil
	}

	fctx, cancel := context.WithCancel(ctx)
	subs := make([]remote.Subscription, 0, len(Collections))
	for _, coll := range Collections {
		sub, err := a.remote.Subscribe(fctx, coll, ownerID)
		if err != nil {
			for _, s := range subs {
				s.Unsubscribe()
			}
			cancel()
			return fmt.Errorf("failed to subscribe to %s: %w", coll, err)
		}
		subs = append(subs, sub)
	}

	a.generation++
	a.active = true
	a.ownerID = ownerID
	a.cancel = cancel
	a.subs = subs

	for i, sub := range subs {
		a.wg.Add(1)
		go a.forward(fctx, Collections[i], ownerID, a.generation, sub)
	}

	a.logger.Printf("Subscribed to %d collections for user %s (generation %d)", len(subs), ownerID, a.generation)
	return nil
}

// forward relays snapshots until the subscription ends or ctx is cancelled.
func (a *Adapter) forward(ctx context.Context, coll types.Collection, ownerID string, gen uint64, sub remote.Subscription) {
	defer a.wg.Done()
	initial := true
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.Snapshots():
			if !ok {
				return
			}
			ev := Event{
				Collection: coll,
				OwnerID:    ownerID,
				Generation: gen,
				Snapshot:   snap,
				Initial:    initial,
			}
			initial = false
			select {
			case a.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Stop unsubscribes from every collection. Calling Stop without open
// subscriptions is a no-op.
func (a *Adapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active {
		return
	}
	a.cancel()
	for _, sub := range a.subs {
		sub.Unsubscribe()
	}
	a.wg.Wait()

	a.logger.Printf("Unsubscribed from %d collections for user %s", len(a.subs), a.ownerID)
	a.active = false
	a.ownerID = ""
	a.cancel = nil
	a.subs = nil
}

// Active reports whether subscriptions are open.
func (a *Adapter) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// OwnerID returns the user the open subscriptions are scoped to.
func (a *Adapter) OwnerID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ownerID
}

// Generation returns the generation of the current (or last) Start.
func (a *Adapter) Generation() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generation
}
