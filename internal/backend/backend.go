// Package backend is the session context object: it owns the entity store
// for the logged-in user, keeps it replicated from the remote store, and is
// the only sanctioned path for changing lists and tasks.
//
// Lifecycle
//
//	NOT_STARTED ──Init──> WAITING_FOR_USER_LOGIN ──login──> LOADING_DOCUMENTS_FOR_USER
//	     both collections loaded ──> CHECKING_DATA_INTEGRITY ──> LOADING_COMPLETE
//	     logout (from any state after Init) ──> WAITING_FOR_USER_LOGIN
//
// Lookups and mutations are only permitted in LOADING_COMPLETE; in every
// other state they fail with a LoadStateError.
//
// Mutations
//
// Every mutation stages its changes in a write batch first. Validation and
// precondition failures therefore leave both the store and the remote
// untouched. A successful batch is applied to the entity store immediately
// (optimistic update) and then written to the remote store concurrently;
// remote failures are joined and returned after local state has changed.
package backend

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/michaelomichael/tracka/internal/auth"
	"github.com/michaelomichael/tracka/internal/remote"
	"github.com/michaelomichael/tracka/internal/store"
	"github.com/michaelomichael/tracka/internal/sync"
	"github.com/michaelomichael/tracka/internal/types"
)

// State is a session lifecycle state.
type State string

const (
	StateNotStarted          State = "NOT_STARTED"
	StateWaitingForUserLogin State = "WAITING_FOR_USER_LOGIN"
	StateLoadingDocuments    State = "LOADING_DOCUMENTS_FOR_USER"
	StateCheckingIntegrity   State = "CHECKING_DATA_INTEGRITY"
	StateLoadingComplete     State = "LOADING_COMPLETE"
)

// Config configures a Backend.
type Config struct {
	// Remote is the document store. Required. The Backend does not close it.
	Remote remote.Store

	// Auth reports login transitions. Required.
	Auth auth.Observer

	// Logger defaults to stderr with a "[backend] " prefix.
	Logger *log.Logger

	// Now defaults to time.Now. Timestamps are stored in UTC.
	Now func() time.Time

	// NewID defaults to uuid.NewString.
	NewID func() string
}

// Backend is the per-process session context.
type Backend struct {
	remote  remote.Store
	auth    auth.Observer
	logger  *log.Logger
	now     func() time.Time
	newID   func() string
	store   *store.Store
	adapter *sync.Adapter

	// mu serialises lifecycle transitions, remote event application and
	// mutation staging.
	mu          gosync.Mutex
	initialized bool
	closed      bool
	userID      string
	generation  uint64
	loaded      map[types.Collection]bool
	pending     pendingWrites
	authCancel  func()
	runCtx      context.Context
	runCancel   context.CancelFunc
	runDone     chan struct{}

	// flushMu keeps remote writes in the order their batches were staged.
	flushMu gosync.Mutex

	// viewMu guards what readers and listeners may touch without mu.
	viewMu         gosync.Mutex
	state          State
	stateCh        chan struct{}
	warnings       []types.Warning
	warnListeners  map[int]func([]types.Warning)
	stateListeners map[int]func(State)
	nextListenerID int
}

// New creates a Backend in the NOT_STARTED state.
func New(cfg Config) (*Backend, error) {
	if cfg.Remote == nil {
		return nil, fmt.Errorf("backend: remote store is required")
	}
	if cfg.Auth == nil {
		return nil, fmt.Errorf("backend: auth observer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[backend] ", log.LstdFlags)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	return &Backend{
		remote:         cfg.Remote,
		auth:           cfg.Auth,
		logger:         cfg.Logger,
		now:            func() time.Time { return cfg.Now().UTC() },
		newID:          cfg.NewID,
		store:          store.New(cfg.Logger),
		adapter:        sync.New(cfg.Remote, cfg.Logger),
		loaded:         make(map[types.Collection]bool),
		pending:        make(pendingWrites),
		state:          StateNotStarted,
		stateCh:        make(chan struct{}),
		warnListeners:  make(map[int]func([]types.Warning)),
		stateListeners: make(map[int]func(State)),
	}, nil
}

// Init starts the session: it registers with the auth observer and begins
// consuming remote events. ctx bounds the lifetime of the session.
//
// Calling Init more than once logs a warning and does nothing.
func (b *Backend) Init(ctx context.Context) error {
	b.mu.Lock()
	if b.initialized || b.closed {
		b.mu.Unlock()
		b.logger.Printf("Warning: init called in state %s, ignoring", b.State())
		return nil
	}
	b.initialized = true
	b.runCtx, b.runCancel = context.WithCancel(ctx)
	b.runDone = make(chan struct{})
	b.setStateLocked(StateWaitingForUserLogin)
	go b.run(b.runCtx)
	b.mu.Unlock()

	// The observer fires synchronously with the current user, so the
	// registration must happen without holding mu.
	cancel := b.auth.OnLoginStateChanged(b.handleLoginState)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		cancel()
		return nil
	}
	b.authCancel = cancel
	b.mu.Unlock()
	return nil
}

// Close ends the session: it unregisters from the auth observer, closes the
// subscriptions and clears the entity store.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	authCancel := b.authCancel
	b.authCancel = nil
	b.mu.Unlock()

	if authCancel != nil {
		authCancel()
	}

	b.mu.Lock()
	b.teardownLocked()
	runDone := b.runDone
	if b.runCancel != nil {
		b.runCancel()
	}
	b.mu.Unlock()

	if runDone != nil {
		<-runDone
	}
	return nil
}

// handleLoginState reacts to login transitions reported by the observer.
func (b *Backend) handleLoginState(u *auth.User) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || !b.initialized {
		return
	}

	newID := ""
	if u != nil {
		newID = u.ID
	}

	switch {
	case newID == "" && b.userID == "":
		b.logger.Printf("Waiting for user login")
		b.setStateLocked(StateWaitingForUserLogin)

	case newID == "":
		b.logger.Printf("User %s logged out", b.userID)
		b.teardownLocked()
		b.setStateLocked(StateWaitingForUserLogin)

	case newID == b.userID:
		b.logger.Printf("Warning: login reported for current user %s, ignoring", newID)

	default:
		if b.userID != "" {
			b.logger.Printf("User changed from %s to %s", b.userID, newID)
			b.teardownLocked()
		}
		b.userID = newID
		b.loaded = make(map[types.Collection]bool)
		b.setStateLocked(StateLoadingDocuments)
		if err := b.adapter.Start(b.runCtx, newID); err != nil {
			b.logger.Printf("Error: failed to open subscriptions for user %s: %v", newID, err)
			return
		}
		b.generation = b.adapter.Generation()
	}
}

// teardownLocked closes subscriptions and forgets everything about the
// current user.
func (b *Backend) teardownLocked() {
	b.adapter.Stop()
	b.store.Clear()
	b.userID = ""
	b.loaded = make(map[types.Collection]bool)
	b.pending = make(pendingWrites)
	b.setWarnings(nil)
}

func (b *Backend) run(ctx context.Context) {
	defer close(b.runDone)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.adapter.Events():
			b.handleEvent(ctx, ev)
		}
	}
}

// handleEvent applies one remote snapshot. Once both collections have
// delivered their initial snapshot, provisioning and the integrity scan run
// and the store opens for lookups.
func (b *Backend) handleEvent(ctx context.Context, ev sync.Event) {
	b.mu.Lock()
	if b.userID == "" || ev.Generation != b.generation || ev.OwnerID != b.userID {
		b.mu.Unlock()
		return
	}

	sync.Apply(b.store, ev, b.pending, b.logger)

	if !ev.Initial || b.stateLocked() != StateLoadingDocuments {
		b.mu.Unlock()
		return
	}
	b.loaded[ev.Collection] = true
	for _, coll := range sync.Collections {
		if !b.loaded[coll] {
			b.mu.Unlock()
			return
		}
	}

	b.setStateLocked(StateCheckingIntegrity)
	wb := newWriteBatch()
	warnings := b.provisionDefaultListsLocked(wb)
	warnings = append(warnings, b.checkIntegrityLocked(wb)...)
	b.applyLocked(wb)
	b.setWarnings(warnings)

	// Provisioned lists and repairs reach the remote before the gate opens.
	userID, generation := b.userID, b.generation
	if err := b.commitLocked(ctx, wb); err != nil {
		b.logger.Printf("Error: failed to persist integrity repairs: %v", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.userID != userID || b.generation != generation || b.stateLocked() != StateCheckingIntegrity {
		return
	}
	b.store.SetLoaded(true)
	b.setStateLocked(StateLoadingComplete)
	b.logger.Printf("Loading complete for user %s (%d warnings)", userID, len(warnings))
}

// WaitUntilLoaded blocks until the session reaches LOADING_COMPLETE or ctx
// is done.
func (b *Backend) WaitUntilLoaded(ctx context.Context) error {
	for {
		b.viewMu.Lock()
		state, ch := b.state, b.stateCh
		b.viewMu.Unlock()

		if state == StateLoadingComplete {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed waiting for session to load (state %s): %w", state, ctx.Err())
		case <-ch:
		}
	}
}

// State returns the current lifecycle state.
func (b *Backend) State() State {
	b.viewMu.Lock()
	defer b.viewMu.Unlock()
	return b.state
}

// IsLoaded reports whether lookups and mutations are permitted.
func (b *Backend) IsLoaded() bool {
	return b.State() == StateLoadingComplete && b.store.IsLoaded()
}

// UserID returns the id of the user whose data is loaded.
func (b *Backend) UserID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.userID
}

func (b *Backend) stateLocked() State {
	b.viewMu.Lock()
	defer b.viewMu.Unlock()
	return b.state
}

func (b *Backend) setStateLocked(s State) {
	b.viewMu.Lock()
	if b.state == s {
		b.viewMu.Unlock()
		return
	}
	b.state = s
	close(b.stateCh)
	b.stateCh = make(chan struct{})
	fns := sortedListeners(b.stateListeners)
	b.viewMu.Unlock()

	if s != StateLoadingComplete {
		b.store.SetLoaded(false)
	}
	for _, fn := range fns {
		fn(s)
	}
}

// Subscribe registers fn for changes to the lists or tasks collection. fn
// runs synchronously while the backend applies a change: it may call read
// methods but must not call mutations.
func (b *Backend) Subscribe(collection types.Collection, fn store.Listener) (cancel func()) {
	return b.store.Subscribe(collection, fn)
}

// SubscribeState registers fn for lifecycle transitions.
func (b *Backend) SubscribeState(fn func(State)) (cancel func()) {
	b.viewMu.Lock()
	defer b.viewMu.Unlock()
	id := b.nextListenerID
	b.nextListenerID++
	b.stateListeners[id] = fn
	return func() {
		b.viewMu.Lock()
		defer b.viewMu.Unlock()
		delete(b.stateListeners, id)
	}
}

// Warnings returns the findings of the most recent integrity scan.
func (b *Backend) Warnings() []types.Warning {
	b.viewMu.Lock()
	defer b.viewMu.Unlock()
	return append([]types.Warning(nil), b.warnings...)
}

// SubscribeWarnings registers fn for updates to the warnings list.
func (b *Backend) SubscribeWarnings(fn func([]types.Warning)) (cancel func()) {
	b.viewMu.Lock()
	defer b.viewMu.Unlock()
	id := b.nextListenerID
	b.nextListenerID++
	b.warnListeners[id] = fn
	return func() {
		b.viewMu.Lock()
		defer b.viewMu.Unlock()
		delete(b.warnListeners, id)
	}
}

func (b *Backend) setWarnings(ws []types.Warning) {
	b.viewMu.Lock()
	b.warnings = append([]types.Warning(nil), ws...)
	fns := sortedListeners(b.warnListeners)
	b.viewMu.Unlock()

	for _, w := range ws {
		b.logger.Printf("Warning: %s", w)
	}
	for _, fn := range fns {
		fn(append([]types.Warning(nil), ws...))
	}
}

// Stats summarises the loaded data.
func (b *Backend) Stats() store.Stats {
	return b.store.Stats()
}

func sortedListeners[F any](m map[int]F) []F {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]F, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}
