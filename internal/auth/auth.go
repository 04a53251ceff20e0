// Package auth reports who is logged in.
//
// The backend only needs the current user id and a notification on every
// login or logout. Observer implementations:
//
//	Manual     set programmatically; used by tests and one-shot CLI commands
//	TokenFile  watches a signed token written by `tracka login`
package auth

import (
	"sort"
	"sync"
)

// User is the logged-in user.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Observer reports login state transitions.
type Observer interface {
	// OnLoginStateChanged registers fn. fn is called immediately with the
	// current user (nil when logged out) and again on every transition.
	// The returned function removes the registration.
	OnLoginStateChanged(fn func(*User)) (cancel func())
}

// broadcaster keeps the current user and the registered callbacks.
// Deliveries are serialised so a callback never observes transitions out of
// order.
type broadcaster struct {
	deliver sync.Mutex

	mu        sync.Mutex
	current   *User
	listeners map[int]func(*User)
	nextID    int
}

func (b *broadcaster) OnLoginStateChanged(fn func(*User)) (cancel func()) {
	b.deliver.Lock()
	defer b.deliver.Unlock()

	b.mu.Lock()
	if b.listeners == nil {
		b.listeners = make(map[int]func(*User))
	}
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	current := copyUser(b.current)
	b.mu.Unlock()

	fn(current)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// set records u and notifies every listener, even when the user is
// unchanged; listeners decide whether a repeated login matters.
func (b *broadcaster) set(u *User) {
	b.deliver.Lock()
	defer b.deliver.Unlock()

	b.mu.Lock()
	b.current = copyUser(u)
	ids := make([]int, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(*User), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.listeners[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(copyUser(u))
	}
}

// Current returns the logged-in user, or nil.
func (b *broadcaster) Current() *User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyUser(b.current)
}

func copyUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Manual is an Observer driven by explicit calls.
type Manual struct {
	broadcaster
}

var _ Observer = (*Manual)(nil)

// NewManual creates an observer that starts logged out.
func NewManual() *Manual {
	return &Manual{}
}

// Login switches to userID.
func (m *Manual) Login(userID string) {
	m.set(&User{ID: userID})
}

// Logout switches to the logged-out state.
func (m *Manual) Logout() {
	m.set(nil)
}
