package auth

import (
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	users []string
}

func (r *recorder) record(u *User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u == nil {
		r.users = append(r.users, "")
		return
	}
	r.users = append(r.users, u.ID)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.users...)
}

func (r *recorder) waitFor(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := r.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d notifications, got %v", n, r.snapshot())
	return nil
}

func TestManual_FiresImmediatelyAndOnTransitions(t *testing.T) {
	m := NewManual()
	m.Login("u1")

	var r recorder
	cancel := m.OnLoginStateChanged(r.record)

	m.Login("u1")
	m.Logout()
	m.Login("u2")
	cancel()
	m.Login("u3")

	got := r.snapshot()
	want := []string{"u1", "u1", "", "u2"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification %d = %q, want %q", i, got[i], want[i])
		}
	}
	if m.Current().ID != "u3" {
		t.Errorf("Current() = %v", m.Current())
	}
}

func TestMintAndParseToken(t *testing.T) {
	secret := []byte("test-secret")

	token, err := MintToken(secret, "u1", "u1@example.com", time.Hour)
	if err != nil {
		t.Fatalf("MintToken failed: %v", err)
	}
	u, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if u.ID != "u1" || u.Email != "u1@example.com" {
		t.Errorf("unexpected user: %+v", u)
	}

	if _, err := ParseToken([]byte("other"), token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for wrong secret, got %v", err)
	}

	expired, err := MintToken(secret, "u1", "", -time.Hour)
	if err != nil {
		t.Fatalf("MintToken failed: %v", err)
	}
	// A negative ttl is treated as no expiry.
	if _, err := ParseToken(secret, expired); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if _, err := MintToken(secret, "", "", 0); err == nil {
		t.Error("expected error for empty user id")
	}
}

func TestTokenFile(t *testing.T) {
	secret := []byte("test-secret")
	path := filepath.Join(t.TempDir(), "session", "token")

	tf, err := NewTokenFile(path, secret, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewTokenFile failed: %v", err)
	}
	defer tf.Close()

	var r recorder
	tf.OnLoginStateChanged(r.record)
	if got := r.snapshot(); len(got) != 1 || got[0] != "" {
		t.Fatalf("expected initial logged-out notification, got %v", got)
	}

	token, err := MintToken(secret, "u1", "", time.Hour)
	if err != nil {
		t.Fatalf("MintToken failed: %v", err)
	}
	if err := WriteToken(path, token); err != nil {
		t.Fatalf("WriteToken failed: %v", err)
	}
	got := r.waitFor(t, 2)
	if got[1] != "u1" {
		t.Errorf("expected login as u1, got %v", got)
	}

	if err := RemoveToken(path); err != nil {
		t.Fatalf("RemoveToken failed: %v", err)
	}
	got = r.waitFor(t, 3)
	if got[len(got)-1] != "" {
		t.Errorf("expected logout, got %v", got)
	}
}

func TestTokenFile_ReadsExistingToken(t *testing.T) {
	secret := []byte("s")
	path := filepath.Join(t.TempDir(), "token")
	token, _ := MintToken(secret, "u9", "", 0)
	if err := os.WriteFile(path, []byte(token), 0600); err != nil {
		t.Fatalf("failed to write token: %v", err)
	}

	tf, err := NewTokenFile(path, secret, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewTokenFile failed: %v", err)
	}
	defer tf.Close()

	if u := tf.Current(); u == nil || u.ID != "u9" {
		t.Errorf("expected u9, got %v", u)
	}
	if u, err := ReadToken(path, secret); err != nil || u.ID != "u9" {
		t.Errorf("ReadToken = %v, %v", u, err)
	}
}
