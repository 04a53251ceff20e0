package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/michaelomichael/tracka/internal/auth"
	"github.com/michaelomichael/tracka/internal/backend"
	"github.com/michaelomichael/tracka/internal/remote"
	"github.com/michaelomichael/tracka/internal/remote/filedoc"
	"github.com/michaelomichael/tracka/internal/remote/memory"
	"github.com/michaelomichael/tracka/internal/remote/sqldoc"
)

// errNotLoggedIn is returned when no user can be determined.
var errNotLoggedIn = errors.New("not logged in: run 'tracka login' or pass --user")

// session is one open backend plus everything it was built from.
type session struct {
	backend *backend.Backend
	remote  remote.Store
	manual  *auth.Manual
	tokens  *auth.TokenFile
}

// openRemote opens the document store named by rawURL.
func openRemote(ctx context.Context, rawURL string, poll time.Duration) (remote.Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid remote URL %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "mem":
		return memory.New(), nil

	case "file":
		return filedoc.Open(hostPath(u), logs.Logger("filedoc"))

	case "sqlite":
		return sqldoc.Open(ctx, sqldoc.Config{
			Dialect:      sqldoc.DialectSQLite,
			DSN:          sqldoc.SQLiteDSN(hostPath(u)),
			PollInterval: poll,
			Logger:       logs.Logger("sqldoc"),
		})

	case "libsql":
		return sqldoc.Open(ctx, sqldoc.Config{
			Dialect:      sqldoc.DialectLibSQL,
			DSN:          rawURL,
			PollInterval: poll,
			Logger:       logs.Logger("sqldoc"),
		})

	case "postgres", "postgresql":
		return sqldoc.Open(ctx, sqldoc.Config{
			Dialect:      sqldoc.DialectPostgres,
			DSN:          rawURL,
			PollInterval: poll,
			Logger:       logs.Logger("sqldoc"),
		})
	}
	return nil, fmt.Errorf("unsupported remote URL scheme %q", u.Scheme)
}

// hostPath turns file:///abs/dir and file://rel/dir into a filesystem path.
func hostPath(u *url.URL) string {
	p := u.Host + u.Path
	if u.Opaque != "" {
		p = u.Opaque
	}
	return filepath.FromSlash(p)
}

// secret returns the token signing key: auth.secret when configured,
// otherwise a random key kept next to the token file and created on first
// use.
func secret() ([]byte, error) {
	if cfg.Auth.Secret != "" {
		return []byte(cfg.Auth.Secret), nil
	}
	path := filepath.Join(filepath.Dir(cfg.Auth.TokenFile), "secret")
	data, err := os.ReadFile(path)
	if err == nil {
		return []byte(strings.TrimSpace(string(data))), nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	key := hex.EncodeToString(buf)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(key+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("failed to write signing key: %w", err)
	}
	return []byte(key), nil
}

// openSession starts a backend for the user given by --user or the token
// file. With wait set it also blocks until the user's data is loaded.
func openSession(ctx context.Context, wait bool) (*session, error) {
	s, err := newSession(ctx, wait)
	if err != nil {
		return nil, err
	}
	if err := s.start(ctx, wait); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// newSession builds the backend without starting it, so callers can
// subscribe before the first events arrive. requireUser fails early when
// the token file names nobody.
func newSession(ctx context.Context, requireUser bool) (*session, error) {
	store, err := openRemote(ctx, cfg.Remote.URL, cfg.Remote.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote store: %w", err)
	}
	s := &session{remote: store}

	var observer auth.Observer
	if userFlag != "" {
		s.manual = auth.NewManual()
		observer = s.manual
	} else {
		key, err := secret()
		if err != nil {
			s.close()
			return nil, err
		}
		s.tokens, err = auth.NewTokenFile(cfg.Auth.TokenFile, key, logs.Logger("auth"))
		if err != nil {
			s.close()
			return nil, err
		}
		if requireUser && s.tokens.Current() == nil {
			s.close()
			return nil, errNotLoggedIn
		}
		observer = s.tokens
	}

	s.backend, err = backend.New(backend.Config{
		Remote: store,
		Auth:   observer,
		Logger: logs.Logger("backend"),
	})
	if err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// start runs the session and, with wait set, blocks until the user's data
// is loaded or backend.load_timeout passes.
func (s *session) start(ctx context.Context, wait bool) error {
	if err := s.backend.Init(ctx); err != nil {
		return err
	}
	if s.manual != nil {
		s.manual.Login(userFlag)
	}
	if !wait {
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, cfg.Backend.LoadTimeout)
	defer cancel()
	return s.backend.WaitUntilLoaded(wctx)
}

func (s *session) close() {
	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			logs.Logger("tracka").Printf("Warning: %v", err)
		}
	}
	if s.tokens != nil {
		s.tokens.Close()
	}
	if err := s.remote.Close(); err != nil {
		logs.Logger("tracka").Printf("Warning: failed to close remote store: %v", err)
	}
}

// withSession runs fn against a loaded session.
func withSession(ctx context.Context, fn func(b *backend.Backend) error) error {
	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(s.backend)
}
