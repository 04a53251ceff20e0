package auth

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// TokenFile is an Observer backed by a token file on disk.
//
// The file holds a single token minted by MintToken. A valid token means the
// token's subject is logged in; a missing, unreadable, invalid or expired
// token means logged out. The containing directory is watched with fsnotify
// so that `tracka login` and `tracka logout` in another process are picked
// up by a running session.
type TokenFile struct {
	broadcaster

	path   string
	secret []byte
	logger *log.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

var _ Observer = (*TokenFile)(nil)

// NewTokenFile reads path and starts watching it.
//
// If logger is nil, a default logger writing to stderr is used.
func NewTokenFile(path string, secret []byte, logger *log.Logger) (*TokenFile, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[auth] ", log.LstdFlags)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create token directory %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch token directory %s: %w", dir, err)
	}

	tf := &TokenFile{
		path:    path,
		secret:  secret,
		logger:  logger,
		watcher: watcher,
		done:    make(chan struct{}),
	}
	tf.current = tf.read()

	tf.wg.Add(1)
	go tf.processEvents()
	return tf, nil
}

// read loads the user from the token file, or nil.
func (tf *TokenFile) read() *User {
	data, err := os.ReadFile(tf.path)
	if err != nil {
		if !os.IsNotExist(err) {
			tf.logger.Printf("Warning: failed to read token file %s: %v", tf.path, err)
		}
		return nil
	}
	u, err := ParseToken(tf.secret, strings.TrimSpace(string(data)))
	if err != nil {
		tf.logger.Printf("Warning: ignoring token file %s: %v", tf.path, err)
		return nil
	}
	return u
}

func (tf *TokenFile) processEvents() {
	defer tf.wg.Done()

	for {
		select {
		case <-tf.done:
			return

		case event, ok := <-tf.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(tf.path) {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			u := tf.read()
			if sameUser(tf.Current(), u) && !event.Has(fsnotify.Create) {
				continue
			}
			tf.logger.Printf("Login state changed: %s", describe(u))
			tf.set(u)

		case err, ok := <-tf.watcher.Errors:
			if !ok {
				return
			}
			tf.logger.Printf("Warning: token watcher error: %v", err)
		}
	}
}

// Close stops watching the token file.
func (tf *TokenFile) Close() error {
	var err error
	tf.once.Do(func() {
		close(tf.done)
		if cerr := tf.watcher.Close(); cerr != nil {
			err = fmt.Errorf("failed to close watcher: %w", cerr)
		}
		tf.wg.Wait()
	})
	return err
}

// WriteToken stores token at path, readable only by the current user.
func WriteToken(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// RemoveToken deletes the token file. A missing file is not an error.
func RemoveToken(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// ReadToken returns the user in the token file at path without watching it.
func ReadToken(path string, secret []byte) (*User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	return ParseToken(secret, strings.TrimSpace(string(data)))
}

func sameUser(a, b *User) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID
}

func describe(u *User) string {
	if u == nil {
		return "logged out"
	}
	return "logged in as " + u.ID
}
