// Package filedoc implements remote.Store as a directory of JSON files.
//
// Layout:
//
//	<root>/lists/<id>.json
//	<root>/tasks/<id>.json
//	<root>/archived_tasks/<id>.json
//
// Writes are atomic (temp file plus rename), so readers never observe a
// partially written document. Subscriptions watch the collection directory
// with fsnotify, which also picks up files written by other processes
// sharing the directory (a synced folder, a second CLI).
package filedoc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/michaelomichael/tracka/internal/remote"
	"github.com/michaelomichael/tracka/internal/types"
)

// Store is a file-backed remote.Store.
type Store struct {
	root   string
	logger *log.Logger

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
	wg     sync.WaitGroup
}

var _ remote.Store = (*Store)(nil)

// Open uses root as the store directory, creating it if needed. A nil
// logger writes to stderr with a "[filedoc] " prefix.
func Open(root string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[filedoc] ", log.LstdFlags)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store directory %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &Store{
		root:   abs,
		logger: logger,
		subs:   make(map[*subscription]struct{}),
	}, nil
}

// Root returns the absolute store directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) dir(collection types.Collection) string {
	return filepath.Join(s.root, string(collection))
}

func (s *Store) path(collection types.Collection, id string) string {
	return filepath.Join(s.dir(collection), id+".json")
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return remote.ErrClosed
	}
	return nil
}

// checkID rejects ids that cannot be used as a file name.
func checkID(id string) error {
	if id == "" || id == "." || id == ".." || strings.HasPrefix(id, ".") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid document id %q", id)
	}
	return nil
}

// GetAll implements remote.Store. Unreadable files are skipped with a
// warning. Documents are sorted by id.
func (s *Store) GetAll(ctx context.Context, collection types.Collection, ownerID string) ([]remote.Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir(collection))
	if errors.Is(err, fs.ErrNotExist) {
		return []remote.Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s directory: %w", collection, err)
	}

	docs := make([]remote.Document, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, ok := documentID(e.Name())
		if !ok || e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir(collection), e.Name()))
		if err != nil {
			s.logger.Printf("Warning: skipping %s/%s: %v", collection, id, err)
			continue
		}
		if !json.Valid(data) {
			s.logger.Printf("Warning: skipping %s/%s: not valid JSON", collection, id)
			continue
		}
		if remote.OwnerOf(data) == ownerID {
			docs = append(docs, remote.Document{ID: id, Data: data})
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// documentID maps a file name to a document id. Hidden files (including
// in-flight temp files) are not documents.
func documentID(name string) (string, bool) {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
		return "", false
	}
	id := strings.TrimSuffix(name, ".json")
	return id, id != ""
}

// Upsert implements remote.Store.
func (s *Store) Upsert(ctx context.Context, collection types.Collection, id string, doc json.RawMessage) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := checkID(id); err != nil {
		return err
	}
	if !json.Valid(doc) {
		return fmt.Errorf("failed to upsert %s/%s: document is not valid JSON", collection, id)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := s.dir(collection)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", collection, err)
	}

	tmp, err := os.CreateTemp(dir, "."+id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s/%s: %w", collection, id, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s/%s: %w", collection, id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s/%s: %w", collection, id, err)
	}
	if err := os.Rename(tmpName, s.path(collection, id)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to save %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete implements remote.Store.
func (s *Store) Delete(ctx context.Context, collection types.Collection, id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := checkID(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(s.path(collection, id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Close ends every subscription. The files are left in place.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	s.wg.Wait()
	return nil
}
