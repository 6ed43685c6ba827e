package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// ErrNoDocument is returned when a document does not exist
var ErrNoDocument = errors.New("no such document")

// Documents is the durable store. Documents are opaque blobs addressed by
// collection and id.
type Documents interface {
	Get(ctx context.Context, collection, id string) ([]byte, error)
	Put(ctx context.Context, collection, id string, data []byte) error
	Delete(ctx context.Context, collection, id string) error
}

// MemoryDocuments keeps documents in memory
type MemoryDocuments struct {
	mu   sync.RWMutex
	docs map[string]map[string][]byte
}

// NewMemoryDocuments returns an empty in-memory store
func NewMemoryDocuments() *MemoryDocuments {
	return &MemoryDocuments{docs: make(map[string]map[string][]byte)}
}

func (m *MemoryDocuments) Get(_ context.Context, collection, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.docs[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNoDocument)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryDocuments) Put(_ context.Context, collection, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[string][]byte)
	}
	m.docs[collection][id] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryDocuments) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[collection][id]; !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNoDocument)
	}
	delete(m.docs[collection], id)
	return nil
}

var safeName = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

const documentPerm = 0o644

// FileDocuments stores each document as a file under dir/collection/id.
// Writes are atomic: readers see the old document or the new one, never a
// partial write.
type FileDocuments struct {
	dir string
}

// NewFileDocuments returns a store rooted at dir, creating it if needed
func NewFileDocuments(dir string) (*FileDocuments, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create document dir: %w", err)
	}
	return &FileDocuments{dir: dir}, nil
}

func (f *FileDocuments) path(collection, id string) (string, error) {
	if !safeName.MatchString(collection) || !safeName.MatchString(id) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid document name %q/%q", collection, id)
	}
	return filepath.Join(f.dir, collection, id+".msgpack"), nil
}

func (f *FileDocuments) Get(_ context.Context, collection, id string) ([]byte, error) {
	p, err := f.path(collection, id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNoDocument)
	}
	return data, err
}

func (f *FileDocuments) Put(_ context.Context, collection, id string, data []byte) error {
	p, err := f.path(collection, id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create collection dir: %w", err)
	}
	return replaceDocument(p, data)
}

func (f *FileDocuments) Delete(_ context.Context, collection, id string) error {
	p, err := f.path(collection, id)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNoDocument)
	}
	return err
}

// replaceDocument stages data next to path and renames it into place, so a
// reader sees either the previous document or the new one in full.
func replaceDocument(path string, data []byte) (err error) {
	staged, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".staged-*")
	if err != nil {
		return fmt.Errorf("stage document %s: %w", filepath.Base(path), err)
	}
	defer func() {
		if err != nil {
			_ = staged.Close()
			_ = os.Remove(staged.Name())
		}
	}()

	if _, err = staged.Write(data); err != nil {
		return fmt.Errorf("write staged document: %w", err)
	}
	if err = staged.Chmod(documentPerm); err != nil {
		return fmt.Errorf("chmod staged document: %w", err)
	}
	if err = staged.Sync(); err != nil {
		return fmt.Errorf("flush staged document: %w", err)
	}
	if err = staged.Close(); err != nil {
		return fmt.Errorf("close staged document: %w", err)
	}
	if err = os.Rename(staged.Name(), path); err != nil {
		return fmt.Errorf("publish document %s: %w", filepath.Base(path), err)
	}
	return nil
}
