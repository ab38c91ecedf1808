package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists the whole lookup map as a single blob.
// Save always replaces the previous contents.
// Load returns an empty map and no error when nothing was saved yet,
// and a *StoreLoadError when the persisted data cannot be decoded.
type Store interface {
	Name() string
	Load(ctx context.Context) (map[string]CacheEntry, error)
	Save(ctx context.Context, entries map[string]CacheEntry) error
}

// FileStore keeps the lookup map in one JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the JSON file at path.
// The file and its directory are created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Name() string { return "file" }

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(_ context.Context) (map[string]CacheEntry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]CacheEntry{}, nil
	}
	if err != nil {
		return nil, &StoreLoadError{Store: s.Name(), Err: err}
	}
	return decodeEntries(s.Name(), data)
}

// Save writes to a temp file in the same directory and renames it over the
// target, so readers never see a half-written store.
func (s *FileStore) Save(_ context.Context, entries map[string]CacheEntry) error {
	data, err := encodeEntries(entries)
	if err != nil {
		return &StoreSaveError{Store: s.Name(), Err: err}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return &StoreSaveError{Store: s.Name(), Err: fmt.Errorf("mkdir %s: %w", dir, err)}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &StoreSaveError{Store: s.Name(), Err: err}
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &StoreSaveError{Store: s.Name(), Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &StoreSaveError{Store: s.Name(), Err: err}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return &StoreSaveError{Store: s.Name(), Err: err}
	}
	return nil
}

func encodeEntries(entries map[string]CacheEntry) ([]byte, error) {
	if entries == nil {
		entries = map[string]CacheEntry{}
	}
	return json.Marshal(entries)
}

func decodeEntries(store string, data []byte) (map[string]CacheEntry, error) {
	entries := map[string]CacheEntry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &StoreLoadError{Store: store, Err: fmt.Errorf("decode: %w", err)}
	}
	// JSON null decodes to a nil map.
	if entries == nil {
		entries = map[string]CacheEntry{}
	}
	return entries, nil
}
