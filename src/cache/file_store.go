package cache

import (
	"context"
	"encoding/json"
	"os"
	"sync"
)

// FileStore keeps the cache in a single JSON file, the default durable
// backend for on-device use. Writes go to a temp file and rename into place
// so a crash never leaves a torn cache.
type FileStore struct {
	mu      sync.Mutex
	path    string
	entries map[string]Entry
}

// NewFileStore loads (or lazily creates) the cache file at path.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, entries: make(map[string]Entry)}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	defer f.Close()

	// A corrupt file is treated as empty rather than fatal; the cache is
	// rebuilt by normal use.
	var dump map[string]Entry
	if err := json.NewDecoder(f).Decode(&dump); err == nil {
		s.entries = dump
	}
	return s, nil
}

func (s *FileStore) Get(_ context.Context, emailID string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[emailID]
	return entry, ok, nil
}

func (s *FileStore) Put(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.EmailID] = entry
	return s.save()
}

func (s *FileStore) Delete(_ context.Context, emailID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[emailID]; !ok {
		return nil
	}
	delete(s.entries, emailID)
	return s.save()
}

func (s *FileStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Entry)
	return s.save()
}

// save writes atomically: temp file, then rename. Caller holds s.mu.
func (s *FileStore) save() error {
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.entries); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path)
}

var _ Store = (*FileStore)(nil)
