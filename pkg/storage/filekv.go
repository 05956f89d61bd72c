package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

var errWriteFailed = errors.New("storage: write failed")

// FileKV is the legacy unencrypted JSON-file store. New data never
// lands here; it exists so the one-time migration into the chunked
// store can read and then retire old installs.
type FileKV struct {
	path string
	mu   sync.Mutex
}

func NewFileKV(path string) *FileKV {
	return &FileKV{path: path}
}

func (f *FileKV) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read legacy store: %w", err)
	}
	items := map[string]string{}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode legacy store: %w", err)
	}
	return items, nil
}

func (f *FileKV) flush(items map[string]string) error {
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o600)
}

func (f *FileKV) GetItem(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := items[key]
	return v, ok, nil
}

func (f *FileKV) SetItem(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	items, err := f.load()
	if err != nil {
		return err
	}
	items[key] = value
	return f.flush(items)
}

func (f *FileKV) RemoveItem(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	items, err := f.load()
	if err != nil {
		return err
	}
	delete(items, key)
	return f.flush(items)
}
