package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/chatcenter/authkit/internal/core/domain"
)

// fileSlots is the on-disk layout: the two token slots and nothing else.
// Passwords and second-factor secrets must never be co-located here.
type fileSlots struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// File is a Store backed by a mode-0600 JSON file, for CLI and daemon
// consumers of the console core. Writes go through a temp file and rename so
// a crash never leaves a half-written pair.
type File struct {
	mu      sync.RWMutex
	path    string
	pair    domain.Credentials
	present bool
}

// NewFile opens (or prepares to create) the store at path. A missing file is
// an empty store, not an error.
func NewFile(path string) (*File, error) {
	f := &File{path: path}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return nil, fmt.Errorf("tokenstore: read %s: %w", path, err)
	}

	var slots fileSlots
	if err := json.Unmarshal(raw, &slots); err != nil {
		// Corrupt state is treated as logged-out rather than fatal.
		return f, nil
	}
	if slots.AccessToken != "" || slots.RefreshToken != "" {
		f.pair = domain.Credentials{AccessToken: slots.AccessToken, RefreshToken: slots.RefreshToken}
		f.present = true
	}
	return f, nil
}

func (f *File) Get() (domain.Credentials, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.pair, f.present
}

func (f *File) Set(pair domain.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.write(fileSlots{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}); err != nil {
		return err
	}
	f.pair = pair
	f.present = true
	return nil
}

func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pair = domain.Credentials{}
	f.present = false
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("tokenstore: remove %s: %w", f.path, err)
	}
	return nil
}

func (f *File) write(slots fileSlots) error {
	raw, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("tokenstore: marshal: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("tokenstore: temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("tokenstore: chmod: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("tokenstore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("tokenstore: close: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("tokenstore: rename: %w", err)
	}
	return nil
}
