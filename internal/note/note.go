// Package note keeps the front desk's free-text note. It is unrelated to
// schedule data and is stored verbatim under a fixed key.
package note

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"tutorcal/internal/config"
)

// Key names the note file inside the state directory.
const Key = "tutorcal.note"

// Store reads and writes the note.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a Store rooted at stateDir.
func NewStore(stateDir string) *Store {
	return &Store{path: filepath.Join(stateDir, Key)}
}

// Path is the file the note lives in.
func (s *Store) Path() string {
	return s.path
}

// Load returns the saved note, or "" if none was saved yet.
func (s *Store) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// Save replaces the note.
func (s *Store) Save(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return config.WriteFileAtomic(s.path, []byte(text))
}
