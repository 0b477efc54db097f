// Package state implements browse session persistence to the filesystem.
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Session captures where a browse of one collection left off.
type Session struct {
	Root         string `json:"root"` // collection directory, absolute
	ScrollOffset int    `json:"scroll_offset"`
	Columns      int    `json:"columns"`
	SelectedID   string `json:"selected_id,omitempty"`
	Renderer     string `json:"renderer,omitempty"`
}

// FileStore persists sessions as JSON files under a base directory,
// one file per collection root.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a FileStore that saves sessions under baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

// Save writes the session to a file keyed by its collection root.
func (s *FileStore) Save(sess Session) error {
	p, err := s.path(sess.Root)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("state: creating directory: %w", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshaling: %w", err)
	}

	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("state: writing %s: %w", p, err)
	}
	return nil
}

// Load reads the session for the given collection root.
// Returns (session, true, nil) if found, (zero, false, nil) if not found.
func (s *FileStore) Load(root string) (Session, bool, error) {
	p, err := s.path(root)
	if err != nil {
		return Session{}, false, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, false, nil
		}
		return Session{}, false, fmt.Errorf("state: reading %s: %w", p, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, false, fmt.Errorf("state: parsing %s: %w", p, err)
	}
	return sess, true, nil
}

// Remove deletes the session file for the given collection root.
func (s *FileStore) Remove(root string) error {
	p, err := s.path(root)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("state: removing %s: %w", p, err)
	}
	return nil
}

// ErrInvalidRoot indicates a collection root is empty.
var ErrInvalidRoot = errors.New("state: invalid collection root")

// path returns the filesystem path for a session file. Roots are
// arbitrary directory paths, so the filename is a digest of the
// cleaned absolute path rather than the path itself.
func (s *FileStore) path(root string) (string, error) {
	if root == "" {
		return "", ErrInvalidRoot
	}
	abs, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoot, root)
	}
	sum := sha256.Sum256([]byte(abs))
	return filepath.Join(s.baseDir, hex.EncodeToString(sum[:8])+".json"), nil
}
