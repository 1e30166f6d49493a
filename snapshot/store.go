package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Alex-Pennington/splitterstats/errors"
)

// Store persists and restores the statistics document
type Store interface {
	// Save atomically overwrites the stored document
	Save(doc *Document) error
	// Load returns the stored document. A missing file yields
	// ErrSnapshotUnavailable; an unreadable one ErrSnapshotCorrupted.
	Load() (*Document, error)
}

// FileStore persists the document as indented JSON at a fixed path.
// Writes go through a temp file in the same directory followed by a
// rename, so readers never observe a partial document.
type FileStore struct {
	path string
}

// NewFileStore creates a file store at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the snapshot file path
func (s *FileStore) Path() string {
	return s.path
}

// Save writes the document atomically
func (s *FileStore) Save(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.WrapFatal(err, "FileStore", "Save", "marshal snapshot document")
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return errors.WrapTransient(err, "FileStore", "Save", "create temp snapshot file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.WrapTransient(err, "FileStore", "Save", "write temp snapshot file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.WrapTransient(err, "FileStore", "Save", "close temp snapshot file")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.WrapTransient(err, "FileStore", "Save", "replace snapshot file")
	}
	return nil
}

// Load reads and parses the stored document
func (s *FileStore) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapTransient(
				fmt.Errorf("%w: %s", errors.ErrSnapshotUnavailable, s.path),
				"FileStore", "Load", "snapshot file not found")
		}
		return nil, errors.WrapTransient(err, "FileStore", "Load", "read snapshot file")
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrSnapshotCorrupted, err),
			"FileStore", "Load", "parse snapshot file")
	}
	return &doc, nil
}
