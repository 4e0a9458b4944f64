package server

import (
	"os"
	"path/filepath"
)

// BlobStore stores raw message content keyed by message id.
type BlobStore interface {
	Save(id string, content []byte) error
	Get(id string) ([]byte, error)
	Delete(id string) error
}

// LocalBlobStore implements BlobStore on the local filesystem.
type LocalBlobStore struct {
	BaseDir string
}

func NewLocalBlobStore(baseDir string) *LocalBlobStore {
	return &LocalBlobStore{BaseDir: baseDir}
}

func (s *LocalBlobStore) Save(id string, content []byte) error {
	if err := os.MkdirAll(s.BaseDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.BaseDir, id+".bin"), content, 0644)
}

func (s *LocalBlobStore) Get(id string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.BaseDir, id+".bin"))
}

func (s *LocalBlobStore) Delete(id string) error {
	if err := os.Remove(filepath.Join(s.BaseDir, id+".bin")); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
