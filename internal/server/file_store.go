package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/semp-project/semp/internal/models"
	"github.com/semp-project/semp/internal/msgid"
)

// FileStore keeps user records, message metadata and the ban list as JSON
// files under a base directory; message content lives in a BlobStore keyed
// by message id.
type FileStore struct {
	mu       sync.RWMutex
	baseDir  string
	users    map[string]models.UserRecord
	messages map[string]models.Message // metadata only, content in blobs
	banHosts []string
	blobs    BlobStore
}

// NewFileStore creates a file store rooted at baseDir.
func NewFileStore(baseDir string, blobs BlobStore) (*FileStore, error) {
	if blobs == nil {
		blobs = NewLocalBlobStore(baseDir)
	}
	return &FileStore{
		baseDir:  baseDir,
		users:    make(map[string]models.UserRecord),
		messages: make(map[string]models.Message),
		blobs:    blobs,
	}, nil
}

func (s *FileStore) Init(ctx context.Context) error {
	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return err
	}

	if data, err := os.ReadFile(filepath.Join(s.baseDir, "users.json")); err == nil {
		if err := json.Unmarshal(data, &s.users); err != nil {
			return fmt.Errorf("load users: %w", err)
		}
	}
	if data, err := os.ReadFile(filepath.Join(s.baseDir, "messages.json")); err == nil {
		if err := json.Unmarshal(data, &s.messages); err != nil {
			return fmt.Errorf("load messages: %w", err)
		}
	}
	if data, err := os.ReadFile(filepath.Join(s.baseDir, "ban_hosts.json")); err == nil {
		if err := json.Unmarshal(data, &s.banHosts); err != nil {
			return fmt.Errorf("load ban hosts: %w", err)
		}
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

// save persists the metadata files. Caller must hold the write lock.
func (s *FileStore) save() error {
	for name, v := range map[string]any{
		"users.json":     s.users,
		"messages.json":  s.messages,
		"ban_hosts.json": s.banHosts,
	} {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(s.baseDir, name), data, 0644); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileStore) CreateUser(ctx context.Context, user models.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// First writer wins; re-registering an existing key is a no-op.
	if _, ok := s.users[user.Name]; ok {
		return nil
	}
	s.users[user.Name] = user
	return s.save()
}

func (s *FileStore) UpdateUser(ctx context.Context, name string, upd models.UpdateUserRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[name]
	if !ok {
		return ErrNoUser
	}
	if err := applyUserUpdate(&user, upd); err != nil {
		return err
	}
	s.users[name] = user
	return s.save()
}

func (s *FileStore) GetUser(ctx context.Context, name string) (models.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[name]
	if !ok {
		return models.UserRecord{}, ErrNoUser
	}
	return user, nil
}

func (s *FileStore) StoreMessage(ctx context.Context, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.blobs.Save(msg.ID, msg.Content); err != nil {
		return err
	}
	meta := msg
	meta.Content = nil
	s.messages[msg.ID] = meta
	return s.save()
}

func (s *FileStore) GetMessages(ctx context.Context, to string, since string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	var ids []string
	for id, m := range s.messages {
		if m.To == to && id > since {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	result := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		s.mu.RLock()
		m := s.messages[id]
		s.mu.RUnlock()

		content, err := s.blobs.Get(id)
		if err != nil {
			return nil, fmt.Errorf("load content %s: %w", id, err)
		}
		m.Content = content
		result = append(result, m)
	}
	return result, nil
}

func (s *FileStore) DeleteMessages(ctx context.Context, to string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		m, ok := s.messages[id]
		if !ok || m.To != to {
			continue
		}
		if err := s.blobs.Delete(id); err != nil {
			return err
		}
		delete(s.messages, id)
	}
	return s.save()
}

func (s *FileStore) DeleteExpired(ctx context.Context, age time.Duration) error {
	cutoff := msgid.ExpiryCutoff(age)

	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.messages {
		if id < cutoff {
			if err := s.blobs.Delete(id); err != nil {
				return err
			}
			delete(s.messages, id)
		}
	}
	return s.save()
}

func (s *FileStore) GetBanHosts(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hosts := make([]string, len(s.banHosts))
	copy(hosts, s.banHosts)
	return hosts, nil
}

func (s *FileStore) SetBanHosts(ctx context.Context, hosts []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.banHosts = append([]string(nil), hosts...)
	return s.save()
}
