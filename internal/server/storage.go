package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/semp-project/semp/internal/models"
)

// Storage sentinels. Handlers translate these to protocol failures.
var (
	ErrNoUser         = errors.New("user not found")
	ErrUntrustedGuard = errors.New("untrusted user cannot be restored to trusted")
)

// Store is the persistence collaborator. Implementations own their own
// transaction discipline: read-then-write sequences (the untrusted guard in
// UpdateUser, wholesale ban-list replacement) must be serialized by the
// backend.
type Store interface {
	Init(ctx context.Context) error
	Close() error

	CreateUser(ctx context.Context, user models.UserRecord) error
	UpdateUser(ctx context.Context, name string, upd models.UpdateUserRequest) error
	GetUser(ctx context.Context, name string) (models.UserRecord, error)

	StoreMessage(ctx context.Context, msg models.Message) error
	// GetMessages returns messages addressed to the full "@name.host"
	// address with id > since, ordered by id, at most limit.
	GetMessages(ctx context.Context, to string, since string, limit int) ([]models.Message, error)
	// DeleteMessages removes only messages addressed to the given address.
	DeleteMessages(ctx context.Context, to string, ids []string) error
	// DeleteExpired sweeps messages older than age, using the id time
	// bucket as the cutoff.
	DeleteExpired(ctx context.Context, age time.Duration) error

	GetBanHosts(ctx context.Context) ([]string, error)
	SetBanHosts(ctx context.Context, hosts []string) error
}

// NewStore selects a backend by DB_URL the way the server is deployed:
// postgres:// and postgresql:// pick the relational store, redis:// the
// redis store, anything else is a directory for the file store.
func NewStore(dbURL string, blobs BlobStore) (Store, error) {
	switch {
	case strings.HasPrefix(dbURL, "postgres:"), strings.HasPrefix(dbURL, "postgresql:"):
		return NewPGStore(dbURL)
	case strings.HasPrefix(dbURL, "redis:"), strings.HasPrefix(dbURL, "rediss:"):
		return NewRedisStore(dbURL)
	case strings.Contains(dbURL, "://"):
		return nil, fmt.Errorf("unsupported data provider in config: %s", dbURL)
	default:
		return NewFileStore(dbURL, blobs)
	}
}

// applyUserUpdate folds an update into a record, enforcing the one-way
// untrusted guard. Callers run it inside their backend's transaction.
func applyUserUpdate(user *models.UserRecord, upd models.UpdateUserRequest) error {
	if user.UntrustedAt != nil && !upd.Untrusted {
		return ErrUntrustedGuard
	}
	if upd.Untrusted && user.UntrustedAt == nil {
		now := time.Now().UTC()
		user.UntrustedAt = &now
	}

	if upd.DisplayName != "" {
		user.DisplayName = upd.DisplayName
	}
	user.BanHosts = upd.BanHosts
	user.BanUsers = upd.BanUsers
	return nil
}
