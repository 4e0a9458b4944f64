package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/semp-project/semp/internal/models"
	"github.com/semp-project/semp/internal/msgid"
)

// pgMigrations run in order; schema_version records how far we got.
var pgMigrations = []string{
	`CREATE TABLE users (
		name         TEXT PRIMARY KEY,
		public_key   BYTEA NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		ban_hosts    TEXT[] NOT NULL DEFAULT '{}',
		ban_users    TEXT[] NOT NULL DEFAULT '{}',
		untrusted_at TIMESTAMPTZ
	)`,
	`CREATE TABLE messages (
		id          TEXT PRIMARY KEY,
		"from"      TEXT NOT NULL,
		"to"        TEXT NOT NULL,
		"timestamp" TIMESTAMPTZ NOT NULL,
		content     BYTEA NOT NULL
	)`,
	`CREATE INDEX messages_to_id ON messages ("to", id)`,
	`CREATE TABLE ban_hosts (host TEXT PRIMARY KEY)`,
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(dbURL string) (*PGStore, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}
	return &PGStore{db: db}, nil
}

func (s *PGStore) Init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	_, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (version INT NOT NULL)`)
	if err != nil {
		return err
	}

	var version int
	err = s.db.QueryRowContext(ctx, `SELECT version FROM schema_version`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return err
		}
		version = 0
	} else if err != nil {
		return err
	}

	for i := version; i < len(pgMigrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, pgMigrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE schema_version SET version = $1`, i+1); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (s *PGStore) Close() error {
	return s.db.Close()
}

func (s *PGStore) CreateUser(ctx context.Context, user models.UserRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, public_key, display_name, ban_hosts, ban_users, untrusted_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (name) DO NOTHING`,
		user.Name, []byte(user.PublicKey), user.DisplayName,
		pq.Array(user.BanHosts), pq.Array(user.BanUsers), user.UntrustedAt)
	return err
}

func (s *PGStore) UpdateUser(ctx context.Context, name string, upd models.UpdateUserRequest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var user models.UserRecord
	var key []byte
	err = tx.QueryRowContext(ctx,
		`SELECT name, public_key, display_name, ban_hosts, ban_users, untrusted_at
		 FROM users WHERE name = $1 FOR UPDATE`, name).
		Scan(&user.Name, &key, &user.DisplayName,
			pq.Array(&user.BanHosts), pq.Array(&user.BanUsers), &user.UntrustedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoUser
	}
	if err != nil {
		return err
	}
	user.PublicKey = key

	if err := applyUserUpdate(&user, upd); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET display_name = $2, ban_hosts = $3, ban_users = $4, untrusted_at = $5
		 WHERE name = $1`,
		name, user.DisplayName, pq.Array(user.BanHosts), pq.Array(user.BanUsers), user.UntrustedAt)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) GetUser(ctx context.Context, name string) (models.UserRecord, error) {
	var user models.UserRecord
	var key []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT name, public_key, display_name, ban_hosts, ban_users, untrusted_at
		 FROM users WHERE name = $1`, name).
		Scan(&user.Name, &key, &user.DisplayName,
			pq.Array(&user.BanHosts), pq.Array(&user.BanUsers), &user.UntrustedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserRecord{}, ErrNoUser
	}
	if err != nil {
		return models.UserRecord{}, err
	}
	user.PublicKey = key
	return user, nil
}

func (s *PGStore) StoreMessage(ctx context.Context, msg models.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, "from", "to", "timestamp", content)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.From, msg.To, msg.Timestamp, []byte(msg.Content))
	return err
}

func (s *PGStore) GetMessages(ctx context.Context, to string, since string, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, "from", "to", "timestamp", content
		 FROM messages WHERE "to" = $1 AND id > $2
		 ORDER BY id LIMIT $3`,
		to, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.Message, 0, limit)
	for rows.Next() {
		var msg models.Message
		var content []byte
		if err := rows.Scan(&msg.ID, &msg.From, &msg.To, &msg.Timestamp, &content); err != nil {
			return nil, err
		}
		msg.Content = content
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (s *PGStore) DeleteMessages(ctx context.Context, to string, ids []string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE "to" = $1 AND id = ANY($2)`,
		to, pq.Array(ids))
	return err
}

func (s *PGStore) DeleteExpired(ctx context.Context, age time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE id < $1`, msgid.ExpiryCutoff(age))
	return err
}

func (s *PGStore) GetBanHosts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT host FROM ban_hosts ORDER BY host`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hosts []string
	for rows.Next() {
		var host string
		if err := rows.Scan(&host); err != nil {
			return nil, err
		}
		hosts = append(hosts, host)
	}
	return hosts, rows.Err()
}

func (s *PGStore) SetBanHosts(ctx context.Context, hosts []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ban_hosts`); err != nil {
		return err
	}
	for _, host := range hosts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ban_hosts (host) VALUES ($1) ON CONFLICT DO NOTHING`, host); err != nil {
			return err
		}
	}
	return tx.Commit()
}
