// internal/store/store.go

// Package store provides the two-tier persistence surface the catalog
// depends on: durable named options backed by Postgres and TTL-scoped
// transients backed by Redis.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"

	commonerrors "treasury-portal/internal/common/errors"
	"treasury-portal/internal/common/logger"
)

// Store is the persistence interface the catalog packages consume.
type Store interface {
	// Durable options survive restarts and cache flushes.
	GetOption(ctx context.Context, name string) ([]byte, bool, error)
	SetOption(ctx context.Context, name string, value []byte) error
	DeleteOption(ctx context.Context, name string) error

	// Transients expire on their own and may vanish at any time.
	GetTransient(ctx context.Context, key string) ([]byte, bool, error)
	SetTransient(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteTransient(ctx context.Context, key string) error
}

const keyPrefix = "ttp:"

const (
	getOptionQuery = `SELECT value FROM portal_options WHERE name = $1`
	setOptionQuery = `INSERT INTO portal_options (name, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	deleteOptionQuery = `DELETE FROM portal_options WHERE name = $1`
)

// Layered implements Store over a SQL database and a Redis client.
type Layered struct {
	db    *sql.DB
	redis *redis.Client
	log   logger.Logger
}

func NewLayered(db *sql.DB, rdb *redis.Client, log logger.Logger) *Layered {
	return &Layered{db: db, redis: rdb, log: log}
}

func (s *Layered) GetOption(ctx context.Context, name string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, getOptionQuery, keyPrefix+name).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, commonerrors.NewOptionReadFailedError(name, err)
	}
	return value, true, nil
}

func (s *Layered) SetOption(ctx context.Context, name string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, setOptionQuery, keyPrefix+name, value); err != nil {
		return commonerrors.NewOptionSaveFailedError(name, err)
	}
	return nil
}

func (s *Layered) DeleteOption(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, deleteOptionQuery, keyPrefix+name); err != nil {
		return commonerrors.NewOptionSaveFailedError(name, err)
	}
	return nil
}

func (s *Layered) GetTransient(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.redis.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		s.log.Warn("transient read failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil, false, commonerrors.NewCacheReadFailedError(key, err)
	}
	return value, true, nil
}

func (s *Layered) SetTransient(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.redis.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		return commonerrors.NewCacheWriteFailedError(key, err)
	}
	return nil
}

func (s *Layered) DeleteTransient(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, keyPrefix+key).Err(); err != nil {
		return commonerrors.NewCacheWriteFailedError(key, err)
	}
	return nil
}
