package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/avast/retry-go/v4"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/cds-engine/internal/repository"
)

const kvSchema = `
	CREATE TABLE IF NOT EXISTS cds_kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

const kvTable = "cds_kv"

type kvStore struct {
	db           *sqlx.DB
	queryBuilder sq.StatementBuilderType
	attempts     uint
}

// NewKVStore stores each key as one row of cds_kv.
func NewKVStore(db *sqlx.DB) repository.KVStore {
	return &kvStore{
		db:           db,
		queryBuilder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		attempts:     3,
	}
}

// EnsureSchema creates the cds_kv table when missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, kvSchema); err != nil {
		return fmt.Errorf("failed to create cds_kv: %w", err)
	}
	return nil
}

func (s *kvStore) selectValue(key string) sq.SelectBuilder {
	return s.queryBuilder.
		Select("value").
		From(kvTable).
		Where(sq.Eq{"key": key})
}

func (s *kvStore) upsertValue(key, value string, at time.Time) sq.InsertBuilder {
	return s.queryBuilder.
		Insert(kvTable).
		Columns("key", "value", "updated_at").
		Values(key, value, at).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at")
}

func (s *kvStore) Get(ctx context.Context, key string) (string, bool, error) {
	query, args, err := s.selectValue(key).ToSql()
	if err != nil {
		return "", false, err
	}

	var value string
	err = s.db.GetContext(ctx, &value, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *kvStore) Set(ctx context.Context, key, value string) error {
	query, args, err := s.upsertValue(key, value, time.Now().UTC()).ToSql()
	if err != nil {
		return err
	}

	return retry.Do(
		func() error {
			_, err := s.db.ExecContext(ctx, query, args...)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(50*time.Millisecond),
		retry.LastErrorOnly(true),
	)
}

func (s *kvStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
