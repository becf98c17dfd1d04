package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/armadaproject/batchsched/internal/common/batchcontext"
	"github.com/armadaproject/batchsched/internal/common/schederrors"
)

// PostgresStateStore is a StateStore backed by a postgres table of jsonb documents.
// The table is created on first use if it doesn't already exist.
type PostgresStateStore struct {
	db *pgxpool.Pool
	// Name of the postgres table used for storage.
	tableName string
}

func NewPostgresStateStore(db *pgxpool.Pool, tableName string) (*PostgresStateStore, error) {
	if db == nil {
		return nil, errors.WithStack(&schederrors.ErrInvalidArgument{
			Name:    "db",
			Value:   db,
			Message: "db must be non-nil",
		})
	}
	if tableName == "" {
		return nil, errors.WithStack(&schederrors.ErrInvalidArgument{
			Name:    "TableName",
			Value:   tableName,
			Message: "TableName must be non-empty",
		})
	}
	return &PostgresStateStore{
		db:        db,
		tableName: tableName,
	}, nil
}

func (s *PostgresStateStore) Read(ctx *batchcontext.Context, key string) (Document, error) {
	var value []byte
	sql := fmt.Sprintf("select value from %s where key=$1", s.tableName)
	err := s.db.QueryRow(ctx, sql, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) || isUndefinedTable(err) {
		return Document{}, nil
	} else if err != nil {
		return nil, errors.WithStack(err)
	}
	return decodeDocument(value)
}

func (s *PostgresStateStore) Write(ctx *batchcontext.Context, key string, doc Document, merge bool) error {
	err := s.write(ctx, key, doc, merge)

	// If the table doesn't exist, create it and try again.
	if isUndefinedTable(err) {
		if err := s.createTable(ctx); err != nil {
			return errors.WithStack(err)
		}
		err = s.write(ctx, key, doc, merge)
	}
	return err
}

func (s *PostgresStateStore) write(ctx context.Context, key string, doc Document, merge bool) error {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		toWrite := doc
		if merge {
			var existing []byte
			sql := fmt.Sprintf("select value from %s where key=$1 for update", s.tableName)
			err := tx.QueryRow(ctx, sql, key).Scan(&existing)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
			current, err := decodeDocument(existing)
			if err != nil {
				return err
			}
			toWrite = Merge(current, doc)
		}
		value, err := encodeDocument(toWrite)
		if err != nil {
			return err
		}
		sql := fmt.Sprintf(
			"insert into %s (key, value, updated) values ($1, $2, now()) "+
				"on conflict (key) do update set value = excluded.value, updated = excluded.updated",
			s.tableName,
		)
		_, err = tx.Exec(ctx, sql, key, value)
		return err
	})
	return errors.WithStack(err)
}

func (s *PostgresStateStore) createTable(ctx context.Context) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf("create table %s (key text primary key, value jsonb not null, updated timestamptz not null);", s.tableName))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.DuplicateTable { // Someone else just created it, which is fine.
		return nil
	}
	return err
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable
}
