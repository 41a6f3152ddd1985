// Package sqlite implements the local reading store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/huandu/go-sqlbuilder"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/tesso57/readsync/internal/application/usecase"
	"github.com/tesso57/readsync/internal/domain/account"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a usecase.Store backed by one SQLite database file.
type Store struct {
	queries
	db  *sql.DB
	log *zap.Logger
}

var _ usecase.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := connection(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Debug("store opened", zap.String("path", path))
	return &Store{queries: queries{q: db}, db: db, log: logger}, nil
}

func connection(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, err
	}

	// One connection: SQLite has a single writer and the pragmas are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, `
		PRAGMA synchronous = NORMAL;
		PRAGMA temp_store = MEMORY;
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}
	return db, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	// m.Close would close db as well.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn in one SQL transaction, committing only when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(tx usecase.StoreTx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&tx{queries{q: sqlTx}}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// EnsureAccount records acc. When the type or base URL of a known account
// changed, its stored content belongs to another server and is dropped.
func (s *Store) EnsureAccount(ctx context.Context, acc account.Account) error {
	return s.InTx(ctx, func(t usecase.StoreTx) error {
		q := t.(*tx).queries

		sb := sqlbuilder.SQLite.NewSelectBuilder()
		sb.Select("type", "url").From("accounts").Where(sb.Equal("id", acc.ID))
		query, args := sb.Build()
		var typ, url string
		err := q.q.QueryRowContext(ctx, query, args...).Scan(&typ, &url)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			ib := sqlbuilder.SQLite.NewInsertBuilder()
			ib.InsertInto("accounts").Cols("id", "type", "name", "url", "login").
				Values(acc.ID, string(acc.Type), acc.Name, acc.BaseURL(), acc.Login)
			query, args = ib.Build()
			_, err = q.q.ExecContext(ctx, query, args...)
			return err
		case err != nil:
			return err
		}

		if typ != string(acc.Type) || url != acc.BaseURL() {
			s.log.Info("account target changed, dropping stored content",
				zap.Int64("account_id", acc.ID), zap.String("type", string(acc.Type)))
			if err := q.deleteAccountContent(ctx, acc.ID); err != nil {
				return err
			}
		}
		ub := sqlbuilder.SQLite.NewUpdateBuilder()
		ub.Update("accounts").Set(
			ub.Assign("type", string(acc.Type)),
			ub.Assign("name", acc.Name),
			ub.Assign("url", acc.BaseURL()),
			ub.Assign("login", acc.Login),
		).Where(ub.Equal("id", acc.ID))
		query, args = ub.Build()
		_, err = q.q.ExecContext(ctx, query, args...)
		return err
	})
}

// DeleteAccount removes the account and everything stored for it.
func (s *Store) DeleteAccount(ctx context.Context, accountID int64) error {
	db := sqlbuilder.SQLite.NewDeleteBuilder()
	db.DeleteFrom("accounts").Where(db.Equal("id", accountID))
	query, args := db.Build()
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// queries holds every statement; it runs on the database or on a transaction.
type queries struct {
	q querier
}

// tx is the usecase.StoreTx handed to InTx callbacks.
type tx struct {
	queries
}

var _ usecase.StoreTx = (*tx)(nil)

func (q queries) deleteAccountContent(ctx context.Context, accountID int64) error {
	// Items cascade from feeds.
	for _, table := range []string{"pending_states", "feeds", "folders"} {
		db := sqlbuilder.SQLite.NewDeleteBuilder()
		db.DeleteFrom(table).Where(db.Equal("account_id", accountID))
		query, args := db.Build()
		if _, err := q.q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("accounts").Set(ub.Assign("sync_cursor", "")).Where(ub.Equal("id", accountID))
	query, args := ub.Build()
	_, err := q.q.ExecContext(ctx, query, args...)
	return err
}
