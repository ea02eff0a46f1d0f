// Package store is the sqlite persistence layer. Repositories run over a
// DBTX so the same code serves both pooled connections and transactions;
// statement imports run entirely inside one transaction via InTx.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store bundles all repositories over one DBTX.
type Store struct {
	db *sql.DB

	Accounts     *AccountRepo
	Categories   *CategoryRepo
	Months       *MonthRepo
	Plans        *PlanRepo
	Transactions *TransactionRepo
	Batches      *BatchRepo
	Mappings     *MappingRepo
	Plaid        *PlaidRepo
}

// New creates a store over an open database handle.
func New(db *sql.DB) *Store {
	s := bind(db)
	s.db = db
	return s
}

func bind(q DBTX) *Store {
	return &Store{
		Accounts:     &AccountRepo{q: q},
		Categories:   &CategoryRepo{q: q},
		Months:       &MonthRepo{q: q},
		Plans:        &PlanRepo{q: q},
		Transactions: &TransactionRepo{q: q},
		Batches:      &BatchRepo{q: q},
		Mappings:     &MappingRepo{q: q},
		Plaid:        &PlaidRepo{q: q},
	}
}

// Open opens the sqlite database at path and applies pending migrations.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}
	// modernc sqlite allows one writer; a single pooled connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies all embedded up migrations.
func Migrate(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to init migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// InTx runs fn with a store bound to a single transaction, committing on nil
// and rolling back on error or panic.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.db == nil {
		return fmt.Errorf("store is already transaction-bound")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(bind(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err is a sqlite UNIQUE constraint
// failure. The modernc driver exposes no typed error for this, so the
// message is matched.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// NewID returns a fresh uuid string for entity primary keys.
func NewID() string {
	return uuid.NewString()
}

// dateFormat is how calendar dates are stored (dates only, no time part).
const dateFormat = "2006-01-02"
