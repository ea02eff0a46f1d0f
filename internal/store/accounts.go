package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rumor-ml/homeledger/internal/domain"
)

// AccountRepo handles accounts.
type AccountRepo struct {
	q DBTX
}

const accountColumns = `id, name, institution_name, last4, active`

func (r *AccountRepo) Insert(ctx context.Context, a domain.Account) error {
	now := fmtTime(time.Now())
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO accounts (id, name, institution_name, last4, active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.InstitutionName, a.Last4, a.Active, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (r *AccountRepo) Update(ctx context.Context, a domain.Account) error {
	_, err := r.q.ExecContext(ctx, `
	UPDATE accounts
	SET name = ?, institution_name = ?, last4 = ?, active = ?, updated_at = ?
	WHERE id = ?`,
		a.Name, a.InstitutionName, a.Last4, a.Active, fmtTime(time.Now()), a.ID)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

// GetByID returns the account or (nil, nil) when absent.
func (r *AccountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// FindByName matches the account name case-insensitively, or (nil, nil).
func (r *AccountRepo) FindByName(ctx context.Context, name string) (*domain.Account, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE name = ? COLLATE NOCASE`, name)
	return scanAccount(row)
}

func (r *AccountRepo) List(ctx context.Context, includeInactive bool) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	if !includeInactive {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name COLLATE NOCASE`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.InstitutionName, &a.Last4, &a.Active); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Name, &a.InstitutionName, &a.Last4, &a.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &a, nil
}
