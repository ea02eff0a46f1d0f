package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rumor-ml/homeledger/internal/domain"
)

// PlaidRepo handles aggregation connections and API usage counters.
type PlaidRepo struct {
	q DBTX
}

const connectionColumns = `id, account_id, item_id, plaid_account_id, access_token,
	account_name, institution_name, mask, active, transactions_cursor, last_synced_at`

func (r *PlaidRepo) InsertConnection(ctx context.Context, c domain.PlaidConnection) error {
	now := fmtTime(time.Now())
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO plaid_connections (`+connectionColumns+`, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AccountID, c.ItemID, c.PlaidAccountID, c.AccessToken,
		c.AccountName, c.InstitutionName, c.Mask, c.Active,
		c.TransactionsCursor, nullTime(c.LastSyncedAt), now, now)
	if err != nil {
		return fmt.Errorf("failed to insert plaid connection: %w", err)
	}
	return nil
}

func (r *PlaidRepo) UpdateConnection(ctx context.Context, c domain.PlaidConnection) error {
	_, err := r.q.ExecContext(ctx, `
	UPDATE plaid_connections
	SET item_id = ?, access_token = ?, account_name = ?, institution_name = ?,
	    mask = ?, active = ?, transactions_cursor = ?, last_synced_at = ?, updated_at = ?
	WHERE id = ?`,
		c.ItemID, c.AccessToken, c.AccountName, c.InstitutionName, c.Mask,
		c.Active, c.TransactionsCursor, nullTime(c.LastSyncedAt),
		fmtTime(time.Now()), c.ID)
	if err != nil {
		return fmt.Errorf("failed to update plaid connection: %w", err)
	}
	return nil
}

// GetConnection returns the connection or (nil, nil) when absent.
func (r *PlaidRepo) GetConnection(ctx context.Context, id string) (*domain.PlaidConnection, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM plaid_connections WHERE id = ?`, id)
	return scanConnection(row)
}

// FindConnectionByPlaidAccountID returns the connection for one external
// account or (nil, nil). Used to detect re-links.
func (r *PlaidRepo) FindConnectionByPlaidAccountID(ctx context.Context, plaidAccountID string) (*domain.PlaidConnection, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM plaid_connections WHERE plaid_account_id = ?`, plaidAccountID)
	return scanConnection(row)
}

// ListConnections returns all connections ordered by institution then name.
func (r *PlaidRepo) ListConnections(ctx context.Context) ([]domain.PlaidConnection, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+connectionColumns+` FROM plaid_connections
		 ORDER BY institution_name COLLATE NOCASE, account_name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plaid connections: %w", err)
	}
	defer rows.Close()

	var out []domain.PlaidConnection
	for rows.Next() {
		var (
			c            domain.PlaidConnection
			lastSyncedAt sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.AccountID, &c.ItemID, &c.PlaidAccountID,
			&c.AccessToken, &c.AccountName, &c.InstitutionName, &c.Mask,
			&c.Active, &c.TransactionsCursor, &lastSyncedAt); err != nil {
			return nil, fmt.Errorf("failed to scan plaid connection: %w", err)
		}
		if c.LastSyncedAt, err = timePtr(lastSyncedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// IncrementUsage adds one call to the month+product counter, creating the
// counter row on first use.
func (r *PlaidRepo) IncrementUsage(ctx context.Context, monthKey, product string) error {
	now := fmtTime(time.Now())
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO plaid_api_usage (id, month_key, product, call_count, created_at, updated_at)
	VALUES (?, ?, ?, 1, ?, ?)
	ON CONFLICT (month_key, product) DO UPDATE SET
	 call_count = call_count + 1,
	 updated_at = excluded.updated_at`,
		NewID(), monthKey, product, now, now)
	if err != nil {
		return fmt.Errorf("failed to increment plaid usage: %w", err)
	}
	return nil
}

// UsageCount returns the recorded calls for one month+product, zero when the
// counter does not exist.
func (r *PlaidRepo) UsageCount(ctx context.Context, monthKey, product string) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT call_count FROM plaid_api_usage WHERE month_key = ? AND product = ?`,
		monthKey, product).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query plaid usage: %w", err)
	}
	return count, nil
}

func scanConnection(row *sql.Row) (*domain.PlaidConnection, error) {
	var (
		c            domain.PlaidConnection
		lastSyncedAt sql.NullString
	)
	err := row.Scan(&c.ID, &c.AccountID, &c.ItemID, &c.PlaidAccountID,
		&c.AccessToken, &c.AccountName, &c.InstitutionName, &c.Mask,
		&c.Active, &c.TransactionsCursor, &lastSyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan plaid connection: %w", err)
	}
	if c.LastSyncedAt, err = timePtr(lastSyncedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
