package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rumor-ml/homeledger/internal/domain"
)

// TransactionRepo handles ledger transactions.
type TransactionRepo struct {
	q DBTX
}

const transactionColumns = `id, budget_month_id, account_id, type, date, amount, description,
	category_id, source_external_id, dedupe_fingerprint, import_batch_id`

func (r *TransactionRepo) Insert(ctx context.Context, t domain.BudgetTransaction) error {
	now := fmtTime(time.Now())
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO budget_transactions (`+transactionColumns+`, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.BudgetMonthID, nullStrPtr(t.AccountID), t.Type, fmtDate(t.Date),
		t.Amount.String(), t.Description, t.CategoryID,
		nullStr(t.SourceExternalID), nullStr(t.DedupeFingerprint),
		nullStrPtr(t.ImportBatchID), now, now)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepo) Update(ctx context.Context, t domain.BudgetTransaction) error {
	_, err := r.q.ExecContext(ctx, `
	UPDATE budget_transactions
	SET budget_month_id = ?, account_id = ?, type = ?, date = ?, amount = ?,
	    description = ?, category_id = ?, updated_at = ?
	WHERE id = ?`,
		t.BudgetMonthID, nullStrPtr(t.AccountID), t.Type, fmtDate(t.Date),
		t.Amount.String(), t.Description, t.CategoryID, fmtTime(time.Now()), t.ID)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM budget_transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return nil
}

// GetByID returns the transaction or (nil, nil) when absent.
func (r *TransactionRepo) GetByID(ctx context.Context, id string) (*domain.BudgetTransaction, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM budget_transactions WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	t, err := scanTransaction(rows)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListByMonth returns all transactions of one month ordered by date.
func (r *TransactionRepo) ListByMonth(ctx context.Context, monthID string) ([]domain.BudgetTransaction, error) {
	return r.list(ctx,
		`SELECT `+transactionColumns+` FROM budget_transactions
		 WHERE budget_month_id = ? ORDER BY date, created_at`, monthID)
}

// ListByMonthAndType returns one side of a month's ledger, newest first.
func (r *TransactionRepo) ListByMonthAndType(ctx context.Context, monthID string, txType domain.TransactionType) ([]domain.BudgetTransaction, error) {
	return r.list(ctx,
		`SELECT `+transactionColumns+` FROM budget_transactions
		 WHERE budget_month_id = ? AND type = ? ORDER BY date DESC, created_at DESC, id DESC`, monthID, txType)
}

func (r *TransactionRepo) list(ctx context.Context, query string, args ...any) ([]domain.BudgetTransaction, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.BudgetTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ExistingExternalIDs returns which of the candidate external ids are already
// present for the account.
func (r *TransactionRepo) ExistingExternalIDs(ctx context.Context, accountID string, candidates []string) (map[string]bool, error) {
	return r.existingValues(ctx, "source_external_id", accountID, candidates)
}

// ExistingFingerprints returns which of the candidate fingerprints are
// already present for the account.
func (r *TransactionRepo) ExistingFingerprints(ctx context.Context, accountID string, candidates []string) (map[string]bool, error) {
	return r.existingValues(ctx, "dedupe_fingerprint", accountID, candidates)
}

func (r *TransactionRepo) existingValues(ctx context.Context, column, accountID string, candidates []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(candidates))
	if len(candidates) == 0 {
		return existing, nil
	}

	args := make([]any, 0, len(candidates)+1)
	args = append(args, accountID)
	for _, c := range candidates {
		args = append(args, c)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(candidates)), ",")

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+column+` FROM budget_transactions
		 WHERE account_id = ? AND `+column+` IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing %s values: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", column, err)
		}
		existing[value] = true
	}
	return existing, rows.Err()
}

// AssignAccountToUnassigned backfills account-less transactions onto the
// given account and returns how many rows changed.
func (r *TransactionRepo) AssignAccountToUnassigned(ctx context.Context, accountID string) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
	UPDATE budget_transactions SET account_id = ?, updated_at = ? WHERE account_id IS NULL`,
		accountID, fmtTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to backfill transactions: %w", err)
	}
	return res.RowsAffected()
}

func scanTransaction(rows *sql.Rows) (*domain.BudgetTransaction, error) {
	var (
		t             domain.BudgetTransaction
		accountID     sql.NullString
		date, amount  string
		externalID    sql.NullString
		fingerprint   sql.NullString
		importBatchID sql.NullString
	)
	err := rows.Scan(&t.ID, &t.BudgetMonthID, &accountID, &t.Type, &date, &amount,
		&t.Description, &t.CategoryID, &externalID, &fingerprint, &importBatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	if t.Date, err = parseDate(date); err != nil {
		return nil, err
	}
	if t.Amount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	t.AccountID = strPtr(accountID)
	t.SourceExternalID = externalID.String
	t.DedupeFingerprint = fingerprint.String
	t.ImportBatchID = strPtr(importBatchID)
	return &t, nil
}
