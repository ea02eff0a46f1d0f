package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rumor-ml/homeledger/internal/domain"
)

// BatchRepo handles import batches and their issues.
type BatchRepo struct {
	q DBTX
}

func (r *BatchRepo) Insert(ctx context.Context, b domain.ImportBatch) error {
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO import_batches
	  (id, account_id, file_name, file_type, status, inserted, skipped_duplicates,
	   parse_errors, warnings, created_at, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.AccountID, b.FileName, b.FileType, b.Status, b.Inserted,
		b.SkippedDuplicates, b.ParseErrors, b.Warnings, fmtTime(b.CreatedAt),
		nullTime(b.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to insert import batch: %w", err)
	}
	return nil
}

func (r *BatchRepo) Update(ctx context.Context, b domain.ImportBatch) error {
	_, err := r.q.ExecContext(ctx, `
	UPDATE import_batches
	SET status = ?, inserted = ?, skipped_duplicates = ?, parse_errors = ?,
	    warnings = ?, completed_at = ?
	WHERE id = ?`,
		b.Status, b.Inserted, b.SkippedDuplicates, b.ParseErrors, b.Warnings,
		nullTime(b.CompletedAt), b.ID)
	if err != nil {
		return fmt.Errorf("failed to update import batch: %w", err)
	}
	return nil
}

// GetByID returns the batch or (nil, nil) when absent.
func (r *BatchRepo) GetByID(ctx context.Context, id string) (*domain.ImportBatch, error) {
	row := r.q.QueryRowContext(ctx, `
	SELECT id, account_id, file_name, file_type, status, inserted, skipped_duplicates,
	       parse_errors, warnings, created_at, completed_at
	FROM import_batches WHERE id = ?`, id)

	var (
		b           domain.ImportBatch
		createdAt   string
		completedAt sql.NullString
	)
	err := row.Scan(&b.ID, &b.AccountID, &b.FileName, &b.FileType, &b.Status,
		&b.Inserted, &b.SkippedDuplicates, &b.ParseErrors, &b.Warnings,
		&createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan import batch: %w", err)
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if b.CompletedAt, err = timePtr(completedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BatchRepo) InsertIssue(ctx context.Context, issue domain.ImportIssue) error {
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO import_issues (id, import_batch_id, severity, row_number, message, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		issue.ID, issue.ImportBatchID, issue.Severity, nullInt(issue.RowNumber),
		issue.Message, fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to insert import issue: %w", err)
	}
	return nil
}

// ListIssues returns all issues of one batch in insertion order.
func (r *BatchRepo) ListIssues(ctx context.Context, batchID string) ([]domain.ImportIssue, error) {
	rows, err := r.q.QueryContext(ctx, `
	SELECT id, import_batch_id, severity, row_number, message
	FROM import_issues WHERE import_batch_id = ? ORDER BY created_at, id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list import issues: %w", err)
	}
	defer rows.Close()

	var out []domain.ImportIssue
	for rows.Next() {
		var (
			issue     domain.ImportIssue
			rowNumber sql.NullInt64
		)
		if err := rows.Scan(&issue.ID, &issue.ImportBatchID, &issue.Severity, &rowNumber, &issue.Message); err != nil {
			return nil, fmt.Errorf("failed to scan import issue: %w", err)
		}
		issue.RowNumber = intPtr(rowNumber)
		out = append(out, issue)
	}
	return out, rows.Err()
}
