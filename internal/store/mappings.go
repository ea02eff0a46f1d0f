package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rumor-ml/homeledger/internal/domain"
)

// MappingRepo handles saved per-account CSV column mappings.
type MappingRepo struct {
	q DBTX
}

// GetByAccount returns the saved mapping or (nil, nil).
func (r *MappingRepo) GetByAccount(ctx context.Context, accountID string) (*domain.AccountCSVMapping, error) {
	row := r.q.QueryRowContext(ctx, `
	SELECT id, account_id, date_column_index, amount_column_index,
	       description_column_index, category_column_index, external_id_column_index
	FROM account_csv_mappings WHERE account_id = ?`, accountID)

	var (
		m                  domain.AccountCSVMapping
		category, external sql.NullInt64
	)
	err := row.Scan(&m.ID, &m.AccountID, &m.DateColumnIndex, &m.AmountColumnIndex,
		&m.DescriptionColumnIndex, &category, &external)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan csv mapping: %w", err)
	}
	m.CategoryColumnIndex = intPtr(category)
	m.ExternalIDColumnIndex = intPtr(external)
	return &m, nil
}

// Upsert writes the account's mapping, replacing any previous one.
func (r *MappingRepo) Upsert(ctx context.Context, m domain.AccountCSVMapping) error {
	now := fmtTime(time.Now())
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO account_csv_mappings
	  (id, account_id, date_column_index, amount_column_index, description_column_index,
	   category_column_index, external_id_column_index, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (account_id) DO UPDATE SET
	 date_column_index = excluded.date_column_index,
	 amount_column_index = excluded.amount_column_index,
	 description_column_index = excluded.description_column_index,
	 category_column_index = excluded.category_column_index,
	 external_id_column_index = excluded.external_id_column_index,
	 updated_at = excluded.updated_at`,
		m.ID, m.AccountID, m.DateColumnIndex, m.AmountColumnIndex,
		m.DescriptionColumnIndex, nullInt(m.CategoryColumnIndex),
		nullInt(m.ExternalIDColumnIndex), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert csv mapping: %w", err)
	}
	return nil
}
