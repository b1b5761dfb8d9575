package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pesahub/gateway/internal/domain"
)

const entryColumns = `id, account_id, kind, amount, receipt, internal_ref, counterparty, created_at`

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Create appends an entry inside the caller's transaction. A unique
// violation on the receipt index is reported as ErrDuplicateReceipt so
// two concurrent deliveries of the same callback cannot both apply.
func (r *LedgerRepository) Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (
			id, account_id, kind, amount, receipt, internal_ref, counterparty, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.AccountID, entry.Kind, entry.Amount,
		entry.Receipt, entry.InternalRef, entry.Counterparty, entry.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateReceipt)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// GetByReceipt finds the entry a provider receipt was already applied
// to, if any. Returns ErrNotFound when the receipt is unseen.
func (r *LedgerRepository) GetByReceipt(ctx context.Context, receipt string) (*domain.LedgerEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE receipt = $1`, receipt,
	)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByReceipt: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByReceipt: %w", err)
	}
	return e, nil
}

// GetLast returns the chronologically newest entry for an account.
func (r *LedgerRepository) GetLast(ctx context.Context, accountID uuid.UUID) (*domain.LedgerEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
		WHERE account_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		accountID,
	)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetLast: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetLast: %w", err)
	}
	return e, nil
}

func (r *LedgerRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
		WHERE account_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByAccount: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByAccount: scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByAccount: rows: %w", err)
	}
	return entries, nil
}

func scanEntry(s scanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := s.Scan(
		&e.ID, &e.AccountID, &e.Kind, &e.Amount,
		&e.Receipt, &e.InternalRef, &e.Counterparty, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
