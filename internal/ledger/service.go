// Package ledger holds the money-moving core: callback reconciliation,
// peer-to-peer transfers, and the status projection. All balance
// mutations go through a single database transaction that both appends
// the ledger entry and updates the balance, so the two can never drift.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pesahub/gateway/internal/domain"
)

// How far back a transaction still counts as "recent" for polling bots.
const freshnessWindow = 180 * time.Second

// Bounded retries for optimistic-lock conflicts before giving up.
const maxConflictRetries = 3

type accountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByKey(ctx context.Context, key string) (*domain.Account, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Account, error)
	Upsert(ctx context.Context, tx *sql.Tx, account *domain.Account) error
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	GetForUpdateByPhone(ctx context.Context, tx *sql.Tx, phone string) (*domain.Account, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance, newVersion int64) error
}

type entryRepo interface {
	Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
	GetByReceipt(ctx context.Context, receipt string) (*domain.LedgerEntry, error)
	GetLast(ctx context.Context, accountID uuid.UUID) (*domain.LedgerEntry, error)
}

type Service struct {
	accounts     accountRepo
	entries      entryRepo
	db           *sql.DB
	storeTimeout time.Duration
}

func NewService(accounts accountRepo, entries entryRepo, db *sql.DB, storeTimeout time.Duration) *Service {
	return &Service{
		accounts:     accounts,
		entries:      entries,
		db:           db,
		storeTimeout: storeTimeout,
	}
}

// withStoreTimeout bounds a store operation so a wedged database surfaces
// a retryable error instead of hanging the caller.
func (s *Service) withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// lockAccountsInOrder takes row locks in ascending id order so two
// transfers crossing in opposite directions cannot deadlock.
func lockAccountsInOrder(ctx context.Context, tx *sql.Tx, accounts accountRepo, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	result := make(map[uuid.UUID]*domain.Account, len(ids))
	for _, id := range sorted {
		acct, err := accounts.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("lockAccountsInOrder: %w", err)
		}
		result[id] = acct
	}
	return result, nil
}
