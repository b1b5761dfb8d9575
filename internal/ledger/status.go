package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pesahub/gateway/internal/domain"
)

type Status struct {
	Balance   int64
	LastEntry domain.LedgerEntry
	IsRecent  bool
}

// QueryStatus answers "did a payment happen for this account recently?"
// for polling clients without push notifications. An account with no
// history reports NotFound, same as an unknown account.
func (s *Service) QueryStatus(ctx context.Context, key string) (*Status, error) {
	sctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	acct, err := s.accounts.GetByKey(sctx, key)
	if err != nil {
		return nil, fmt.Errorf("QueryStatus: %w", err)
	}

	last, err := s.entries.GetLast(sctx, acct.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("QueryStatus: no history: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("QueryStatus: %w", err)
	}

	return &Status{
		Balance:   acct.Balance,
		LastEntry: *last,
		IsRecent:  time.Since(last.CreatedAt) < freshnessWindow,
	}, nil
}
