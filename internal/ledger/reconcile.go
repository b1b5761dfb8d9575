package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pesahub/gateway/internal/domain"
	"github.com/pesahub/gateway/internal/logging"
)

// ReconcileResult is what the transport layer needs after a callback has
// been handled: whether the ledger changed, the balance after the fact,
// and the text to push to the user's chat. Notification is empty on a
// replayed callback so the user is not messaged twice.
type ReconcileResult struct {
	LedgerUpdated bool
	NewBalance    int64
	Notification  string
}

// ReconcileCallback applies a provider payment callback to the ledger
// with exactly-once effect. Failed callbacks never touch the ledger and
// only yield a human-readable failure text. Successful callbacks are
// deduplicated on the provider receipt: replays return the prior
// balance without a second entry.
func (s *Service) ReconcileCallback(ctx context.Context, event domain.CallbackEvent) (*ReconcileResult, error) {
	log := logging.FromContext(ctx)

	if !event.Succeeded() {
		log.Info("provider declined payment",
			"phone", event.Phone,
			"result_code", event.ResultCode,
			"result_desc", event.ResultDesc,
		)
		return &ReconcileResult{Notification: failureMessage(event.ResultCode, event.ResultDesc)}, nil
	}

	if event.Amount <= 0 {
		return nil, fmt.Errorf("ReconcileCallback: %w", domain.ErrInvalidAmount)
	}
	if event.Receipt == "" {
		return nil, fmt.Errorf("ReconcileCallback: missing receipt: %w", domain.ErrValidation)
	}

	// The provider has already moved the money. An accepted mutation must
	// run to completion even if the inbound connection goes away.
	ctx = context.WithoutCancel(ctx)

	prior, err := s.priorApplication(ctx, event.Receipt)
	if err != nil {
		return nil, fmt.Errorf("ReconcileCallback: %w", err)
	}
	if prior != nil {
		log.Info("duplicate callback skipped", "receipt", event.Receipt, "phone", event.Phone)
		return prior, nil
	}

	for range maxConflictRetries {
		res, err := s.applyCallback(ctx, event)
		if err == nil {
			log.Info("callback applied",
				"phone", event.Phone,
				"kind", event.Kind,
				"amount", event.Amount,
				"receipt", event.Receipt,
				"new_balance", res.NewBalance,
			)
			return res, nil
		}

		// Lost the insert race against a concurrent delivery of the same
		// receipt: the other one applied, so report its result.
		if errors.Is(err, domain.ErrDuplicateReceipt) {
			prior, perr := s.priorApplication(ctx, event.Receipt)
			if perr != nil {
				return nil, fmt.Errorf("ReconcileCallback: %w", perr)
			}
			if prior != nil {
				log.Info("duplicate callback skipped (race)", "receipt", event.Receipt)
				return prior, nil
			}
			return nil, fmt.Errorf("ReconcileCallback: %w", domain.ErrConflict)
		}

		if errors.Is(err, domain.ErrVersionConflict) {
			continue
		}
		return nil, fmt.Errorf("ReconcileCallback: %w", err)
	}

	return nil, fmt.Errorf("ReconcileCallback: %w", domain.ErrConflict)
}

// priorApplication reports the result of an earlier application of the
// receipt, or nil if the receipt is unseen.
func (s *Service) priorApplication(ctx context.Context, receipt string) (*ReconcileResult, error) {
	sctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	entry, err := s.entries.GetByReceipt(sctx, receipt)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("priorApplication: %w", err)
	}

	acct, err := s.accounts.GetByID(sctx, entry.AccountID)
	if err != nil {
		return nil, fmt.Errorf("priorApplication: %w", err)
	}

	return &ReconcileResult{NewBalance: acct.Balance}, nil
}

func (s *Service) applyCallback(ctx context.Context, event domain.CallbackEvent) (*ReconcileResult, error) {
	sctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(sctx, nil)
	if err != nil {
		return nil, fmt.Errorf("applyCallback: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	// Deposits from unknown payers create the account on first touch.
	fresh := &domain.Account{
		ID:          uuid.New(),
		Phone:       event.Phone,
		DisplayName: domain.DefaultDisplayName,
		Version:     1,
		CreatedAt:   now,
	}
	if err := s.accounts.Upsert(sctx, tx, fresh); err != nil {
		return nil, fmt.Errorf("applyCallback: %w", err)
	}

	acct, err := s.accounts.GetForUpdateByPhone(sctx, tx, event.Phone)
	if err != nil {
		return nil, fmt.Errorf("applyCallback: %w", err)
	}

	receipt := event.Receipt
	entry := &domain.LedgerEntry{
		ID:          uuid.New(),
		AccountID:   acct.ID,
		Kind:        event.Kind,
		Amount:      event.Amount,
		Receipt:     &receipt,
		InternalRef: domain.NewInternalRef(),
		CreatedAt:   now,
	}
	if err := s.entries.Create(sctx, tx, entry); err != nil {
		return nil, fmt.Errorf("applyCallback: %w", err)
	}

	newBalance := acct.Balance + event.Kind.Sign()*event.Amount
	if err := s.accounts.UpdateBalance(sctx, tx, acct.ID, newBalance, acct.Version+1); err != nil {
		return nil, fmt.Errorf("applyCallback: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("applyCallback: commit: %w", err)
	}

	notification := depositMessage(event.Amount, event.Receipt)
	if event.Kind == domain.EntryKindWithdraw {
		notification = withdrawalMessage(event.Amount, event.Receipt)
	}

	return &ReconcileResult{
		LedgerUpdated: true,
		NewBalance:    newBalance,
		Notification:  notification,
	}, nil
}
