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

type TransferResult struct {
	Fee          int64
	NewBalance   int64
	Reference    string
	ReceiverName string
}

// Transfer moves funds between two wallets atomically. The sender is
// debited amount plus the tiered fee, the receiver is credited the
// amount, and both legs carry the same internal reference. Either both
// entries land and both balances move, or nothing does.
//
// Senders must already exist: a debit from an unknown account is always
// an error. Receivers are resolved by phone or alias but are not created
// here either; only the callback path creates accounts implicitly.
func (s *Service) Transfer(ctx context.Context, senderKey, receiverKey string, amount int64) (*TransferResult, error) {
	log := logging.FromContext(ctx)

	if amount <= 0 {
		return nil, fmt.Errorf("Transfer: %w", domain.ErrInvalidAmount)
	}

	fee := FeeFor(amount)
	total := amount + fee

	var lastErr error
	for range maxConflictRetries {
		res, err := s.executeTransfer(ctx, senderKey, receiverKey, amount, fee, total)
		if err == nil {
			log.Info("transfer completed",
				"sender", senderKey,
				"receiver", receiverKey,
				"amount", amount,
				"fee", fee,
				"reference", res.Reference,
			)
			return res, nil
		}
		if errors.Is(err, domain.ErrVersionConflict) {
			lastErr = err
			continue
		}
		return nil, fmt.Errorf("Transfer: %w", err)
	}

	return nil, fmt.Errorf("Transfer: %w: %w", domain.ErrConflict, lastErr)
}

func (s *Service) executeTransfer(ctx context.Context, senderKey, receiverKey string, amount, fee, total int64) (*TransferResult, error) {
	sctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	sender, err := s.accounts.GetByPhone(sctx, senderKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("executeTransfer: %w", domain.ErrSenderNotFound)
		}
		return nil, fmt.Errorf("executeTransfer: %w", err)
	}

	receiver, err := s.accounts.GetByKey(sctx, receiverKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("executeTransfer: %w", domain.ErrReceiverNotFound)
		}
		return nil, fmt.Errorf("executeTransfer: %w", err)
	}

	if sender.ID == receiver.ID {
		return nil, fmt.Errorf("executeTransfer: %w", domain.ErrSelfTransfer)
	}

	tx, err := s.db.BeginTx(sctx, nil)
	if err != nil {
		return nil, fmt.Errorf("executeTransfer: begin tx: %w", err)
	}
	defer tx.Rollback()

	locked, err := lockAccountsInOrder(sctx, tx, s.accounts, sender.ID, receiver.ID)
	if err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", err)
	}
	sender, receiver = locked[sender.ID], locked[receiver.ID]

	// Checked under the row lock: a concurrent transfer from the same
	// sender cannot pass this against a stale balance.
	if sender.Balance < total {
		return nil, fmt.Errorf("executeTransfer: %w", &domain.InsufficientFundsError{
			Required: total,
			Fee:      fee,
			Balance:  sender.Balance,
		})
	}

	now := time.Now().UTC()
	ref := domain.NewInternalRef()

	debit := &domain.LedgerEntry{
		ID:           uuid.New(),
		AccountID:    sender.ID,
		Kind:         domain.EntryKindSent,
		Amount:       total,
		InternalRef:  ref,
		Counterparty: &receiver.Phone,
		CreatedAt:    now,
	}
	if err := s.entries.Create(sctx, tx, debit); err != nil {
		return nil, fmt.Errorf("executeTransfer: debit entry: %w", err)
	}

	credit := &domain.LedgerEntry{
		ID:           uuid.New(),
		AccountID:    receiver.ID,
		Kind:         domain.EntryKindReceived,
		Amount:       amount,
		InternalRef:  ref,
		Counterparty: &sender.Phone,
		CreatedAt:    now,
	}
	if err := s.entries.Create(sctx, tx, credit); err != nil {
		return nil, fmt.Errorf("executeTransfer: credit entry: %w", err)
	}

	if err := s.accounts.UpdateBalance(sctx, tx, sender.ID, sender.Balance-total, sender.Version+1); err != nil {
		return nil, fmt.Errorf("executeTransfer: debit sender: %w", err)
	}
	if err := s.accounts.UpdateBalance(sctx, tx, receiver.ID, receiver.Balance+amount, receiver.Version+1); err != nil {
		return nil, fmt.Errorf("executeTransfer: credit receiver: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("executeTransfer: commit: %w", err)
	}

	return &TransferResult{
		Fee:          fee,
		NewBalance:   sender.Balance - total,
		Reference:    ref,
		ReceiverName: receiver.DisplayName,
	}, nil
}

// VerifyFunds is the pre-flight check for withdrawal initiation: the
// account must exist and hold at least the requested amount before we
// ask the provider to pay out.
func (s *Service) VerifyFunds(ctx context.Context, phone string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("VerifyFunds: %w", domain.ErrInvalidAmount)
	}

	sctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	acct, err := s.accounts.GetByPhone(sctx, phone)
	if err != nil {
		return fmt.Errorf("VerifyFunds: %w", err)
	}
	if acct.Balance < amount {
		return fmt.Errorf("VerifyFunds: %w", &domain.InsufficientFundsError{
			Required: amount,
			Balance:  acct.Balance,
		})
	}
	return nil
}
