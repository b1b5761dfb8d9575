package domain

import (
	"time"

	"github.com/google/uuid"
)

type EntryKind string

const (
	EntryKindDeposit  EntryKind = "DEPOSIT"
	EntryKindWithdraw EntryKind = "WITHDRAW"
	EntryKindSent     EntryKind = "SENT"
	EntryKindReceived EntryKind = "RECEIVED"
)

// Sign returns the direction the entry moves the balance in.
func (k EntryKind) Sign() int64 {
	switch k {
	case EntryKindDeposit, EntryKindReceived:
		return 1
	case EntryKindWithdraw, EntryKindSent:
		return -1
	default:
		return 0
	}
}

// LedgerEntry is an immutable record of one balance-affecting event.
// Amount is a positive magnitude; the kind implies its sign. Receipt is
// the provider's proof-of-transaction number and is unique system-wide
// when present. InternalRef is the user-facing correlation token; both
// legs of a transfer share one.
type LedgerEntry struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	Kind         EntryKind
	Amount       int64
	Receipt      *string
	InternalRef  string
	Counterparty *string
	CreatedAt    time.Time
}

// NewInternalRef generates a correlation token for user-facing messages.
// 128-bit random, so no store-level uniqueness race to worry about.
func NewInternalRef() string {
	return "TXN-" + uuid.NewString()
}
