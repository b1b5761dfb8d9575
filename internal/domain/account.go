package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultDisplayName is assigned when an account is created implicitly
// by a deposit callback, before the owner has registered a name.
const DefaultDisplayName = "Wallet Member"

// Account is a balance-holding wallet keyed by the owner's mobile-money
// phone number. Balance is whole shillings; it is only ever mutated
// together with an appended ledger entry, inside one transaction, so the
// balance always equals the signed sum of the account's entries.
type Account struct {
	ID          uuid.UUID
	Phone       string
	AliasID     *string
	DisplayName string
	Balance     int64
	Version     int64
	CreatedAt   time.Time
}
