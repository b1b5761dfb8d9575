package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pesahub/gateway/internal/domain"
)

func SeedAccount(t *testing.T, db *sql.DB, phone string, balance int64) *domain.Account {
	t.Helper()

	acct := &domain.Account{
		ID:          uuid.New(),
		Phone:       phone,
		DisplayName: domain.DefaultDisplayName,
		Balance:     balance,
		Version:     1,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO accounts (id, phone, alias_id, display_name, balance, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		acct.ID, acct.Phone, acct.AliasID, acct.DisplayName, acct.Balance, acct.Version, acct.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed account %s: %v", phone, err)
	}
	return acct
}

func SeedAccountWithAlias(t *testing.T, db *sql.DB, phone, alias string, balance int64) *domain.Account {
	t.Helper()

	acct := SeedAccount(t, db, phone, balance)
	if _, err := db.Exec(`UPDATE accounts SET alias_id = $1 WHERE id = $2`, alias, acct.ID); err != nil {
		t.Fatalf("set alias for %s: %v", phone, err)
	}
	acct.AliasID = &alias
	return acct
}

func GetBalance(t *testing.T, db *sql.DB, phone string) int64 {
	t.Helper()

	var balance int64
	if err := db.QueryRow(`SELECT balance FROM accounts WHERE phone = $1`, phone).Scan(&balance); err != nil {
		t.Fatalf("get balance for %s: %v", phone, err)
	}
	return balance
}

func CountEntries(t *testing.T, db *sql.DB, phone string) int {
	t.Helper()

	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM ledger_entries e
		 JOIN accounts a ON a.id = e.account_id
		 WHERE a.phone = $1`, phone,
	).Scan(&n)
	if err != nil {
		t.Fatalf("count entries for %s: %v", phone, err)
	}
	return n
}

// SumBalances totals every account balance, for conservation checks.
func SumBalances(t *testing.T, db *sql.DB) int64 {
	t.Helper()

	var sum int64
	if err := db.QueryRow(`SELECT COALESCE(SUM(balance), 0) FROM accounts`).Scan(&sum); err != nil {
		t.Fatalf("sum balances: %v", err)
	}
	return sum
}

// BackdateLastEntry pushes an account's newest ledger entry into the
// past, for freshness-window tests.
func BackdateLastEntry(t *testing.T, db *sql.DB, phone string, age time.Duration) {
	t.Helper()

	_, err := db.Exec(
		`UPDATE ledger_entries SET created_at = now() - ($1 * interval '1 second')
		 WHERE id = (
		   SELECT e.id FROM ledger_entries e
		   JOIN accounts a ON a.id = e.account_id
		   WHERE a.phone = $2
		   ORDER BY e.created_at DESC, e.id DESC LIMIT 1
		 )`,
		int64(age.Seconds()), phone,
	)
	if err != nil {
		t.Fatalf("backdate last entry for %s: %v", phone, err)
	}
}
