package ledger

// FeeFor returns the tariff charged on top of a peer-to-peer transfer.
// Tiers are inclusive at the upper bound: a 500-shilling transfer pays 7,
// a 501-shilling transfer pays 13.
func FeeFor(amount int64) int64 {
	switch {
	case amount <= 100:
		return 0
	case amount <= 500:
		return 7
	case amount <= 1000:
		return 13
	default:
		return 23
	}
}
