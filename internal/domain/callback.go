package domain

// Provider result codes seen on failed payment callbacks. Anything else
// falls back to the provider's free-text description.
const (
	ResultCodeSuccess           = 0
	ResultCodeInsufficientFunds = 1
	ResultCodeCancelledByUser   = 1032
	ResultCodeWrongPIN          = 2001
	ResultCodeTimeout           = 1037
)

// CallbackEvent is the normalized form of a provider payment callback,
// produced by the transport layer after structural validation. Amount
// and Receipt are only meaningful when ResultCode is success.
type CallbackEvent struct {
	Phone      string
	Kind       EntryKind
	Amount     int64
	Receipt    string
	ResultCode int
	ResultDesc string
}

func (e CallbackEvent) Succeeded() bool {
	return e.ResultCode == ResultCodeSuccess
}
