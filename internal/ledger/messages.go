package ledger

import (
	"fmt"

	"github.com/pesahub/gateway/internal/domain"
)

// Human text for the provider failure codes we know. Unknown codes fall
// back to the provider's own description.
var failureTexts = map[int]string{
	domain.ResultCodeInsufficientFunds: "Insufficient funds in your mobile-money account.",
	domain.ResultCodeCancelledByUser:   "Transaction cancelled by user.",
	domain.ResultCodeWrongPIN:          "The PIN entered was incorrect.",
	domain.ResultCodeTimeout:           "Request timed out. You took too long.",
}

func failureText(code int, providerDesc string) string {
	if text, ok := failureTexts[code]; ok {
		return text
	}
	if providerDesc != "" {
		return providerDesc
	}
	return "Payment failed."
}

func failureMessage(code int, providerDesc string) string {
	return fmt.Sprintf("PAYMENT FAILED\nReason: %s\nPlease try again.", failureText(code, providerDesc))
}

func depositMessage(amount int64, receipt string) string {
	return fmt.Sprintf("DEPOSIT CONFIRMED\nAmount: KES %d\nRef: %s\nYour wallet balance has been updated.", amount, receipt)
}

func withdrawalMessage(amount int64, receipt string) string {
	return fmt.Sprintf("WITHDRAWAL SENT\nAmount: KES %d\nRef: %s\nYour wallet balance has been updated.", amount, receipt)
}
