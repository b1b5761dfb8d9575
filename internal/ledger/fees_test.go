package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeeFor(t *testing.T) {
	tests := []struct {
		amount int64
		want   int64
	}{
		{1, 0},
		{100, 0},
		{101, 7},
		{500, 7},
		{501, 13},
		{1000, 13},
		{1001, 23},
		{50_000, 23},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, FeeFor(tc.amount), "amount %d", tc.amount)
	}
}
