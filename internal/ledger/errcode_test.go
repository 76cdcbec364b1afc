package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumenfin/loanledger/internal/loan"
)

func TestCodeMapsSentinelErrors(t *testing.T) {
	require.Equal(t, "error.loan.charge.refund.exceeds.paid", Code(loan.ErrRefundExceedsPaid))
	require.Equal(t, "error.loan.charge.refund.blocks.operation", Code(loan.ErrLaterChargeRefundExists))
	require.Equal(t, "error.loan.locked", Code(ErrLoanBusy))
	require.Equal(t, "error.internal", Code(errors.New("boom")))
}

func TestCodeUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("%w: charge 3", loan.ErrRefundExceedsPaid)
	require.Equal(t, "error.loan.charge.refund.exceeds.paid", Code(wrapped))
}
