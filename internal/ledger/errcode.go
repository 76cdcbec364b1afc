package ledger

import (
	"errors"

	"github.com/lumenfin/loanledger/internal/loan"
)

// Code maps an engine error to its stable machine-readable code. Validation
// errors surface verbatim to callers; anything unmapped is internal.
func Code(err error) string {
	switch {
	case errors.Is(err, loan.ErrNegativeAmount):
		return "error.loan.amount.negative"
	case errors.Is(err, loan.ErrFutureDated):
		return "error.loan.transaction.future.dated"
	case errors.Is(err, loan.ErrRefundExceedsPaid):
		return "error.loan.charge.refund.exceeds.paid"
	case errors.Is(err, loan.ErrRefundExceedsOverpaid):
		return "error.loan.refund.exceeds.overpaid.balance"
	case errors.Is(err, loan.ErrLaterChargeRefundExists):
		return "error.loan.charge.refund.blocks.operation"
	case errors.Is(err, loan.ErrLaterCreditRefundExists):
		return "error.loan.credit.refund.blocks.operation"
	case errors.Is(err, loan.ErrWaiveExceedsOutstanding):
		return "error.loan.waive.exceeds.outstanding"
	case errors.Is(err, loan.ErrPayExceedsOutstanding):
		return "error.loan.charge.payment.exceeds.outstanding"
	case errors.Is(err, loan.ErrAlreadyReversed):
		return "error.loan.transaction.already.reversed"
	case errors.Is(err, loan.ErrAlreadyChargedOff):
		return "error.loan.already.charged.off"
	case errors.Is(err, loan.ErrNotChargedOff):
		return "error.loan.not.charged.off"
	case errors.Is(err, loan.ErrDuplicateAccrual):
		return "error.loan.accrual.duplicate"
	case errors.Is(err, loan.ErrDuplicateExternalID):
		return "error.loan.external.id.duplicate"
	case errors.Is(err, loan.ErrChargeNotFound):
		return "error.loan.charge.not.found"
	case errors.Is(err, loan.ErrTransactionNotFound):
		return "error.loan.transaction.not.found"
	case errors.Is(err, ErrLoanBusy):
		return "error.loan.locked"
	case errors.Is(err, ErrLoanNotFound):
		return "error.loan.not.found"
	default:
		return "error.internal"
	}
}
