package ledger

import (
	"time"

	"github.com/lumenfin/loanledger/internal/loan"
)

// ChargeOff writes off the loan's outstanding receivable as of the given
// date. Installment due amounts are untouched; the synthetic transaction
// captures the written-off breakdown and the account flag reclassifies
// every subsequent recovery-eligible payment.
func (s *Service) ChargeOff(acc *loan.Account, reasonID int64, date time.Time) (*loan.Transaction, error) {
	if acc.ChargedOff {
		return nil, loan.ErrAlreadyChargedOff
	}
	rid := reasonID
	return s.apply(acc, &loan.Transaction{
		Type:     loan.TypeChargeOff,
		Date:     date,
		ReasonID: &rid,
	})
}

// UndoChargeOff reverses the standing charge-off transaction, marking it
// manually reversed, and clears the charged-off flag via replay. The same
// later-charge-refund barrier as any reversal applies.
func (s *Service) UndoChargeOff(acc *loan.Account) error {
	if !acc.ChargedOff {
		return loan.ErrNotChargedOff
	}
	var latest *loan.Transaction
	for _, tx := range acc.Transactions {
		if tx.Type == loan.TypeChargeOff && !tx.Reversed {
			latest = tx
		}
	}
	if latest == nil {
		return loan.ErrNotChargedOff
	}
	return s.reverse(acc, latest.ID, true)
}
