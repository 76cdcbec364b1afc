package ledger

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lumenfin/loanledger/internal/loan"
)

// replay re-derives the ledger from scratch: reset every payment-side
// effect, then reapply all unreversed transactions in chronological order
// (creation sequence breaks date ties) through the same compute/commit path
// used for brand-new events. Transactions whose outcome changes are
// superseded by new records linked via a REPLAYED relation; unchanged ones
// are kept as-is. Running replay twice from the same state is a no-op.
//
// fresh marks transactions being applied for the first time; they are
// stamped in place instead of compared against a prior outcome.
func (s *Service) replay(acc *loan.Account, fresh ...*loan.Transaction) error {
	freshSet := make(map[uuid.UUID]bool, len(fresh))
	for _, tx := range fresh {
		freshSet[tx.ID] = true
	}
	s.resetLedgerEffects(acc)
	worklist := activeInOrder(acc)
	for _, orig := range worklist {
		eff, err := s.compute(acc, orig)
		if err != nil {
			return err
		}
		if freshSet[orig.ID] || eff.matches(orig) {
			if err := s.commit(acc, orig, eff); err != nil {
				return err
			}
			continue
		}
		// The replacement takes the original's position in the ledger:
		// it inherits the creation sequence so the date/seq ordering of
		// later replays is identical, and only the identity is new.
		replacement := &loan.Transaction{
			ID:         uuid.New(),
			Seq:        orig.Seq,
			ExternalID: orig.ExternalID,
			Type:       orig.Type,
			Date:       orig.Date,
			Amount:     orig.Amount,
			ChargeID:   orig.ChargeID,
			TargetSeq:  orig.TargetSeq,
			ReasonID:   orig.ReasonID,
		}
		if err := s.commit(acc, replacement, eff); err != nil {
			return err
		}
		orig.Reversed = true
		orig.Relations = append(orig.Relations, loan.TransactionRelation{
			ToTransactionID: replacement.ID,
			Kind:            loan.RelationReplayed,
		})
		acc.Transactions = append(acc.Transactions, replacement)
	}
	return nil
}

// resetLedgerEffects zeroes everything transactions have done to the
// schedule and charges. Due amounts stay; they are inputs, not effects.
func (s *Service) resetLedgerEffects(acc *loan.Account) {
	for _, ins := range acc.Installments {
		ins.Paid = loan.Amounts{}
		ins.Waived = loan.Amounts{}
	}
	for _, ch := range acc.Charges {
		ch.AmountPaid = decimal.Zero
		ch.AmountWaived = decimal.Zero
		ch.PaidBy = nil
	}
	acc.ChargedOff = false
	acc.ChargeOffReasonID = nil
	acc.ChargeOffDate = nil
}

// activeInOrder returns unreversed transactions ordered by date with the
// monotonic creation sequence as tie-break.
func activeInOrder(acc *loan.Account) []*loan.Transaction {
	out := make([]*loan.Transaction, 0, len(acc.Transactions))
	for _, tx := range acc.Transactions {
		if !tx.Reversed {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}
