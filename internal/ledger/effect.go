package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/lumenfin/loanledger/internal/allocation"
	"github.com/lumenfin/loanledger/internal/loan"
)

// componentDelta is a planned change to one installment component.
type componentDelta struct {
	seq       int
	component loan.Component
	amount    decimal.Decimal
}

// chargeDelta is a planned change to one charge sub-ledger.
type chargeDelta struct {
	chargeID int64
	amount   decimal.Decimal
}

// effect is the fully computed, not-yet-applied outcome of one transaction.
// Computing it never touches aggregate state, so replay can compare a
// recomputed effect against the original record before deciding whether a
// new linked transaction is needed.
type effect struct {
	amount      decimal.Decimal
	breakdown   loan.Amounts
	overpayment decimal.Decimal
	recovery    bool

	pays          []componentDelta
	waives        []componentDelta
	reopens       []componentDelta
	chargePays    []chargeDelta
	chargeWaives  []chargeDelta
	chargeRefunds []chargeDelta

	chargeOff     bool
	undoChargeOff bool
}

// matches reports whether a recomputed effect reproduces the recorded
// outcome of an existing transaction.
func (e effect) matches(tx *loan.Transaction) bool {
	return e.amount.Equal(tx.Amount) &&
		e.overpayment.Equal(tx.OverpaymentPortion) &&
		e.recovery == tx.Recovery &&
		e.breakdown.Principal.Equal(tx.Breakdown.Principal) &&
		e.breakdown.Interest.Equal(tx.Breakdown.Interest) &&
		e.breakdown.Fee.Equal(tx.Breakdown.Fee) &&
		e.breakdown.Penalty.Equal(tx.Breakdown.Penalty)
}

// compute derives the effect of a transaction against the current aggregate
// state without mutating it.
func (s *Service) compute(acc *loan.Account, tx *loan.Transaction) (effect, error) {
	eff := effect{amount: tx.Amount}
	switch {
	case tx.Type == loan.TypeDisbursement, tx.Type == loan.TypeAccrual:
		eff.breakdown = tx.Breakdown
		return eff, nil

	case tx.Type == loan.TypeChargeOff:
		total := acc.TotalOutstanding()
		eff.breakdown = total
		eff.amount = total.Total()
		eff.chargeOff = true
		return eff, nil

	case tx.Type.CreditRefund():
		eff.overpayment = tx.Amount.Neg()
		return eff, nil

	case tx.Type == loan.TypeChargeAdjustment:
		return s.computeChargeRefund(acc, tx)

	case tx.Type == loan.TypeWaiver:
		if tx.ChargeID > 0 {
			return s.computeChargeWaive(acc, tx)
		}
		return s.computeInterestWaiver(acc, tx)

	case tx.Type.Monetary() && tx.ChargeID > 0:
		return s.computeChargePayment(acc, tx)

	case tx.Type.Monetary():
		if acc.ChargedOff && tx.Type.RecoveryEligible() {
			// The receivable is written off; the payment posts to
			// recovery income and leaves the schedule untouched.
			eff.recovery = true
			return eff, nil
		}
		return s.computeAllocation(acc, tx)
	}
	return eff, nil
}

func (s *Service) computeAllocation(acc *loan.Account, tx *loan.Transaction) (effect, error) {
	res, err := allocation.Allocate(allocation.Input{
		Amount:       tx.Amount,
		AsOf:         tx.Date,
		Installments: acc.OrderedInstallments(),
		Charges:      acc.Charges,
		Interleaving: acc.Interleaving,
		Strategy:     s.resolve(acc),
		Type:         tx.Type,
	})
	if err != nil {
		return effect{}, err
	}
	eff := effect{
		amount:      tx.Amount,
		breakdown:   res.Breakdown,
		overpayment: res.OverpaymentPortion,
	}
	for _, p := range res.PerInstallment {
		for _, c := range loan.Components {
			if v := p.Amounts.Get(c); v.IsPositive() {
				eff.pays = append(eff.pays, componentDelta{seq: p.Seq, component: c, amount: v})
			}
		}
	}
	for _, p := range res.PerCharge {
		eff.chargePays = append(eff.chargePays, chargeDelta{chargeID: p.ChargeID, amount: p.Amount})
	}
	return eff, nil
}

func (s *Service) computeChargePayment(acc *loan.Account, tx *loan.Transaction) (effect, error) {
	ch, err := acc.Charge(tx.ChargeID)
	if err != nil {
		return effect{}, err
	}
	amount := decimal.Min(tx.Amount, ch.Outstanding())
	eff := effect{amount: tx.Amount, overpayment: tx.Amount.Sub(amount)}
	eff.breakdown.Add(ch.Kind.Component(), amount)
	eff.pays = append(eff.pays, componentDelta{seq: ch.InstallmentSeq, component: ch.Kind.Component(), amount: amount})
	eff.chargePays = append(eff.chargePays, chargeDelta{chargeID: ch.ID, amount: amount})
	return eff, nil
}

func (s *Service) computeChargeWaive(acc *loan.Account, tx *loan.Transaction) (effect, error) {
	ch, err := acc.Charge(tx.ChargeID)
	if err != nil {
		return effect{}, err
	}
	amount := decimal.Min(tx.Amount, ch.Outstanding())
	eff := effect{amount: amount}
	eff.breakdown.Add(ch.Kind.Component(), amount)
	eff.waives = append(eff.waives, componentDelta{seq: ch.InstallmentSeq, component: ch.Kind.Component(), amount: amount})
	eff.chargeWaives = append(eff.chargeWaives, chargeDelta{chargeID: ch.ID, amount: amount})
	return eff, nil
}

func (s *Service) computeChargeRefund(acc *loan.Account, tx *loan.Transaction) (effect, error) {
	ch, err := acc.Charge(tx.ChargeID)
	if err != nil {
		return effect{}, err
	}
	if tx.Amount.GreaterThan(ch.AmountPaid) {
		return effect{}, loan.ErrRefundExceedsPaid
	}
	seq := tx.TargetSeq
	if seq == 0 {
		seq = ch.InstallmentSeq
	}
	eff := effect{amount: tx.Amount}
	eff.breakdown.Add(ch.Kind.Component(), tx.Amount)
	eff.reopens = append(eff.reopens, componentDelta{seq: seq, component: ch.Kind.Component(), amount: tx.Amount})
	eff.chargeRefunds = append(eff.chargeRefunds, chargeDelta{chargeID: ch.ID, amount: tx.Amount})
	return eff, nil
}

func (s *Service) computeInterestWaiver(acc *loan.Account, tx *loan.Transaction) (effect, error) {
	remaining := tx.Amount
	eff := effect{amount: tx.Amount}
	for _, ins := range acc.OrderedInstallments() {
		if !remaining.IsPositive() {
			break
		}
		portion := decimal.Min(remaining, ins.Outstanding(loan.ComponentInterest))
		if !portion.IsPositive() {
			continue
		}
		eff.waives = append(eff.waives, componentDelta{seq: ins.Seq, component: loan.ComponentInterest, amount: portion})
		eff.breakdown.Add(loan.ComponentInterest, portion)
		remaining = remaining.Sub(portion)
	}
	if remaining.IsPositive() {
		return effect{}, loan.ErrWaiveExceedsOutstanding
	}
	return eff, nil
}

// commit applies a computed effect to the aggregate, attributing charge
// journal entries to the transaction id, and stamps the outcome onto the
// transaction record.
func (s *Service) commit(acc *loan.Account, tx *loan.Transaction, eff effect) error {
	for _, d := range eff.pays {
		ins, err := acc.Installment(d.seq)
		if err != nil {
			return err
		}
		if err := ins.Pay(d.component, d.amount); err != nil {
			return err
		}
	}
	for _, d := range eff.waives {
		ins, err := acc.Installment(d.seq)
		if err != nil {
			return err
		}
		if err := ins.Waive(d.component, d.amount); err != nil {
			return err
		}
	}
	for _, d := range eff.reopens {
		ins, err := acc.Installment(d.seq)
		if err != nil {
			return err
		}
		if err := ins.Reopen(d.component, d.amount); err != nil {
			return err
		}
	}
	for _, d := range eff.chargePays {
		ch, err := acc.Charge(d.chargeID)
		if err != nil {
			return err
		}
		if err := ch.RecordPayment(tx.ID, d.amount); err != nil {
			return err
		}
	}
	for _, d := range eff.chargeWaives {
		ch, err := acc.Charge(d.chargeID)
		if err != nil {
			return err
		}
		ch.AmountWaived = ch.AmountWaived.Add(d.amount)
	}
	for _, d := range eff.chargeRefunds {
		ch, err := acc.Charge(d.chargeID)
		if err != nil {
			return err
		}
		if err := ch.RecordRefund(tx.ID, d.amount); err != nil {
			return err
		}
	}
	if eff.chargeOff {
		acc.ChargedOff = true
		acc.ChargeOffReasonID = tx.ReasonID
		d := tx.Date
		acc.ChargeOffDate = &d
	}
	tx.Amount = eff.amount
	tx.Breakdown = eff.breakdown
	tx.OverpaymentPortion = eff.overpayment
	tx.Recovery = eff.recovery
	return nil
}
