package allocation

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumenfin/loanledger/internal/loan"
)

// ErrInsufficientInput indicates malformed input such as a negative amount.
// Excess amounts are never an error; they become the overpayment portion.
var ErrInsufficientInput = errors.New("allocation: amount must not be negative")

// Input carries everything the engine needs for one distribution. The engine
// never mutates the installments or charges; callers apply the result.
type Input struct {
	Amount       decimal.Decimal
	AsOf         time.Time
	Installments []*loan.Installment
	Charges      []*loan.Charge
	Interleaving loan.Interleaving
	Strategy     Strategy
	Type         loan.TransactionType
}

// InstallmentPayment is the slice of an allocation landing on one installment.
type InstallmentPayment struct {
	Seq     int
	Amounts loan.Amounts
}

// ChargePayment is the slice of an allocation landing on one charge.
type ChargePayment struct {
	ChargeID int64
	Amount   decimal.Decimal
}

// Result is the full distribution of one incoming amount.
type Result struct {
	PerInstallment     []InstallmentPayment
	PerCharge          []ChargePayment
	Breakdown          loan.Amounts
	OverpaymentPortion decimal.Decimal
}

type allocator struct {
	in         Input
	paid       map[int]*loan.Amounts
	chargePaid map[int64]decimal.Decimal
	remaining  decimal.Decimal
}

// Allocate distributes an incoming amount across installment components and
// charges according to the configured strategy.
func Allocate(in Input) (Result, error) {
	if in.Amount.IsNegative() {
		return Result{}, ErrInsufficientInput
	}
	a := &allocator{
		in:         in,
		paid:       make(map[int]*loan.Amounts),
		chargePaid: make(map[int64]decimal.Decimal),
		remaining:  in.Amount,
	}
	switch in.Strategy.Kind {
	case KindTiered:
		a.runTiered()
	default:
		a.runPerPeriod()
	}
	return a.result(), nil
}

func (a *allocator) runPerPeriod() {
	order := a.in.Strategy.ComponentOrder
	if len(order) == 0 {
		order = DefaultPerPeriod().ComponentOrder
	}
	if a.in.Interleaving == loan.InterleavingVertical {
		for _, group := range a.dueDateGroups() {
			for _, c := range order {
				for _, ins := range group {
					a.pay(ins, c, a.remaining)
				}
			}
		}
		return
	}
	for _, ins := range a.in.Installments {
		for _, c := range order {
			a.pay(ins, c, a.remaining)
		}
	}
}

func (a *allocator) runTiered() {
	for _, tier := range a.in.Strategy.Tiers {
		for _, ins := range a.in.Installments {
			if a.timing(ins) != tier.Timing {
				continue
			}
			a.pay(ins, tier.Component, a.remaining)
		}
	}
	if a.remaining.IsPositive() {
		a.applyFutureRule()
	}
}

// applyFutureRule sends a post-tier remainder to not-yet-due installments.
func (a *allocator) applyFutureRule() {
	var future []*loan.Installment
	for _, ins := range a.in.Installments {
		if a.timing(ins) == TimingInAdvance {
			future = append(future, ins)
		}
	}
	if len(future) == 0 {
		return
	}
	switch a.in.Strategy.FutureRule {
	case FutureReamortize:
		a.reamortize(future)
	default:
		// Next-installment: the immediately following period takes the
		// remainder into principal, potentially fully prepaying it.
		a.pay(future[0], loan.ComponentPrincipal, a.remaining)
	}
}

// reamortize spreads the remainder pro-rata over the outstanding principal
// of all not-yet-due installments, rounding remainder onto the last one.
func (a *allocator) reamortize(future []*loan.Installment) {
	totalPrincipal := decimal.Zero
	for _, ins := range future {
		totalPrincipal = totalPrincipal.Add(a.left(ins, loan.ComponentPrincipal))
	}
	if !totalPrincipal.IsPositive() {
		return
	}
	pool := decimal.Min(a.remaining, totalPrincipal)
	spread := decimal.Zero
	for i, ins := range future {
		share := pool.Sub(spread)
		if i < len(future)-1 {
			share = pool.Mul(a.left(ins, loan.ComponentPrincipal)).Div(totalPrincipal).RoundDown(2)
		}
		spread = spread.Add(a.pay(ins, loan.ComponentPrincipal, share))
	}
}

// pay applies up to amount against one installment component, capped at the
// component's remaining outstanding, and fans fee and penalty portions out
// to the installment's charges in creation order.
func (a *allocator) pay(ins *loan.Installment, c loan.Component, amount decimal.Decimal) decimal.Decimal {
	applied := decimal.Min(amount, decimal.Min(a.remaining, a.left(ins, c)))
	if !applied.IsPositive() {
		return decimal.Zero
	}
	entry, ok := a.paid[ins.Seq]
	if !ok {
		entry = &loan.Amounts{}
		a.paid[ins.Seq] = entry
	}
	entry.Add(c, applied)
	a.remaining = a.remaining.Sub(applied)
	if c == loan.ComponentFee || c == loan.ComponentPenalty {
		a.payCharges(ins.Seq, c, applied)
	}
	return applied
}

// payCharges attributes a fee or penalty portion to the charges due in the
// installment, in charge creation order, capped at each outstanding.
func (a *allocator) payCharges(seq int, c loan.Component, amount decimal.Decimal) {
	for _, ch := range a.in.Charges {
		if !amount.IsPositive() {
			return
		}
		if ch.InstallmentSeq != seq || ch.Kind.Component() != c {
			continue
		}
		left := ch.Outstanding().Sub(a.chargePaid[ch.ID])
		applied := decimal.Min(amount, left)
		if applied.IsPositive() {
			a.chargePaid[ch.ID] = a.chargePaid[ch.ID].Add(applied)
			amount = amount.Sub(applied)
		}
	}
}

// left is the outstanding still unallocated within this run.
func (a *allocator) left(ins *loan.Installment, c loan.Component) decimal.Decimal {
	out := ins.Outstanding(c)
	if entry, ok := a.paid[ins.Seq]; ok {
		out = out.Sub(entry.Get(c))
	}
	return out
}

func (a *allocator) timing(ins *loan.Installment) TimingBucket {
	due := dateOnly(ins.DueDate)
	asOf := dateOnly(a.in.AsOf)
	switch {
	case due.Before(asOf):
		return TimingPastDue
	case due.Equal(asOf):
		return TimingDue
	default:
		return TimingInAdvance
	}
}

// dueDateGroups partitions the ordered installment list into runs sharing a
// due date, preserving creation order inside each run.
func (a *allocator) dueDateGroups() [][]*loan.Installment {
	var groups [][]*loan.Installment
	for _, ins := range a.in.Installments {
		n := len(groups)
		if n > 0 && dateOnly(groups[n-1][0].DueDate).Equal(dateOnly(ins.DueDate)) {
			groups[n-1] = append(groups[n-1], ins)
			continue
		}
		groups = append(groups, []*loan.Installment{ins})
	}
	return groups
}

func (a *allocator) result() Result {
	res := Result{OverpaymentPortion: a.remaining}
	for _, ins := range a.in.Installments {
		entry, ok := a.paid[ins.Seq]
		if !ok || entry.IsZero() {
			continue
		}
		res.PerInstallment = append(res.PerInstallment, InstallmentPayment{Seq: ins.Seq, Amounts: *entry})
		res.Breakdown = res.Breakdown.Plus(*entry)
	}
	ids := make([]int64, 0, len(a.chargePaid))
	for id := range a.chargePaid {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		res.PerCharge = append(res.PerCharge, ChargePayment{ChargeID: id, Amount: a.chargePaid[id]})
	}
	return res
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
