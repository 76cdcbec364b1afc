package loan

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// TermParams describes the shape of a generated schedule. Interest, fee and
// penalty dues are inputs produced by an upstream schedule generator; the
// model only lays them out per period.
type TermParams struct {
	Start           time.Time
	Installments    int
	EveryMonths     int
	InterestPerTerm decimal.Decimal
}

// Generate builds the initial installment array for a principal, splitting it
// evenly across the term with the rounding remainder on the last period.
func Generate(principal decimal.Decimal, p TermParams) []*Installment {
	if p.Installments <= 0 {
		return nil
	}
	if p.EveryMonths <= 0 {
		p.EveryMonths = 1
	}
	per := principal.Div(decimal.NewFromInt(int64(p.Installments))).RoundDown(2)
	out := make([]*Installment, 0, p.Installments)
	allocated := decimal.Zero
	from := p.Start
	for i := 1; i <= p.Installments; i++ {
		due := from.AddDate(0, p.EveryMonths, 0)
		amount := per
		if i == p.Installments {
			amount = principal.Sub(allocated)
		}
		allocated = allocated.Add(amount)
		out = append(out, &Installment{
			Seq:      i,
			FromDate: from,
			DueDate:  due,
			Kind:     InstallmentRegular,
			Due:      Amounts{Principal: amount, Interest: p.InterestPerTerm},
		})
		from = due
	}
	return out
}

// InsertDownPayment inserts a down-payment installment for a disbursement.
// The down-payment amount is percentage of the disbursed amount, due on the
// disbursement date. When an installment with the same due date already
// exists, the new period is inserted immediately after it, never merged.
func (a *Account) InsertDownPayment(disbursed, percentage decimal.Decimal, date time.Time) *Installment {
	amount := disbursed.Mul(percentage).Div(decimal.NewFromInt(100)).Round(2)
	ins := &Installment{
		FromDate: date,
		DueDate:  date,
		Kind:     InstallmentDownPayment,
		Due:      Amounts{Principal: amount},
	}
	a.insertInstallment(ins)
	return ins
}

// InsertTranche inserts a regular installment carrying an additional
// disbursement's principal due on the given date, subject to the same
// overlapping-installment rule as down payments.
func (a *Account) InsertTranche(amount decimal.Decimal, dueDate time.Time) *Installment {
	ins := &Installment{
		FromDate: dueDate,
		DueDate:  dueDate,
		Kind:     InstallmentRegular,
		Due:      Amounts{Principal: amount},
	}
	a.insertInstallment(ins)
	return ins
}

// insertInstallment places the new period after every pre-existing
// installment whose due date is on or before the new one, then resequences.
// Charges keep their installment assignment by following the resequencing.
func (a *Account) insertInstallment(ins *Installment) {
	pos := len(a.Installments)
	for i, existing := range a.Installments {
		if existing.DueDate.After(ins.DueDate) {
			pos = i
			break
		}
	}
	a.Installments = append(a.Installments, nil)
	copy(a.Installments[pos+1:], a.Installments[pos:])
	a.Installments[pos] = ins
	a.resequence(pos)
}

// resequence renumbers installments 1..n. Charges referencing shifted
// sequences are moved along with their installment.
func (a *Account) resequence(insertedAt int) {
	oldSeqAt := make(map[int]int, len(a.Installments))
	for idx, ins := range a.Installments {
		if idx == insertedAt {
			continue
		}
		oldSeqAt[ins.Seq] = idx + 1
	}
	for _, ch := range a.Charges {
		if newSeq, ok := oldSeqAt[ch.InstallmentSeq]; ok {
			ch.InstallmentSeq = newSeq
		}
	}
	for idx, ins := range a.Installments {
		ins.Seq = idx + 1
	}
}

// OrderedInstallments returns installments in allocation order: due date
// ascending, with creation (sequence) order as the tie-break. Under
// horizontal interleaving that tie-break is authoritative; under vertical
// interleaving callers treat same-date runs as one pool.
func (a *Account) OrderedInstallments() []*Installment {
	out := make([]*Installment, len(a.Installments))
	copy(out, a.Installments)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out
}

// AssignChargeInstallment resolves the installment a charge belongs to: the
// explicit sequence when given, otherwise the first installment whose period
// covers the charge due date, otherwise the last installment.
func (a *Account) AssignChargeInstallment(ch *Charge) int {
	if ch.InstallmentSeq > 0 {
		return ch.InstallmentSeq
	}
	for _, ins := range a.OrderedInstallments() {
		if !ch.DueDate.After(ins.DueDate) {
			return ins.Seq
		}
	}
	if n := len(a.Installments); n > 0 {
		return a.Installments[n-1].Seq
	}
	return 0
}
