// Package posting derives balanced journal lines from completed loan
// transactions. It is the boundary contract for the GL collaborator: the
// engine reports (account role, direction, amount) tuples and the
// collaborator owns the actual double-entry posting.
package posting

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lumenfin/loanledger/internal/loan"
)

// AccountRole names the ledger account a line posts to; mapping roles to
// concrete GL accounts is product configuration owned by the collaborator.
type AccountRole string

const (
	RoleFundSource         AccountRole = "FUND_SOURCE"
	RoleLoanPortfolio      AccountRole = "LOAN_PORTFOLIO"
	RoleInterestReceivable AccountRole = "INTEREST_RECEIVABLE"
	RoleFeeReceivable      AccountRole = "FEE_RECEIVABLE"
	RolePenaltyReceivable  AccountRole = "PENALTY_RECEIVABLE"
	RoleInterestIncome     AccountRole = "INTEREST_INCOME"
	RoleFeeIncome          AccountRole = "FEE_INCOME"
	RolePenaltyIncome      AccountRole = "PENALTY_INCOME"
	RoleIncomeRecovery     AccountRole = "INCOME_FROM_RECOVERY"
	RoleLossesWrittenOff   AccountRole = "LOSSES_WRITTEN_OFF"
	RoleOverpayment        AccountRole = "OVERPAYMENT_LIABILITY"
)

// Direction is the side of a journal line.
type Direction string

const (
	Debit  Direction = "DEBIT"
	Credit Direction = "CREDIT"
)

// Line is one journal line of a derived posting.
type Line struct {
	Role      AccountRole
	Direction Direction
	Amount    decimal.Decimal
}

// ErrUnbalanced indicates derived debits and credits do not match; this is
// an engine invariant violation, never a user error.
var ErrUnbalanced = errors.New("posting: journal lines must balance")

type builder struct {
	lines []Line
}

func (b *builder) add(role AccountRole, dir Direction, amount decimal.Decimal) {
	if amount.IsPositive() {
		b.lines = append(b.lines, Line{Role: role, Direction: dir, Amount: amount})
	}
}

func (b *builder) balanced() ([]Line, error) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range b.lines {
		if l.Direction == Debit {
			debit = debit.Add(l.Amount)
		} else {
			credit = credit.Add(l.Amount)
		}
	}
	if !debit.Equal(credit) {
		return nil, fmt.Errorf("%w: debit %s credit %s", ErrUnbalanced, debit, credit)
	}
	return b.lines, nil
}

// Derive produces the journal lines for one transaction under the loan's
// accounting mode. Reversed transactions and mode NONE yield no lines.
func Derive(tx *loan.Transaction, mode loan.AccountingMode) ([]Line, error) {
	if tx == nil || tx.Reversed || mode == loan.AccountingNone {
		return nil, nil
	}
	accrual := mode == loan.AccountingAccrualPeriodic
	b := &builder{}
	switch {
	case tx.Type == loan.TypeDisbursement:
		b.add(RoleLoanPortfolio, Debit, tx.Amount)
		b.add(RoleFundSource, Credit, tx.Amount)

	case tx.Recovery:
		b.add(RoleFundSource, Debit, tx.Amount)
		b.add(RoleIncomeRecovery, Credit, tx.Amount)

	case tx.Type == loan.TypeAccrual:
		if !accrual {
			return nil, nil
		}
		b.add(RoleInterestReceivable, Debit, tx.Breakdown.Interest)
		b.add(RoleInterestIncome, Credit, tx.Breakdown.Interest)

	case tx.Type == loan.TypeChargeOff:
		b.add(RoleLossesWrittenOff, Debit, tx.Amount)
		b.add(RoleLoanPortfolio, Credit, tx.Breakdown.Principal)
		b.add(RoleInterestReceivable, Credit, tx.Breakdown.Interest)
		b.add(RoleFeeReceivable, Credit, tx.Breakdown.Fee)
		b.add(RolePenaltyReceivable, Credit, tx.Breakdown.Penalty)

	case tx.Type.CreditRefund():
		b.add(RoleOverpayment, Debit, tx.Amount)
		b.add(RoleFundSource, Credit, tx.Amount)

	case tx.Type == loan.TypeChargeAdjustment:
		b.add(RoleFeeReceivable, Debit, tx.Breakdown.Fee)
		b.add(RolePenaltyReceivable, Debit, tx.Breakdown.Penalty)
		b.add(RoleFundSource, Credit, tx.Amount)

	case tx.Type == loan.TypeWaiver:
		b.add(RoleInterestIncome, Debit, tx.Breakdown.Interest)
		b.add(RoleFeeIncome, Debit, tx.Breakdown.Fee)
		b.add(RolePenaltyIncome, Debit, tx.Breakdown.Penalty)
		b.add(RoleInterestReceivable, Credit, tx.Breakdown.Interest)
		b.add(RoleFeeReceivable, Credit, tx.Breakdown.Fee)
		b.add(RolePenaltyReceivable, Credit, tx.Breakdown.Penalty)

	case tx.Type.Monetary():
		b.add(RoleFundSource, Debit, tx.Amount)
		b.add(RoleLoanPortfolio, Credit, tx.Breakdown.Principal)
		if accrual {
			b.add(RoleInterestReceivable, Credit, tx.Breakdown.Interest)
			b.add(RoleFeeReceivable, Credit, tx.Breakdown.Fee)
			b.add(RolePenaltyReceivable, Credit, tx.Breakdown.Penalty)
		} else {
			b.add(RoleInterestIncome, Credit, tx.Breakdown.Interest)
			b.add(RoleFeeIncome, Credit, tx.Breakdown.Fee)
			b.add(RolePenaltyIncome, Credit, tx.Breakdown.Penalty)
		}
		b.add(RoleOverpayment, Credit, tx.OverpaymentPortion)

	default:
		return nil, nil
	}
	return b.balanced()
}
