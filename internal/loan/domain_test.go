package loan

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func TestInstallmentConservation(t *testing.T) {
	ins := &Installment{
		Seq:     1,
		DueDate: date(2023, 1, 31),
		Due:     Amounts{Principal: dec(250), Interest: dec(50), Fee: dec(10)},
	}

	require.NoError(t, ins.Pay(ComponentPrincipal, dec(100)))
	require.NoError(t, ins.Waive(ComponentInterest, dec(20)))

	for _, c := range Components {
		sum := ins.Paid.Get(c).Add(ins.Waived.Get(c)).Add(ins.Outstanding(c))
		require.True(t, sum.Equal(ins.Due.Get(c)), "component %s", c)
	}
	require.True(t, ins.TotalOutstanding().Equal(dec(190)))
	require.False(t, ins.ObligationsMet())
}

func TestInstallmentPayNeverGoesNegative(t *testing.T) {
	ins := &Installment{Seq: 1, Due: Amounts{Principal: dec(100)}}

	err := ins.Pay(ComponentPrincipal, dec(101))
	require.ErrorIs(t, err, ErrComponentOverpaid)
	require.True(t, ins.Paid.IsZero())

	err = ins.Pay(ComponentPrincipal, dec(-1))
	require.ErrorIs(t, err, ErrNegativeAmount)
}

func TestInstallmentReopenBoundedByPaid(t *testing.T) {
	ins := &Installment{Seq: 1, Due: Amounts{Fee: dec(100)}}
	require.NoError(t, ins.Pay(ComponentFee, dec(60)))

	err := ins.Reopen(ComponentFee, dec(61))
	require.ErrorIs(t, err, ErrRefundExceedsPaid)

	require.NoError(t, ins.Reopen(ComponentFee, dec(60)))
	require.True(t, ins.Outstanding(ComponentFee).Equal(dec(100)))
}

func TestChargePaidByJournal(t *testing.T) {
	ch := &Charge{ID: 1, Kind: ChargeFee, Amount: dec(120)}
	payTx := uuid.New()
	refundTx := uuid.New()

	require.NoError(t, ch.RecordPayment(payTx, dec(120)))
	require.True(t, ch.Outstanding().IsZero())

	require.NoError(t, ch.RecordRefund(refundTx, dec(120)))
	require.True(t, ch.AmountPaid.IsZero())
	require.Len(t, ch.PaidBy, 2)
	require.True(t, ch.PaidBy[0].Amount.Equal(dec(120)))
	require.True(t, ch.PaidBy[1].Amount.Equal(dec(-120)))
	require.NoError(t, ch.ReconcilePaidBy())
}

func TestChargeRefundExceedsPaid(t *testing.T) {
	ch := &Charge{ID: 1, Kind: ChargeFee, Amount: dec(120)}
	require.NoError(t, ch.RecordPayment(uuid.New(), dec(50)))

	err := ch.RecordRefund(uuid.New(), dec(51))
	require.ErrorIs(t, err, ErrRefundExceedsPaid)
	require.True(t, ch.AmountPaid.Equal(dec(50)))
	require.Len(t, ch.PaidBy, 1)
}

func TestChargeReconcileRejectsRefundBeforePayment(t *testing.T) {
	ch := &Charge{
		ID:   1,
		Kind: ChargeFee,
		PaidBy: []ChargePaidByEntry{
			{TransactionID: uuid.New(), Amount: dec(-30)},
			{TransactionID: uuid.New(), Amount: dec(30)},
		},
	}
	require.ErrorIs(t, ch.ReconcilePaidBy(), ErrPaidByMismatch)
}

func TestChargeReconcileRejectsJournalMismatch(t *testing.T) {
	ch := &Charge{
		ID:         1,
		Kind:       ChargeFee,
		AmountPaid: dec(40),
		PaidBy:     []ChargePaidByEntry{{TransactionID: uuid.New(), Amount: dec(30)}},
	}
	require.ErrorIs(t, ch.ReconcilePaidBy(), ErrPaidByMismatch)
}

func TestRecomputeStatus(t *testing.T) {
	acc := &Account{
		Status:       StatusActive,
		Installments: []*Installment{{Seq: 1, Due: Amounts{Principal: dec(100)}}},
	}

	acc.RecomputeStatus()
	require.Equal(t, StatusActive, acc.Status)

	require.NoError(t, acc.Installments[0].Pay(ComponentPrincipal, dec(100)))
	acc.RecomputeStatus()
	require.Equal(t, StatusClosedObligationsMet, acc.Status)

	acc.Transactions = append(acc.Transactions, &Transaction{
		ID: uuid.New(), Type: TypeRepayment, OverpaymentPortion: dec(25),
	})
	acc.RecomputeStatus()
	require.Equal(t, StatusOverpaid, acc.Status)
}

func TestRecomputeStatusChargedOffStaysActive(t *testing.T) {
	acc := &Account{
		Status:       StatusActive,
		ChargedOff:   true,
		Installments: []*Installment{{Seq: 1, Due: Amounts{Principal: dec(100)}}},
	}
	require.NoError(t, acc.Installments[0].Pay(ComponentPrincipal, dec(100)))
	acc.RecomputeStatus()
	require.Equal(t, StatusActive, acc.Status)
}

func TestTotalOverpaidIgnoresReversed(t *testing.T) {
	acc := &Account{
		Transactions: []*Transaction{
			{ID: uuid.New(), OverpaymentPortion: dec(10)},
			{ID: uuid.New(), OverpaymentPortion: dec(5), Reversed: true},
		},
	}
	require.True(t, acc.TotalOverpaid().Equal(dec(10)))
}

func TestNextTransactionSeqResumesFromExisting(t *testing.T) {
	acc := &Account{
		Transactions: []*Transaction{{ID: uuid.New(), Seq: 7}},
	}
	require.Equal(t, int64(8), acc.NextTransactionSeq())
	require.Equal(t, int64(9), acc.NextTransactionSeq())
}

func TestCheckInvariantsFlagsNegativeOutstanding(t *testing.T) {
	acc := &Account{
		Installments: []*Installment{{
			Seq:  1,
			Due:  Amounts{Principal: dec(100)},
			Paid: Amounts{Principal: dec(150)},
		}},
	}
	require.ErrorIs(t, acc.CheckInvariants(), ErrComponentOverpaid)
}
