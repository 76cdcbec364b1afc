package loan

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestGenerateSplitsPrincipalWithRemainderOnLast(t *testing.T) {
	out := Generate(decimal.NewFromInt(1000), TermParams{
		Start:        date(2023, 1, 1),
		Installments: 3,
		EveryMonths:  1,
	})

	require.Len(t, out, 3)
	require.True(t, out[0].Due.Principal.Equal(decimal.RequireFromString("333.33")))
	require.True(t, out[1].Due.Principal.Equal(decimal.RequireFromString("333.33")))
	require.True(t, out[2].Due.Principal.Equal(decimal.RequireFromString("333.34")))
	require.Equal(t, date(2023, 2, 1), out[0].DueDate)
	require.Equal(t, date(2023, 2, 1), out[1].FromDate)
	require.Equal(t, date(2023, 4, 1), out[2].DueDate)
}

func TestInsertDownPaymentResequencesAndRemapsCharges(t *testing.T) {
	acc := &Account{
		Installments: Generate(decimal.NewFromInt(900), TermParams{
			Start:        date(2023, 1, 1),
			Installments: 3,
			EveryMonths:  1,
		}),
		Charges: []*Charge{{ID: 1, Kind: ChargeFee, Amount: dec(10), InstallmentSeq: 2}},
	}

	dp := acc.InsertDownPayment(decimal.NewFromInt(900), decimal.NewFromInt(25), date(2023, 1, 1))

	require.True(t, dp.Due.Principal.Equal(decimal.NewFromInt(225)))
	require.Equal(t, InstallmentDownPayment, dp.Kind)
	require.Equal(t, 1, dp.Seq)
	require.Len(t, acc.Installments, 4)
	for i, ins := range acc.Installments {
		require.Equal(t, i+1, ins.Seq)
	}
	// The charge follows its installment to the shifted sequence.
	require.Equal(t, 3, acc.Charges[0].InstallmentSeq)
}

func TestInsertTrancheAfterSameDueDate(t *testing.T) {
	acc := &Account{
		Installments: Generate(decimal.NewFromInt(600), TermParams{
			Start:        date(2023, 1, 1),
			Installments: 2,
			EveryMonths:  1,
		}),
	}

	// Same due date as the first period: inserted after it, never merged.
	tranche := acc.InsertTranche(decimal.NewFromInt(100), date(2023, 2, 1))

	require.Len(t, acc.Installments, 3)
	require.Equal(t, 2, tranche.Seq)
	require.True(t, acc.Installments[0].Due.Principal.Equal(decimal.NewFromInt(300)))
	require.True(t, acc.Installments[1].Due.Principal.Equal(decimal.NewFromInt(100)))
	require.Equal(t, acc.Installments[0].DueDate, acc.Installments[1].DueDate)
}

func TestOrderedInstallmentsTieBreaksOnSeq(t *testing.T) {
	acc := &Account{
		Installments: []*Installment{
			{Seq: 2, DueDate: date(2023, 2, 1)},
			{Seq: 1, DueDate: date(2023, 2, 1)},
			{Seq: 3, DueDate: date(2023, 1, 15)},
		},
	}

	ordered := acc.OrderedInstallments()
	require.Equal(t, 3, ordered[0].Seq)
	require.Equal(t, 1, ordered[1].Seq)
	require.Equal(t, 2, ordered[2].Seq)
}

func TestAssignChargeInstallment(t *testing.T) {
	acc := &Account{
		Installments: Generate(decimal.NewFromInt(900), TermParams{
			Start:        date(2023, 1, 1),
			Installments: 3,
			EveryMonths:  1,
		}),
	}

	// Explicit assignment wins.
	require.Equal(t, 3, acc.AssignChargeInstallment(&Charge{InstallmentSeq: 3}))
	// First installment whose due date covers the charge.
	require.Equal(t, 2, acc.AssignChargeInstallment(&Charge{DueDate: date(2023, 2, 15)}))
	// Past every due date: the last installment takes it.
	require.Equal(t, 3, acc.AssignChargeInstallment(&Charge{DueDate: date(2023, 8, 1)}))
}
