package allocation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lumenfin/loanledger/internal/loan"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func installment(seq int, due time.Time, amounts loan.Amounts) *loan.Installment {
	return &loan.Installment{Seq: seq, DueDate: due, Due: amounts}
}

func paymentFor(res Result, seq int) loan.Amounts {
	for _, p := range res.PerInstallment {
		if p.Seq == seq {
			return p.Amounts
		}
	}
	return loan.Amounts{}
}

func TestAllocateRejectsNegativeAmount(t *testing.T) {
	_, err := Allocate(Input{Amount: dec(-1), Strategy: DefaultPerPeriod()})
	require.ErrorIs(t, err, ErrInsufficientInput)
}

func TestPerPeriodComponentPriority(t *testing.T) {
	ins := installment(1, date(2023, 1, 31), loan.Amounts{
		Principal: dec(100), Interest: dec(10), Fee: dec(5), Penalty: dec(2),
	})

	res, err := Allocate(Input{
		Amount:       dec(7),
		AsOf:         date(2023, 2, 1),
		Installments: []*loan.Installment{ins},
		Strategy:     DefaultPerPeriod(),
	})
	require.NoError(t, err)

	got := paymentFor(res, 1)
	require.True(t, got.Penalty.Equal(dec(2)))
	require.True(t, got.Fee.Equal(dec(5)))
	require.True(t, got.Interest.IsZero())
	require.True(t, got.Principal.IsZero())
	require.True(t, res.OverpaymentPortion.IsZero())
}

func TestPerPeriodCustomOrder(t *testing.T) {
	ins := installment(1, date(2023, 1, 31), loan.Amounts{
		Principal: dec(100), Interest: dec(10),
	})

	res, err := Allocate(Input{
		Amount:       dec(50),
		Installments: []*loan.Installment{ins},
		Strategy:     PerPeriod(loan.ComponentPrincipal, loan.ComponentInterest),
	})
	require.NoError(t, err)

	got := paymentFor(res, 1)
	require.True(t, got.Principal.Equal(dec(50)))
	require.True(t, got.Interest.IsZero())
}

func TestHorizontalExhaustsEarlierInstallmentFirst(t *testing.T) {
	due := date(2023, 2, 1)
	first := installment(1, due, loan.Amounts{Principal: dec(100), Interest: dec(10)})
	second := installment(2, due, loan.Amounts{Principal: dec(50), Interest: dec(5)})

	res, err := Allocate(Input{
		Amount:       dec(112),
		AsOf:         date(2023, 2, 10),
		Installments: []*loan.Installment{first, second},
		Interleaving: loan.InterleavingHorizontal,
		Strategy:     DefaultPerPeriod(),
	})
	require.NoError(t, err)

	require.True(t, paymentFor(res, 1).Interest.Equal(dec(10)))
	require.True(t, paymentFor(res, 1).Principal.Equal(dec(100)))
	require.True(t, paymentFor(res, 2).Interest.Equal(dec(2)))
	require.True(t, paymentFor(res, 2).Principal.IsZero())
}

func TestVerticalPoolsComponentsAcrossSameDueDate(t *testing.T) {
	due := date(2023, 2, 1)
	first := installment(1, due, loan.Amounts{Principal: dec(100), Interest: dec(10)})
	second := installment(2, due, loan.Amounts{Principal: dec(50), Interest: dec(5)})

	res, err := Allocate(Input{
		Amount:       dec(112),
		AsOf:         date(2023, 2, 10),
		Installments: []*loan.Installment{first, second},
		Interleaving: loan.InterleavingVertical,
		Strategy:     DefaultPerPeriod(),
	})
	require.NoError(t, err)

	require.True(t, paymentFor(res, 1).Interest.Equal(dec(10)))
	require.True(t, paymentFor(res, 2).Interest.Equal(dec(5)))
	require.True(t, paymentFor(res, 1).Principal.Equal(dec(97)))
	require.True(t, paymentFor(res, 2).Principal.IsZero())
}

func TestExcessBecomesOverpayment(t *testing.T) {
	ins := installment(1, date(2023, 1, 31), loan.Amounts{Principal: dec(100)})

	res, err := Allocate(Input{
		Amount:       dec(130),
		Installments: []*loan.Installment{ins},
		Strategy:     DefaultPerPeriod(),
	})
	require.NoError(t, err)

	require.True(t, res.Breakdown.Principal.Equal(dec(100)))
	require.True(t, res.OverpaymentPortion.Equal(dec(30)))
}

func TestFeePortionFansOutToChargesInCreationOrder(t *testing.T) {
	ins := installment(1, date(2023, 1, 31), loan.Amounts{Fee: dec(30)})
	charges := []*loan.Charge{
		{ID: 1, Kind: loan.ChargeFee, Amount: dec(20), InstallmentSeq: 1},
		{ID: 2, Kind: loan.ChargeFee, Amount: dec(10), InstallmentSeq: 1},
	}

	res, err := Allocate(Input{
		Amount:       dec(25),
		Installments: []*loan.Installment{ins},
		Charges:      charges,
		Strategy:     DefaultPerPeriod(),
	})
	require.NoError(t, err)

	require.Len(t, res.PerCharge, 2)
	require.Equal(t, int64(1), res.PerCharge[0].ChargeID)
	require.True(t, res.PerCharge[0].Amount.Equal(dec(20)))
	require.Equal(t, int64(2), res.PerCharge[1].ChargeID)
	require.True(t, res.PerCharge[1].Amount.Equal(dec(5)))
}

func TestTieredPastDueBeforeDueBeforeFuture(t *testing.T) {
	asOf := date(2023, 3, 1)
	past := installment(1, date(2023, 2, 1), loan.Amounts{Principal: dec(100), Penalty: dec(10)})
	dueToday := installment(2, asOf, loan.Amounts{Principal: dec(100)})
	future := installment(3, date(2023, 4, 1), loan.Amounts{Principal: dec(100)})

	res, err := Allocate(Input{
		Amount:       dec(150),
		AsOf:         asOf,
		Installments: []*loan.Installment{past, dueToday, future},
		Strategy:     Tiered(FutureNextInstallment, DefaultAdvancedTiers()...),
	})
	require.NoError(t, err)

	require.True(t, paymentFor(res, 1).Penalty.Equal(dec(10)))
	require.True(t, paymentFor(res, 1).Principal.Equal(dec(100)))
	require.True(t, paymentFor(res, 2).Principal.Equal(dec(40)))
	require.True(t, paymentFor(res, 3).IsZero())
}

func TestTieredNextInstallmentTakesRemainder(t *testing.T) {
	asOf := date(2023, 3, 1)
	past := installment(1, date(2023, 2, 1), loan.Amounts{Principal: dec(100)})
	near := installment(2, date(2023, 4, 1), loan.Amounts{Principal: dec(100)})
	far := installment(3, date(2023, 5, 1), loan.Amounts{Principal: dec(100)})

	res, err := Allocate(Input{
		Amount:       dec(160),
		AsOf:         asOf,
		Installments: []*loan.Installment{past, near, far},
		Strategy: Tiered(FutureNextInstallment,
			Tier{Timing: TimingPastDue, Component: loan.ComponentPrincipal},
			Tier{Timing: TimingDue, Component: loan.ComponentPrincipal},
		),
	})
	require.NoError(t, err)

	require.True(t, paymentFor(res, 1).Principal.Equal(dec(100)))
	require.True(t, paymentFor(res, 2).Principal.Equal(dec(60)))
	require.True(t, paymentFor(res, 3).IsZero())
	require.True(t, res.OverpaymentPortion.IsZero())
}

func TestTieredReamortizeSpreadsProRata(t *testing.T) {
	asOf := date(2023, 3, 1)
	past := installment(1, date(2023, 2, 1), loan.Amounts{Principal: dec(100)})
	near := installment(2, date(2023, 4, 1), loan.Amounts{Principal: dec(200)})
	far := installment(3, date(2023, 5, 1), loan.Amounts{Principal: dec(100)})

	res, err := Allocate(Input{
		Amount:       dec(190),
		AsOf:         asOf,
		Installments: []*loan.Installment{past, near, far},
		Strategy: Tiered(FutureReamortize,
			Tier{Timing: TimingPastDue, Component: loan.ComponentPrincipal},
		),
	})
	require.NoError(t, err)

	// 90 spread over 200:100 outstanding principal.
	require.True(t, paymentFor(res, 1).Principal.Equal(dec(100)))
	require.True(t, paymentFor(res, 2).Principal.Equal(dec(60)))
	require.True(t, paymentFor(res, 3).Principal.Equal(dec(30)))
}

func TestTieredRemainderBeyondScheduleIsOverpayment(t *testing.T) {
	asOf := date(2023, 3, 1)
	past := installment(1, date(2023, 2, 1), loan.Amounts{Principal: dec(100)})

	res, err := Allocate(Input{
		Amount:       dec(120),
		AsOf:         asOf,
		Installments: []*loan.Installment{past},
		Strategy:     Tiered(FutureNextInstallment, DefaultAdvancedTiers()...),
	})
	require.NoError(t, err)
	require.True(t, res.OverpaymentPortion.Equal(dec(20)))
}

func TestAllocateNeverMutatesInputs(t *testing.T) {
	ins := installment(1, date(2023, 1, 31), loan.Amounts{Principal: dec(100)})
	ch := &loan.Charge{ID: 1, Kind: loan.ChargeFee, Amount: dec(10), InstallmentSeq: 1}

	_, err := Allocate(Input{
		Amount:       dec(50),
		Installments: []*loan.Installment{ins},
		Charges:      []*loan.Charge{ch},
		Strategy:     DefaultPerPeriod(),
	})
	require.NoError(t, err)

	require.True(t, ins.Paid.IsZero())
	require.True(t, ch.AmountPaid.IsZero())
}
