package ledger

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lumenfin/loanledger/internal/allocation"
	"github.com/lumenfin/loanledger/internal/loan"
)

// StrategyResolver maps a loan account to its allocation strategy.
type StrategyResolver func(acc *loan.Account) allocation.Strategy

// Named allocation strategies resolvable from product configuration.
const (
	StrategyPerPeriod          = "PER_PERIOD"
	StrategyAdvanced           = "ADVANCED"
	StrategyAdvancedReamortize = "ADVANCED_REAMORTIZE"
)

func defaultResolver(acc *loan.Account) allocation.Strategy {
	switch acc.AllocationStrategy {
	case StrategyAdvanced:
		return allocation.Tiered(allocation.FutureNextInstallment, allocation.DefaultAdvancedTiers()...)
	case StrategyAdvancedReamortize:
		return allocation.Tiered(allocation.FutureReamortize, allocation.DefaultAdvancedTiers()...)
	default:
		return allocation.DefaultPerPeriod()
	}
}

// Service is the transaction ledger and replay controller. It mutates loan
// aggregates held by exclusive reference; the repository provides the
// serialization boundary around each call.
type Service struct {
	logger       *slog.Logger
	resolve      StrategyResolver
	businessDate func() time.Time
}

// NewService constructs the ledger service.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:       logger,
		resolve:      defaultResolver,
		businessDate: func() time.Time { return time.Now().UTC() },
	}
}

// WithBusinessDate overrides the injected business date provider.
func (s *Service) WithBusinessDate(fn func() time.Time) {
	if fn != nil {
		s.businessDate = fn
	}
}

// WithStrategyResolver overrides allocation strategy resolution.
func (s *Service) WithStrategyResolver(r StrategyResolver) {
	if r != nil {
		s.resolve = r
	}
}

// Disburse activates the loan and records the disbursement. A positive down
// payment percentage inserts a down-payment installment due on the
// disbursement date.
func (s *Service) Disburse(acc *loan.Account, amount decimal.Decimal, date time.Time, downPaymentPct decimal.Decimal) (*loan.Transaction, error) {
	if amount.IsNegative() {
		return nil, loan.ErrNegativeAmount
	}
	if downPaymentPct.IsPositive() {
		acc.InsertDownPayment(amount, downPaymentPct, date)
	}
	if acc.Status == loan.StatusPending || acc.Status == loan.StatusApproved {
		acc.Status = loan.StatusActive
	}
	return s.apply(acc, &loan.Transaction{Type: loan.TypeDisbursement, Date: date, Amount: amount})
}

// Repay records a repayment.
func (s *Service) Repay(acc *loan.Account, amount decimal.Decimal, date time.Time, externalID string) (*loan.Transaction, error) {
	return s.apply(acc, &loan.Transaction{Type: loan.TypeRepayment, Date: date, Amount: amount, ExternalID: externalID})
}

// PayDownPayment records a down-payment repayment.
func (s *Service) PayDownPayment(acc *loan.Account, amount decimal.Decimal, date time.Time) (*loan.Transaction, error) {
	return s.apply(acc, &loan.Transaction{Type: loan.TypeDownPayment, Date: date, Amount: amount})
}

// GoodwillCredit records a goodwill credit.
func (s *Service) GoodwillCredit(acc *loan.Account, amount decimal.Decimal, date time.Time) (*loan.Transaction, error) {
	return s.apply(acc, &loan.Transaction{Type: loan.TypeGoodwillCredit, Date: date, Amount: amount})
}

// MerchantRefund records a merchant-issued refund.
func (s *Service) MerchantRefund(acc *loan.Account, amount decimal.Decimal, date time.Time) (*loan.Transaction, error) {
	return s.apply(acc, &loan.Transaction{Type: loan.TypeMerchantRefund, Date: date, Amount: amount})
}

// PayoutRefund records a payout refund.
func (s *Service) PayoutRefund(acc *loan.Account, amount decimal.Decimal, date time.Time) (*loan.Transaction, error) {
	return s.apply(acc, &loan.Transaction{Type: loan.TypePayoutRefund, Date: date, Amount: amount})
}

// WaiveInterest waives outstanding interest across installments in
// chronological order.
func (s *Service) WaiveInterest(acc *loan.Account, amount decimal.Decimal, date time.Time) (*loan.Transaction, error) {
	return s.apply(acc, &loan.Transaction{Type: loan.TypeWaiver, Date: date, Amount: amount})
}

// CreditBalanceRefund returns part of an overpaid loan's credit balance.
func (s *Service) CreditBalanceRefund(acc *loan.Account, amount decimal.Decimal, date time.Time) (*loan.Transaction, error) {
	if amount.GreaterThan(acc.TotalOverpaid()) {
		return nil, loan.ErrRefundExceedsOverpaid
	}
	return s.apply(acc, &loan.Transaction{Type: loan.TypeCreditBalanceRefund, Date: date, Amount: amount})
}

// Refund pays out part of the credit balance by cash or cheque. It draws on
// the same overpayment pool as CreditBalanceRefund under a distinct
// instrument type.
func (s *Service) Refund(acc *loan.Account, amount decimal.Decimal, date time.Time) (*loan.Transaction, error) {
	if amount.GreaterThan(acc.TotalOverpaid()) {
		return nil, loan.ErrRefundExceedsOverpaid
	}
	return s.apply(acc, &loan.Transaction{Type: loan.TypeRefund, Date: date, Amount: amount})
}

// Accrue posts a periodic accrual record. Accruals are idempotent per
// (loan, date, type); repeated job runs must not double-post.
func (s *Service) Accrue(acc *loan.Account, interest decimal.Decimal, date time.Time) (*loan.Transaction, error) {
	for _, tx := range acc.Transactions {
		if tx.Type == loan.TypeAccrual && !tx.Reversed && sameDay(tx.Date, date) {
			return nil, loan.ErrDuplicateAccrual
		}
	}
	return s.apply(acc, &loan.Transaction{
		Type:      loan.TypeAccrual,
		Date:      date,
		Amount:    interest,
		Breakdown: loan.Amounts{Interest: interest},
	})
}

// AddCharge attaches a fee or penalty to the loan, raising the assigned
// installment's due amount. A backdated charge triggers replay.
func (s *Service) AddCharge(acc *loan.Account, kind loan.ChargeKind, amount decimal.Decimal, dueDate time.Time, installmentSeq int) (*loan.Charge, error) {
	if amount.IsNegative() {
		return nil, loan.ErrNegativeAmount
	}
	if err := s.guardRefundBarrier(acc, dueDate, uuid.Nil); err != nil {
		return nil, err
	}
	ch := &loan.Charge{
		ID:             acc.NextChargeID(),
		Kind:           kind,
		Calculation:    "FLAT",
		Amount:         amount,
		DueDate:        dueDate,
		InstallmentSeq: installmentSeq,
	}
	ch.InstallmentSeq = acc.AssignChargeInstallment(ch)
	ins, err := acc.Installment(ch.InstallmentSeq)
	if err != nil {
		return nil, err
	}
	ins.Due.Add(kind.Component(), amount)
	acc.Charges = append(acc.Charges, ch)
	if s.isBackdated(acc, dueDate) {
		if err := s.replay(acc); err != nil {
			return nil, err
		}
	}
	acc.RecomputeStatus()
	return ch, acc.CheckInvariants()
}

// PayCharge records a targeted manual payment against one charge, outside
// the normal repayment allocation flow.
func (s *Service) PayCharge(acc *loan.Account, chargeID int64, amount decimal.Decimal, date time.Time) (*loan.Transaction, error) {
	ch, err := acc.Charge(chargeID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(ch.Outstanding()) {
		return nil, loan.ErrPayExceedsOutstanding
	}
	return s.apply(acc, &loan.Transaction{Type: loan.TypeRepayment, Date: date, Amount: amount, ChargeID: chargeID})
}

// WaiveCharge waives part of a charge; a non-positive amount waives the full
// outstanding.
func (s *Service) WaiveCharge(acc *loan.Account, chargeID int64, amount decimal.Decimal, date time.Time) (*loan.Transaction, error) {
	ch, err := acc.Charge(chargeID)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		amount = ch.Outstanding()
	}
	if amount.GreaterThan(ch.Outstanding()) {
		return nil, loan.ErrWaiveExceedsOutstanding
	}
	return s.apply(acc, &loan.Transaction{Type: loan.TypeWaiver, Date: date, Amount: amount, ChargeID: chargeID})
}

// RefundCharge returns previously paid charge amount, reopening the
// obligation on the targeted installment. The refund fails when the amount
// exceeds what is currently paid.
func (s *Service) RefundCharge(acc *loan.Account, chargeID int64, amount decimal.Decimal, installmentSeq int, date time.Time) (*loan.Transaction, error) {
	ch, err := acc.Charge(chargeID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(ch.AmountPaid) {
		return nil, fmt.Errorf("%w: charge %d", loan.ErrRefundExceedsPaid, chargeID)
	}
	if installmentSeq == 0 {
		installmentSeq = ch.InstallmentSeq
	}
	return s.apply(acc, &loan.Transaction{
		Type:      loan.TypeChargeAdjustment,
		Date:      date,
		Amount:    amount,
		ChargeID:  chargeID,
		TargetSeq: installmentSeq,
	})
}

// apply is the single entry point every event flows through: validate
// ordering, compute the effect, commit the mutation, recompute status,
// append the record. Replay reuses the same compute/commit pair.
func (s *Service) apply(acc *loan.Account, tx *loan.Transaction) (*loan.Transaction, error) {
	if tx.Amount.IsNegative() {
		return nil, loan.ErrNegativeAmount
	}
	if tx.Date.After(s.businessDate()) {
		return nil, loan.ErrFutureDated
	}
	if err := s.guardExternalID(acc, tx.ExternalID); err != nil {
		return nil, err
	}
	if err := s.guardRefundBarrier(acc, tx.Date, uuid.Nil); err != nil {
		return nil, err
	}
	tx.ID = uuid.New()
	tx.Seq = acc.NextTransactionSeq()
	backdated := s.isBackdated(acc, tx.Date)
	appendedAt := len(acc.Transactions)
	acc.Transactions = append(acc.Transactions, tx)
	if backdated {
		// Backdated insertion: re-derive everything from the corrected
		// chronological order instead of patching in place.
		if err := s.replay(acc, tx); err != nil {
			acc.Transactions = acc.Transactions[:appendedAt]
			return nil, err
		}
	} else {
		eff, err := s.compute(acc, tx)
		if err != nil {
			acc.Transactions = acc.Transactions[:appendedAt]
			return nil, err
		}
		if err := s.commit(acc, tx, eff); err != nil {
			acc.Transactions = acc.Transactions[:appendedAt]
			return nil, err
		}
	}
	acc.RecomputeStatus()
	if err := acc.CheckInvariants(); err != nil {
		s.logger.Error("ledger invariant violation",
			slog.Int64("loan_id", acc.ID),
			slog.String("transaction", tx.ID.String()),
			slog.Any("error", err))
		return nil, err
	}
	return tx, nil
}

// Reverse marks a transaction reversed, zeroes its ledger effect and
// replays every later transaction against the corrected state.
func (s *Service) Reverse(acc *loan.Account, txID uuid.UUID) error {
	return s.reverse(acc, txID, false)
}

func (s *Service) reverse(acc *loan.Account, txID uuid.UUID, manual bool) error {
	tx, err := acc.Transaction(txID)
	if err != nil {
		return err
	}
	if tx.Reversed {
		return loan.ErrAlreadyReversed
	}
	if err := s.guardRefundBarrier(acc, tx.Date, tx.ID); err != nil {
		return err
	}
	tx.Reversed = true
	tx.ManuallyReversed = manual
	if err := s.replay(acc); err != nil {
		return err
	}
	acc.RecomputeStatus()
	return acc.CheckInvariants()
}

// guardRefundBarrier rejects mutations dated before a later, unreversed
// refund. Charge refunds are allocation-sensitive and credit balance
// payouts are bounded by the overpayment they drew on; neither can be
// replayed past.
func (s *Service) guardRefundBarrier(acc *loan.Account, date time.Time, exclude uuid.UUID) error {
	for _, tx := range acc.Transactions {
		if tx.Reversed || tx.ID == exclude || !tx.Date.After(date) {
			continue
		}
		if tx.Type.ChargeRefund() {
			return loan.ErrLaterChargeRefundExists
		}
		if tx.Type.CreditRefund() {
			return loan.ErrLaterCreditRefundExists
		}
	}
	return nil
}

func (s *Service) guardExternalID(acc *loan.Account, externalID string) error {
	if externalID == "" {
		return nil
	}
	for _, tx := range acc.Transactions {
		if tx.ExternalID == externalID && !tx.Reversed {
			return loan.ErrDuplicateExternalID
		}
	}
	return nil
}

// isBackdated reports whether a date falls before the latest unreversed
// transaction on the loan.
func (s *Service) isBackdated(acc *loan.Account, date time.Time) bool {
	for _, tx := range acc.Transactions {
		if !tx.Reversed && tx.Date.After(date) {
			return true
		}
	}
	return false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
