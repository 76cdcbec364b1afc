package loan

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates loan account lifecycle states.
type Status string

const (
	StatusPending              Status = "PENDING"
	StatusApproved             Status = "APPROVED"
	StatusActive               Status = "ACTIVE"
	StatusOverpaid             Status = "OVERPAID"
	StatusClosedObligationsMet Status = "CLOSED_OBLIGATIONS_MET"
	StatusRejected             Status = "REJECTED"
	StatusWithdrawn            Status = "WITHDRAWN"
)

// AccountingMode enumerates GL treatment modes for a loan.
type AccountingMode string

const (
	AccountingNone            AccountingMode = "NONE"
	AccountingCashBased       AccountingMode = "CASH_BASED"
	AccountingAccrualPeriodic AccountingMode = "ACCRUAL_PERIODIC"
)

// InstallmentKind distinguishes regular periods from inserted down payments.
type InstallmentKind string

const (
	InstallmentRegular     InstallmentKind = "REGULAR"
	InstallmentDownPayment InstallmentKind = "DOWN_PAYMENT"
)

// Interleaving controls how installments sharing a due date are ordered
// during allocation.
type Interleaving string

const (
	// InterleavingHorizontal exhausts the earlier-created installment before
	// the later one, even when both share a due date.
	InterleavingHorizontal Interleaving = "HORIZONTAL"
	// InterleavingVertical treats installments sharing a due date as one
	// combined pool per component.
	InterleavingVertical Interleaving = "VERTICAL"
)

// TransactionType enumerates ledger event kinds.
type TransactionType string

const (
	TypeDisbursement        TransactionType = "DISBURSEMENT"
	TypeDownPayment         TransactionType = "DOWN_PAYMENT"
	TypeRepayment           TransactionType = "REPAYMENT"
	TypeWaiver              TransactionType = "WAIVER"
	TypeRefund              TransactionType = "REFUND"
	TypeMerchantRefund      TransactionType = "MERCHANT_REFUND"
	TypePayoutRefund        TransactionType = "PAYOUT_REFUND"
	TypeGoodwillCredit      TransactionType = "GOODWILL_CREDIT"
	TypeCreditBalanceRefund TransactionType = "CREDIT_BALANCE_REFUND"
	TypeChargeOff           TransactionType = "CHARGE_OFF"
	TypeChargeAdjustment    TransactionType = "CHARGE_ADJUSTMENT"
	TypeAccrual             TransactionType = "ACCRUAL"
)

// Monetary reports whether the type moves money through the allocation engine.
func (t TransactionType) Monetary() bool {
	switch t {
	case TypeDownPayment, TypeRepayment, TypeGoodwillCredit, TypeMerchantRefund, TypePayoutRefund:
		return true
	}
	return false
}

// ChargeRefund reports whether the type is a charge refund; these are
// allocation-sensitive and block replay past them.
func (t TransactionType) ChargeRefund() bool {
	return t == TypeChargeAdjustment
}

// CreditRefund reports whether the type pays out the loan's credit balance.
// Like charge refunds, these are bounded by prior state and block replay
// past them.
func (t TransactionType) CreditRefund() bool {
	return t == TypeRefund || t == TypeCreditBalanceRefund
}

// RecoveryEligible reports whether the type is reclassified to recovery
// income while the loan is charged off.
func (t TransactionType) RecoveryEligible() bool {
	switch t {
	case TypeRepayment, TypeGoodwillCredit, TypeMerchantRefund, TypePayoutRefund:
		return true
	}
	return false
}

// RelationKind enumerates transaction-to-transaction relations.
type RelationKind string

// RelationReplayed links a superseded transaction to its replayed successor.
const RelationReplayed RelationKind = "REPLAYED"

// TransactionRelation records lineage between two transactions.
type TransactionRelation struct {
	ToTransactionID uuid.UUID
	Kind            RelationKind
}

// Transaction is one immutable ledger event. Only the reversed flags change
// after creation; a reversal zeroes the ledger effect but keeps the record.
type Transaction struct {
	ID                 uuid.UUID
	Seq                int64
	ExternalID         string
	Type               TransactionType
	Date               time.Time
	Amount             decimal.Decimal
	Breakdown          Amounts
	OverpaymentPortion decimal.Decimal
	Recovery           bool
	Reversed           bool
	ManuallyReversed   bool
	Relations          []TransactionRelation

	// Targeting data for charge-level and charge-off events; zero values
	// for plain monetary transactions.
	ChargeID  int64
	TargetSeq int
	ReasonID  *int64
}

// Installment is one scheduled repayment period.
type Installment struct {
	Seq      int
	FromDate time.Time
	DueDate  time.Time
	Kind     InstallmentKind
	Due      Amounts
	Paid     Amounts
	Waived   Amounts
}

// Outstanding returns due - paid - waived for one component.
func (i *Installment) Outstanding(c Component) decimal.Decimal {
	return i.Due.Get(c).Sub(i.Paid.Get(c)).Sub(i.Waived.Get(c))
}

// TotalOutstanding sums outstanding across all components.
func (i *Installment) TotalOutstanding() decimal.Decimal {
	total := decimal.Zero
	for _, c := range Components {
		total = total.Add(i.Outstanding(c))
	}
	return total
}

// ObligationsMet reports whether every component is fully settled.
func (i *Installment) ObligationsMet() bool {
	return i.TotalOutstanding().IsZero()
}

// Pay records a payment against one component. The outstanding amount can
// never go negative.
func (i *Installment) Pay(c Component, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	if amount.GreaterThan(i.Outstanding(c)) {
		return fmt.Errorf("%w: installment %d %s", ErrComponentOverpaid, i.Seq, c)
	}
	i.Paid.Add(c, amount)
	return nil
}

// Waive records a waiver against one component, capped at outstanding.
func (i *Installment) Waive(c Component, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	if amount.GreaterThan(i.Outstanding(c)) {
		return fmt.Errorf("%w: installment %d %s", ErrComponentOverpaid, i.Seq, c)
	}
	i.Waived.Add(c, amount)
	return nil
}

// Reopen reverses a previously recorded payment, raising outstanding again.
func (i *Installment) Reopen(c Component, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	if amount.GreaterThan(i.Paid.Get(c)) {
		return fmt.Errorf("%w: installment %d %s", ErrRefundExceedsPaid, i.Seq, c)
	}
	i.Paid.Sub(c, amount)
	return nil
}

// ChargeKind distinguishes fee and penalty charges.
type ChargeKind string

const (
	ChargeFee     ChargeKind = "FEE"
	ChargePenalty ChargeKind = "PENALTY"
)

// Component maps the charge kind onto its installment component.
func (k ChargeKind) Component() Component {
	if k == ChargePenalty {
		return ComponentPenalty
	}
	return ComponentFee
}

// ChargePaidByEntry attributes part of a transaction's amount to a charge.
// Positive entries are payments, negative entries are refunds.
type ChargePaidByEntry struct {
	TransactionID uuid.UUID
	Amount        decimal.Decimal
}

// Charge is a fee or penalty attached to an installment.
type Charge struct {
	ID             int64
	Kind           ChargeKind
	Calculation    string
	Amount         decimal.Decimal
	DueDate        time.Time
	InstallmentSeq int
	AmountPaid     decimal.Decimal
	AmountWaived   decimal.Decimal
	PaidBy         []ChargePaidByEntry
}

// Outstanding returns amount - paid - waived.
func (c *Charge) Outstanding() decimal.Decimal {
	return c.Amount.Sub(c.AmountPaid).Sub(c.AmountWaived)
}

// RecordPayment appends a positive paid-by entry and raises AmountPaid.
func (c *Charge) RecordPayment(txID uuid.UUID, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	if amount.GreaterThan(c.Outstanding()) {
		return fmt.Errorf("%w: charge %d", ErrComponentOverpaid, c.ID)
	}
	c.AmountPaid = c.AmountPaid.Add(amount)
	c.PaidBy = append(c.PaidBy, ChargePaidByEntry{TransactionID: txID, Amount: amount})
	return nil
}

// RecordRefund appends a negative paid-by entry and lowers AmountPaid. The
// refund may never exceed what is currently paid.
func (c *Charge) RecordRefund(txID uuid.UUID, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	if amount.GreaterThan(c.AmountPaid) {
		return fmt.Errorf("%w: charge %d", ErrRefundExceedsPaid, c.ID)
	}
	c.AmountPaid = c.AmountPaid.Sub(amount)
	c.PaidBy = append(c.PaidBy, ChargePaidByEntry{TransactionID: txID, Amount: amount.Neg()})
	return nil
}

// ReconcilePaidBy verifies the paid-by journal sums to AmountPaid and that
// no prefix of the journal dips below zero.
func (c *Charge) ReconcilePaidBy() error {
	sum := decimal.Zero
	for _, e := range c.PaidBy {
		sum = sum.Add(e.Amount)
		if sum.IsNegative() {
			return fmt.Errorf("%w: charge %d refund precedes payment", ErrPaidByMismatch, c.ID)
		}
	}
	if !sum.Equal(c.AmountPaid) {
		return fmt.Errorf("%w: charge %d journal %s vs paid %s", ErrPaidByMismatch, c.ID, sum, c.AmountPaid)
	}
	return nil
}

// Account is the in-memory loan aggregate. Ledger operations take it by
// exclusive reference; the repository loads and saves it atomically.
type Account struct {
	ID                          int64
	ExternalID                  string
	Currency                    string
	Principal                   decimal.Decimal
	Status                      Status
	ChargedOff                  bool
	ChargeOffReasonID           *int64
	ChargeOffDate               *time.Time
	Fraud                       bool
	Accounting                  AccountingMode
	Interleaving                Interleaving
	AllocationStrategy          string
	DelinquencyBucketID         *int64
	InstallmentLevelDelinquency *bool

	Installments []*Installment
	Charges      []*Charge
	Transactions []*Transaction

	nextSeq      int64
	nextChargeID int64
}

var (
	// ErrNegativeAmount indicates a negative monetary input.
	ErrNegativeAmount = errors.New("loan: amount must not be negative")
	// ErrFutureDated indicates a transaction dated after the business date.
	ErrFutureDated = errors.New("loan: transaction date is in the future")
	// ErrRefundExceedsPaid indicates a refund larger than the paid amount.
	ErrRefundExceedsPaid = errors.New("loan: refund exceeds paid amount")
	// ErrLaterChargeRefundExists blocks mutations behind a charge refund.
	ErrLaterChargeRefundExists = errors.New("loan: a later unreversed charge refund exists")
	// ErrLaterCreditRefundExists blocks mutations behind a credit balance payout.
	ErrLaterCreditRefundExists = errors.New("loan: a later unreversed credit balance refund exists")
	// ErrChargeNotFound indicates an unknown charge id.
	ErrChargeNotFound = errors.New("loan: charge not found")
	// ErrTransactionNotFound indicates an unknown transaction id.
	ErrTransactionNotFound = errors.New("loan: transaction not found")
	// ErrInstallmentNotFound indicates an unknown installment sequence.
	ErrInstallmentNotFound = errors.New("loan: installment not found")
	// ErrComponentOverpaid indicates an outstanding amount would go negative.
	ErrComponentOverpaid = errors.New("loan: component outstanding below zero")
	// ErrPaidByMismatch indicates the charge journal does not reconcile.
	ErrPaidByMismatch = errors.New("loan: charge paid-by entries do not reconcile")
	// ErrAlreadyReversed indicates a double reversal attempt.
	ErrAlreadyReversed = errors.New("loan: transaction already reversed")
	// ErrNotChargedOff indicates an undo without a standing charge-off.
	ErrNotChargedOff = errors.New("loan: account is not charged off")
	// ErrAlreadyChargedOff indicates a second charge-off attempt.
	ErrAlreadyChargedOff = errors.New("loan: account is already charged off")
	// ErrDuplicateAccrual indicates an accrual already exists for the date.
	ErrDuplicateAccrual = errors.New("loan: accrual already posted for date")
	// ErrDuplicateExternalID indicates an external id was already used.
	ErrDuplicateExternalID = errors.New("loan: external id already in use")
	// ErrWaiveExceedsOutstanding indicates a waiver above the outstanding amount.
	ErrWaiveExceedsOutstanding = errors.New("loan: waiver exceeds outstanding amount")
	// ErrPayExceedsOutstanding indicates a targeted payment above the charge outstanding.
	ErrPayExceedsOutstanding = errors.New("loan: payment exceeds charge outstanding")
	// ErrRefundExceedsOverpaid indicates a credit balance refund above the credit balance.
	ErrRefundExceedsOverpaid = errors.New("loan: refund exceeds overpaid balance")
)

// NextTransactionSeq allocates the next monotonic transaction sequence.
func (a *Account) NextTransactionSeq() int64 {
	if a.nextSeq == 0 {
		for _, tx := range a.Transactions {
			if tx.Seq > a.nextSeq {
				a.nextSeq = tx.Seq
			}
		}
	}
	a.nextSeq++
	return a.nextSeq
}

// NextChargeID allocates the next charge id in creation order.
func (a *Account) NextChargeID() int64 {
	if a.nextChargeID == 0 {
		for _, c := range a.Charges {
			if c.ID > a.nextChargeID {
				a.nextChargeID = c.ID
			}
		}
	}
	a.nextChargeID++
	return a.nextChargeID
}

// Installment returns the installment with the given sequence.
func (a *Account) Installment(seq int) (*Installment, error) {
	for _, ins := range a.Installments {
		if ins.Seq == seq {
			return ins, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrInstallmentNotFound, seq)
}

// Charge returns the charge with the given id.
func (a *Account) Charge(id int64) (*Charge, error) {
	for _, c := range a.Charges {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrChargeNotFound, id)
}

// Transaction returns the transaction with the given id.
func (a *Account) Transaction(id uuid.UUID) (*Transaction, error) {
	for _, tx := range a.Transactions {
		if tx.ID == id {
			return tx, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
}

// ChargesForInstallment returns the charges assigned to an installment, in
// creation order.
func (a *Account) ChargesForInstallment(seq int) []*Charge {
	var out []*Charge
	for _, c := range a.Charges {
		if c.InstallmentSeq == seq {
			out = append(out, c)
		}
	}
	return out
}

// TotalOutstanding sums outstanding across all installments per component.
func (a *Account) TotalOutstanding() Amounts {
	var total Amounts
	for _, ins := range a.Installments {
		for _, c := range Components {
			total.Add(c, ins.Outstanding(c))
		}
	}
	return total
}

// TotalOverpaid sums the overpayment portions of unreversed transactions.
func (a *Account) TotalOverpaid() decimal.Decimal {
	total := decimal.Zero
	for _, tx := range a.Transactions {
		if tx.Reversed {
			continue
		}
		total = total.Add(tx.OverpaymentPortion)
	}
	return total
}

// RecomputeStatus derives the aggregate status from outstanding amounts.
// A charged-off account stays open for recovery regardless of outstanding.
func (a *Account) RecomputeStatus() {
	switch a.Status {
	case StatusPending, StatusApproved, StatusRejected, StatusWithdrawn:
		return
	}
	if a.ChargedOff {
		a.Status = StatusActive
		return
	}
	outstanding := a.TotalOutstanding().Total()
	overpaid := a.TotalOverpaid()
	switch {
	case outstanding.IsZero() && overpaid.IsPositive():
		a.Status = StatusOverpaid
	case outstanding.IsZero():
		a.Status = StatusClosedObligationsMet
	default:
		a.Status = StatusActive
	}
}

// CheckInvariants verifies conservation and charge reconciliation across the
// whole aggregate. Violations are engine bugs, never user errors.
func (a *Account) CheckInvariants() error {
	for _, ins := range a.Installments {
		for _, c := range Components {
			if ins.Outstanding(c).IsNegative() {
				return fmt.Errorf("%w: installment %d %s", ErrComponentOverpaid, ins.Seq, c)
			}
		}
	}
	for _, ch := range a.Charges {
		if err := ch.ReconcilePaidBy(); err != nil {
			return err
		}
	}
	return nil
}
