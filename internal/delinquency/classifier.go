package delinquency

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumenfin/loanledger/internal/loan"
)

var (
	// ErrBucketRequired indicates installment-level delinquency was enabled
	// without a configured bucket.
	ErrBucketRequired = errors.New("delinquency: installment-level delinquency requires a bucket")
	// ErrInvalidBucket indicates ranges do not partition [1, inf).
	ErrInvalidBucket = errors.New("delinquency: invalid bucket configuration")
)

// Range is one severity band of days past due. A nil MaxAgeDays marks the
// open-ended band, which must be the last.
type Range struct {
	MinAgeDays int
	MaxAgeDays *int
}

// Contains reports whether an age in days falls inside the range.
func (r Range) Contains(age int) bool {
	if age < r.MinAgeDays {
		return false
	}
	return r.MaxAgeDays == nil || age <= *r.MaxAgeDays
}

// Bucket is an ordered, non-overlapping partition of days past due.
type Bucket struct {
	ID     int64
	Name   string
	Ranges []Range
}

// Validate checks that the ranges are contiguous, start at day one and end
// with exactly one open-ended range.
func (b Bucket) Validate() error {
	if len(b.Ranges) == 0 {
		return fmt.Errorf("%w: no ranges", ErrInvalidBucket)
	}
	next := 1
	for i, r := range b.Ranges {
		if r.MinAgeDays != next {
			return fmt.Errorf("%w: range %d starts at %d, want %d", ErrInvalidBucket, i, r.MinAgeDays, next)
		}
		last := i == len(b.Ranges)-1
		if r.MaxAgeDays == nil {
			if !last {
				return fmt.Errorf("%w: open-ended range must be last", ErrInvalidBucket)
			}
			return nil
		}
		if *r.MaxAgeDays < r.MinAgeDays {
			return fmt.Errorf("%w: range %d is empty", ErrInvalidBucket, i)
		}
		next = *r.MaxAgeDays + 1
	}
	return fmt.Errorf("%w: last range must be open-ended", ErrInvalidBucket)
}

// ValidateConfiguration rejects the installment-level flag without a bucket.
// Products and loan applications both run this check.
func ValidateConfiguration(installmentLevel bool, bucket *Bucket) error {
	if installmentLevel && bucket == nil {
		return ErrBucketRequired
	}
	if bucket != nil {
		return bucket.Validate()
	}
	return nil
}

// RangeTotal is the outstanding amount aged into one range.
type RangeTotal struct {
	Range  Range
	Amount decimal.Decimal
}

// Result is the delinquency classification of one loan.
type Result struct {
	DelinquentDays   int
	DelinquentAmount decimal.Decimal
	Ranges           []RangeTotal
}

// Options tunes classification boundaries.
type Options struct {
	// InstallmentLevel is the product default for per-range breakdowns;
	// the loan-level flag overrides it when set.
	InstallmentLevel bool
	// CountDueToday treats an installment due on the as-of date as
	// delinquent with age zero. The observed business rule leaves it off.
	CountDueToday bool
}

// Classify ages unpaid installments against the as-of date. The loan-level
// days/amount pair is always computed; the per-range breakdown requires the
// installment-level flag and a bucket. Classification is a pure projection
// and never mutates ledger state.
func Classify(acc *loan.Account, bucket *Bucket, asOf time.Time, opts Options) (Result, error) {
	enabled := opts.InstallmentLevel
	if acc.InstallmentLevelDelinquency != nil {
		enabled = *acc.InstallmentLevelDelinquency
	}
	if err := ValidateConfiguration(enabled, bucket); err != nil {
		return Result{}, err
	}
	result := Result{DelinquentAmount: decimal.Zero}
	if acc.ChargedOff {
		// The receivable is written off; nothing is aging.
		return result, nil
	}
	type aged struct {
		age    int
		amount decimal.Decimal
	}
	var overdue []aged
	for _, ins := range acc.Installments {
		if ins.ObligationsMet() {
			continue
		}
		age := daysBetween(ins.DueDate, asOf)
		if age < 0 || (age == 0 && !opts.CountDueToday) {
			continue
		}
		overdue = append(overdue, aged{age: age, amount: ins.TotalOutstanding()})
		if age > result.DelinquentDays {
			result.DelinquentDays = age
		}
		result.DelinquentAmount = result.DelinquentAmount.Add(ins.TotalOutstanding())
	}
	if !enabled || bucket == nil || len(overdue) == 0 {
		return result, nil
	}
	for _, r := range bucket.Ranges {
		total := decimal.Zero
		for _, o := range overdue {
			if r.Contains(o.age) {
				total = total.Add(o.amount)
			}
		}
		if total.IsPositive() {
			result.Ranges = append(result.Ranges, RangeTotal{Range: r, Amount: total})
		}
	}
	return result, nil
}

func daysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}
