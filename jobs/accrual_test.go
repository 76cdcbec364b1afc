package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lumenfin/loanledger/internal/ledger"
	"github.com/lumenfin/loanledger/internal/loan"
)

type memoryLoanStore struct {
	accounts map[int64]*loan.Account
}

func (s *memoryLoanStore) ListActiveIDs(ctx context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memoryLoanStore) Mutate(ctx context.Context, loanID int64, fn func(*loan.Account) error) error {
	return fn(s.accounts[loanID])
}

func (s *memoryLoanStore) Load(ctx context.Context, loanID int64) (*loan.Account, error) {
	return s.accounts[loanID], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAccrualJobIsIdempotentPerDate(t *testing.T) {
	acc := &loan.Account{
		ID:           1,
		Status:       loan.StatusActive,
		Interleaving: loan.InterleavingHorizontal,
		Installments: loan.Generate(decimal.NewFromInt(1200), loan.TermParams{
			Start:           time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			Installments:    4,
			EveryMonths:     1,
			InterestPerTerm: decimal.NewFromInt(25),
		}),
	}
	store := &memoryLoanStore{accounts: map[int64]*loan.Account{1: acc}}

	svc := ledger.NewService(discardLogger())
	svc.WithBusinessDate(func() time.Time {
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	})

	job := NewAccrualJob(store, svc, discardLogger(), 2)
	task, err := NewAccrualTask(DatePayload{Date: "2023-02-01"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))

	accruals := 0
	for _, tx := range acc.Transactions {
		if tx.Type == loan.TypeAccrual && !tx.Reversed {
			accruals++
			require.True(t, tx.Breakdown.Interest.Equal(decimal.NewFromInt(25)))
		}
	}
	require.Equal(t, 1, accruals)

	// A rerun for the same date posts nothing new.
	require.NoError(t, job.Handle(context.Background(), task))
	accruals = 0
	for _, tx := range acc.Transactions {
		if tx.Type == loan.TypeAccrual && !tx.Reversed {
			accruals++
		}
	}
	require.Equal(t, 1, accruals)
}

func TestAccrualJobRejectsMalformedPayload(t *testing.T) {
	job := NewAccrualJob(&memoryLoanStore{accounts: map[int64]*loan.Account{}}, nil, discardLogger(), 1)

	bad := asynq.NewTask(TaskLoanAccrual, []byte(`{"date":"not-a-date"}`))
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)
}
