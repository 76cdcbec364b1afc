package delinquency

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/lumenfin/loanledger/internal/loan"
)

type memoryAccounts struct {
	accounts map[int64]*loan.Account
}

func (s *memoryAccounts) Load(ctx context.Context, loanID int64) (*loan.Account, error) {
	return s.accounts[loanID], nil
}

type memoryBuckets struct {
	buckets map[int64]*Bucket
}

func (s *memoryBuckets) Bucket(ctx context.Context, id int64) (*Bucket, error) {
	b, ok := s.buckets[id]
	if !ok {
		return nil, ErrBucketNotFound
	}
	return b, nil
}

func delinquencyRouter(t *testing.T, acc *loan.Account) *chi.Mux {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(
		logger,
		&memoryAccounts{accounts: map[int64]*loan.Account{acc.ID: acc}},
		&memoryBuckets{buckets: map[int64]*Bucket{1: referenceBucket()}},
		nil,
		Options{},
		nil,
	)
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestGetDelinquencyView(t *testing.T) {
	r := delinquencyRouter(t, referenceAccount())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/loans/1/delinquency?asOf=2023-05-31", nil))

	require.Equal(t, 200, rec.Code)
	var view resultView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, 120, view.DelinquentDays)
	require.Equal(t, "1250.00", view.DelinquentAmount)
	require.Len(t, view.Ranges, 3)
	require.Equal(t, 61, view.Ranges[2].MinAgeDays)
	require.Nil(t, view.Ranges[2].MaxAgeDays)
	require.Equal(t, "624.00", view.Ranges[2].Amount)
}

func TestGetDelinquencyBadAsOf(t *testing.T) {
	r := delinquencyRouter(t, referenceAccount())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/loans/1/delinquency?asOf=31-05-2023", nil))

	require.Equal(t, 400, rec.Code)
}

func TestGetDelinquencyBucketRequired(t *testing.T) {
	acc := referenceAccount()
	acc.DelinquencyBucketID = nil

	r := delinquencyRouter(t, acc)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/loans/1/delinquency?asOf=2023-05-31", nil))

	require.Equal(t, 422, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "error.delinquency.bucket.required", body["code"])
}
