package ledger

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

type memoryAccountSource struct {
	accounts map[int64]*loan.Account
}

func (s *memoryAccountSource) Load(ctx context.Context, loanID int64) (*loan.Account, error) {
	acc, ok := s.accounts[loanID]
	if !ok {
		return nil, ErrLoanNotFound
	}
	return acc, nil
}

func testRouter(accounts map[int64]*loan.Account) *chi.Mux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, &memoryAccountSource{accounts: accounts})
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestGetLoanProjection(t *testing.T) {
	svc := testService()
	acc := fourByThreeThousand()
	_, err := svc.Repay(acc, dec(3000), date(2023, 2, 1), "")
	require.NoError(t, err)

	r := testRouter(map[int64]*loan.Account{1: acc})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/loans/1", nil))

	require.Equal(t, 200, rec.Code)
	var view loanView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, int64(1), view.ID)
	require.Equal(t, "9000", view.TotalOutstanding)
	require.Len(t, view.Installments, 4)
	require.Equal(t, 1, view.Transactions)
}

func TestGetLoanNotFound(t *testing.T) {
	r := testRouter(map[int64]*loan.Account{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/loans/99", nil))

	require.Equal(t, 404, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "error.loan.not.found", body["code"])
}

func TestGetPostingLines(t *testing.T) {
	svc := testService()
	acc := fourByThreeThousand()
	acc.Accounting = loan.AccountingCashBased
	repay, err := svc.Repay(acc, dec(3000), date(2023, 2, 1), "")
	require.NoError(t, err)

	r := testRouter(map[int64]*loan.Account{1: acc})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/loans/1/transactions/"+repay.ID.String()+"/posting", nil))

	require.Equal(t, 200, rec.Code)
	var body struct {
		Lines []struct {
			Role      string `json:"Role"`
			Direction string `json:"Direction"`
		} `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Lines, 2)
}

func TestGetPostingUnknownTransaction(t *testing.T) {
	acc := fourByThreeThousand()
	r := testRouter(map[int64]*loan.Account{1: acc})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/loans/1/transactions/00000000-0000-0000-0000-000000000001/posting", nil))

	require.Equal(t, 404, rec.Code)
}
