package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lumenfin/loanledger/internal/loan"
	"github.com/lumenfin/loanledger/internal/posting"
)

// AccountSource loads loan aggregates for read projections.
type AccountSource interface {
	Load(ctx context.Context, loanID int64) (*loan.Account, error)
}

// Handler serves read projections of the loan ledger.
type Handler struct {
	logger   *slog.Logger
	accounts AccountSource
}

// NewHandler constructs the ledger HTTP handler.
func NewHandler(logger *slog.Logger, accounts AccountSource) *Handler {
	return &Handler{logger: logger, accounts: accounts}
}

// Routes mounts the ledger read endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/loans/{loanID}", h.getLoan)
	r.Get("/loans/{loanID}/transactions/{txID}/posting", h.getPosting)
}

type installmentView struct {
	Seq         int             `json:"seq"`
	DueDate     string          `json:"dueDate"`
	Kind        string          `json:"kind"`
	Due         loan.Amounts    `json:"due"`
	Paid        loan.Amounts    `json:"paid"`
	Waived      loan.Amounts    `json:"waived"`
	Outstanding json.RawMessage `json:"outstanding"`
}

type loanView struct {
	ID               int64             `json:"id"`
	Status           loan.Status       `json:"status"`
	ChargedOff       bool              `json:"chargedOff"`
	TotalOutstanding string            `json:"totalOutstanding"`
	TotalOverpaid    string            `json:"totalOverpaid"`
	Installments     []installmentView `json:"installments"`
	Transactions     int               `json:"transactions"`
}

func (h *Handler) getLoan(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.loadLoan(w, r)
	if !ok {
		return
	}
	view := loanView{
		ID:               acc.ID,
		Status:           acc.Status,
		ChargedOff:       acc.ChargedOff,
		TotalOutstanding: acc.TotalOutstanding().Total().String(),
		TotalOverpaid:    acc.TotalOverpaid().String(),
		Transactions:     len(acc.Transactions),
	}
	for _, ins := range acc.Installments {
		outstanding, _ := json.Marshal(ins.TotalOutstanding())
		view.Installments = append(view.Installments, installmentView{
			Seq:         ins.Seq,
			DueDate:     ins.DueDate.Format("2006-01-02"),
			Kind:        string(ins.Kind),
			Due:         ins.Due,
			Paid:        ins.Paid,
			Waived:      ins.Waived,
			Outstanding: outstanding,
		})
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) getPosting(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.loadLoan(w, r)
	if !ok {
		return
	}
	txID, err := uuid.Parse(chi.URLParam(r, "txID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "error.transaction.id.invalid")
		return
	}
	tx, err := acc.Transaction(txID)
	if err != nil {
		writeError(w, http.StatusNotFound, "error.transaction.not.found")
		return
	}
	lines, err := posting.Derive(tx, acc.Accounting)
	if err != nil {
		h.logger.Error("derive posting", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "error.posting.unbalanced")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactionId": tx.ID, "lines": lines})
}

func (h *Handler) loadLoan(w http.ResponseWriter, r *http.Request) (*loan.Account, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "loanID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "error.loan.id.invalid")
		return nil, false
	}
	acc, err := h.accounts.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrLoanNotFound) {
			writeError(w, http.StatusNotFound, "error.loan.not.found")
			return nil, false
		}
		h.logger.Error("load loan", slog.Int64("loan_id", id), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "error.internal")
		return nil, false
	}
	return acc, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"code": code})
}
