package delinquency

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lumenfin/loanledger/internal/loan"
)

// AccountSource loads loan aggregates for classification.
type AccountSource interface {
	Load(ctx context.Context, loanID int64) (*loan.Account, error)
}

// BucketSource resolves bucket configuration by id.
type BucketSource interface {
	Bucket(ctx context.Context, id int64) (*Bucket, error)
}

// Clock provides the injected business date for aging.
type Clock func() time.Time

// Handler serves delinquency classifications on demand.
type Handler struct {
	logger   *slog.Logger
	accounts AccountSource
	buckets  BucketSource
	cache    *Cache
	opts     Options
	bizDate  Clock
}

// NewHandler constructs the delinquency HTTP handler.
func NewHandler(logger *slog.Logger, accounts AccountSource, buckets BucketSource, cache *Cache, opts Options, bizDate Clock) *Handler {
	if bizDate == nil {
		bizDate = func() time.Time { return time.Now().UTC() }
	}
	return &Handler{logger: logger, accounts: accounts, buckets: buckets, cache: cache, opts: opts, bizDate: bizDate}
}

// Routes mounts the delinquency read endpoint.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/loans/{loanID}/delinquency", h.getDelinquency)
}

type rangeView struct {
	MinAgeDays int    `json:"minAgeDays"`
	MaxAgeDays *int   `json:"maxAgeDays"`
	Amount     string `json:"amount"`
}

type resultView struct {
	DelinquentDays   int         `json:"delinquentDays"`
	DelinquentAmount string      `json:"delinquentAmount"`
	Ranges           []rangeView `json:"ranges"`
}

func (h *Handler) getDelinquency(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "loanID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "error.loan.id.invalid")
		return
	}
	asOf := h.bizDate()
	if raw := r.URL.Query().Get("asOf"); raw != "" {
		asOf, err = time.Parse("2006-01-02", raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "error.delinquency.as.of.invalid")
			return
		}
	}
	key, err := h.cache.Key(r.Context(), id, asOf)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "error.internal")
		return
	}
	var result Result
	err = h.cache.Fetch(r.Context(), key, &result, func(ctx context.Context) (Result, error) {
		return h.classify(ctx, id, asOf)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrBucketRequired):
			h.writeError(w, http.StatusUnprocessableEntity, "error.delinquency.bucket.required")
		case errors.Is(err, ErrInvalidBucket):
			h.writeError(w, http.StatusUnprocessableEntity, "error.delinquency.bucket.invalid")
		default:
			h.logger.Error("classify delinquency", slog.Int64("loan_id", id), slog.Any("error", err))
			h.writeError(w, http.StatusInternalServerError, "error.internal")
		}
		return
	}
	view := resultView{
		DelinquentDays:   result.DelinquentDays,
		DelinquentAmount: result.DelinquentAmount.StringFixed(2),
		Ranges:           make([]rangeView, 0, len(result.Ranges)),
	}
	for _, rt := range result.Ranges {
		view.Ranges = append(view.Ranges, rangeView{
			MinAgeDays: rt.Range.MinAgeDays,
			MaxAgeDays: rt.Range.MaxAgeDays,
			Amount:     rt.Amount.StringFixed(2),
		})
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) classify(ctx context.Context, loanID int64, asOf time.Time) (Result, error) {
	acc, err := h.accounts.Load(ctx, loanID)
	if err != nil {
		return Result{}, err
	}
	var bucket *Bucket
	if acc.DelinquencyBucketID != nil {
		bucket, err = h.buckets.Bucket(ctx, *acc.DelinquencyBucketID)
		if err != nil {
			return Result{}, err
		}
	}
	return Classify(acc, bucket, asOf, h.opts)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code string) {
	h.writeJSON(w, status, map[string]string{"code": code})
}
