package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/lumenfin/loanledger/internal/delinquency"
	"github.com/lumenfin/loanledger/internal/ledger"
	"github.com/lumenfin/loanledger/internal/observability"
	"github.com/lumenfin/loanledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Metrics            *observability.Metrics
	LedgerHandler      *ledger.Handler
	DelinquencyHandler *delinquency.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router for the operational surface: health,
// read projections and the idempotent job-trigger entry points.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.LedgerHandler != nil {
		params.LedgerHandler.Routes(r)
	}
	if params.DelinquencyHandler != nil {
		params.DelinquencyHandler.Routes(r)
	}
	if params.JobHandler != nil {
		params.JobHandler.Routes(r)
	}

	return r
}
