package jobs

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
)

// Handler exposes HTTP entry points for triggering batch runs and for
// queue observability. Triggers are idempotent: enqueueing the same date
// twice re-runs a job whose effects are no-ops the second time.
type Handler struct {
	client    *Client
	inspector *asynq.Inspector
	logger    *slog.Logger
	validator *validator.Validate
}

// NewHandler constructs the jobs HTTP handler.
func NewHandler(client *Client, inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	return &Handler{
		client:    client,
		inspector: inspector,
		logger:    logger,
		validator: validator.New(),
	}
}

// Routes registers job routes on the provided router.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Post("/accrual", h.trigger("accrual", func(r *http.Request, p DatePayload) (*asynq.TaskInfo, error) {
			return h.client.EnqueueAccrual(r.Context(), p)
		}))
		r.Post("/cob", h.trigger("cob", func(r *http.Request, p DatePayload) (*asynq.TaskInfo, error) {
			return h.client.EnqueueCOB(r.Context(), p)
		}))
		r.Post("/delinquency-refresh", h.trigger("delinquency-refresh", func(r *http.Request, p DatePayload) (*asynq.TaskInfo, error) {
			return h.client.EnqueueDelinquencyRefresh(r.Context(), p)
		}))
	})
}

func (h *Handler) trigger(name string, enqueue func(*http.Request, DatePayload) (*asynq.TaskInfo, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload DatePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		if err := h.validator.Struct(payload); err != nil {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		info, err := enqueue(r, payload)
		if err != nil {
			h.logger.Error("enqueue "+name, slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"task_id": info.ID,
			"queue":   info.Queue,
			"date":    payload.Date,
		})
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"queue":"default","pending":0}`))
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	pending := 0
	queueName := QueueDefault
	if info != nil {
		pending = int(info.Pending)
		queueName = info.Queue
	}
	_, _ = w.Write([]byte(`{"queue":"` + queueName + `","pending":` + strconv.Itoa(pending) + `}`))
}
