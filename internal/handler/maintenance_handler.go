package handler

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"rating-service/internal/bucketing"
	"rating-service/internal/models"
	"rating-service/internal/service"
	"rating-service/internal/supervisor"
	"rating-service/internal/validation"
)

var errUnauthorized = errors.New("unauthorized")

// MaintenanceHandler exposes the cron triggers. Every route requires
// Authorization: Bearer <CRON_SECRET> when a secret is configured.
type MaintenanceHandler struct {
	sweeper    supervisor.Sweeper
	aggregator *service.Aggregator
	secret     string
	now        func() time.Time
}

func NewMaintenanceHandler(sweeper supervisor.Sweeper, aggregator *service.Aggregator, secret string) *MaintenanceHandler {
	return &MaintenanceHandler{
		sweeper:    sweeper,
		aggregator: aggregator,
		secret:     secret,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (h *MaintenanceHandler) RegisterRoutes(router chi.Router) {
	router.Route("/maintenance", func(r chi.Router) {
		r.Use(h.requireCronSecret)
		r.Post("/sweep", h.Sweep)
		r.Post("/audit", h.Audit)
	})
}

func (h *MaintenanceHandler) requireCronSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.secret != "" {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) != 1 {
				respondWithError(w, http.StatusUnauthorized, errUnauthorized, "Missing or invalid cron secret")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type sweepResult struct {
	Deleted int    `json:"deleted"`
	Margin  string `json:"margin"`
}

// Sweep purges expired ledger entries. The optional margin parameter is a
// Go duration such as "24h", no smaller than models.MinSweepMargin.
func (h *MaintenanceHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	margin := h.sweeper.DefaultMargin()
	if raw := r.URL.Query().Get("margin"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < models.MinSweepMargin {
			respondWithError(w, http.StatusBadRequest,
				fmt.Errorf("%w: margin must be a duration of at least %s", service.ErrInvalidInput, models.MinSweepMargin), "Invalid margin")
			return
		}
		margin = d
	}

	deleted, err := h.sweeper.SweepExpiredEntries(r.Context(), margin)
	if err != nil {
		respondWithError(w, http.StatusServiceUnavailable, err, "Sweep failed")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(sweepResult{Deleted: deleted, Margin: margin.String()}, "Sweep completed"))
}

// Audit compares a stored daily summary with its raw rows. day defaults to
// yesterday, the latest day no longer receiving votes.
func (h *MaintenanceHandler) Audit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resourceID := q.Get("model_id")
	if !validation.IsResourceID(resourceID) {
		respondWithError(w, http.StatusBadRequest, fmt.Errorf("%w: invalid model_id", service.ErrInvalidInput), "Invalid model_id")
		return
	}
	day := q.Get("day")
	if day == "" {
		day = bucketing.DayOf(h.now().AddDate(0, 0, -1))
	} else if _, err := bucketing.ParseDay(day); err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Errorf("%w: day must be YYYY-MM-DD", service.ErrInvalidInput), "Invalid day")
		return
	}

	report, err := h.aggregator.Audit(r.Context(), resourceID, day)
	switch {
	case errors.Is(err, service.ErrAggregationInconsistency):
		respondWithJSON(w, http.StatusConflict, Response{
			Success: false,
			Data:    report,
			Error:   err.Error(),
			Message: "Stored summary does not match raw submissions",
		})
	case err != nil:
		respondWithError(w, getStatusCode(err), err, "Audit failed")
	default:
		respondWithJSON(w, http.StatusOK, successResponse(report, "Summary consistent"))
	}
}
