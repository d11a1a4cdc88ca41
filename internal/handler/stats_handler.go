package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"rating-service/internal/service"
)

// StatsHandler serves the read side: stored summaries, the combined model
// stats and the cross-model activity trend.
type StatsHandler struct {
	stats *service.StatsService
}

func NewStatsHandler(stats *service.StatsService) *StatsHandler {
	return &StatsHandler{stats: stats}
}

func (h *StatsHandler) RegisterRoutes(router chi.Router) {
	router.Route("/stats", func(r chi.Router) {
		r.Get("/", h.GetModelStats)
		r.Get("/daily", h.GetDailySummary)
		r.Get("/range", h.GetSummaryRange)
	})
	router.Get("/trends", h.GetTrends)
}

func (h *StatsHandler) GetDailySummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	summary, err := h.stats.GetDailySummary(r.Context(), q.Get("model_id"), q.Get("day"))
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to get daily summary")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(summary, ""))
}

func (h *StatsHandler) GetSummaryRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	summaries, err := h.stats.GetSummaryRange(r.Context(), q.Get("model_id"), q.Get("from"), q.Get("to"))
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to get summary range")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(summaries, ""))
}

func (h *StatsHandler) GetModelStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.GetModelStats(r.Context(), r.URL.Query().Get("model_id"), parseDays(r))
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to get model stats")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(stats, ""))
}

func (h *StatsHandler) GetTrends(w http.ResponseWriter, r *http.Request) {
	points, err := h.stats.GetTrends(r.Context(), parseDays(r))
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to get trends")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(points, ""))
}

// parseDays reads the optional days parameter. Absent or malformed values
// select the default window; the service clamps the rest.
func parseDays(r *http.Request) int {
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil {
		return 0
	}
	return days
}
