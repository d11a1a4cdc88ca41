package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rating-service/internal/fingerprint"
	"rating-service/internal/service"
)

// maxBodyBytes bounds submission bodies; a comment is at most a few KB.
const maxBodyBytes = 16 << 10

// SubmissionHandler serves votes and comments.
type SubmissionHandler struct {
	ratings  *service.RatingService
	comments *service.CommentService
}

func NewSubmissionHandler(ratings *service.RatingService, comments *service.CommentService) *SubmissionHandler {
	return &SubmissionHandler{ratings: ratings, comments: comments}
}

func (h *SubmissionHandler) RegisterRoutes(router chi.Router) {
	router.Post("/votes", h.SubmitVote)
	router.Route("/comments", func(r chi.Router) {
		r.Post("/", h.SubmitComment)
		r.Get("/", h.ListComments)
		r.Get("/search", h.SearchComments)
	})
}

// SubmitVote handles POST /votes with body
// {"model_id", "ratings": {...}, "issue_type"}.
func (h *SubmissionHandler) SubmitVote(w http.ResponseWriter, r *http.Request) {
	var req service.RatingRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	req.Metadata = fingerprint.FromRequest(r)

	result, err := h.ratings.SubmitRating(r.Context(), req)
	respondWithResult(w, http.StatusOK, result, err)
}

// SubmitComment handles POST /comments with body {"model_id", "comment_text"}.
func (h *SubmissionHandler) SubmitComment(w http.ResponseWriter, r *http.Request) {
	var req service.CommentRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	req.Metadata = fingerprint.FromRequest(r)

	result, err := h.comments.SubmitComment(r.Context(), req)
	respondWithResult(w, http.StatusCreated, result, err)
}

func (h *SubmissionHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.comments.ListComments(r.Context(), r.URL.Query().Get("model_id"))
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to list comments")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(comments, ""))
}

func (h *SubmissionHandler) SearchComments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	comments, err := h.comments.SearchComments(r.Context(), q.Get("model_id"), q.Get("q"))
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to search comments")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(comments, ""))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode request body: %w", err)
	}
	return nil
}
