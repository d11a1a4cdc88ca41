package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"rating-service/internal/repository"
	"rating-service/internal/service"
	"rating-service/internal/util"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		util.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response. Server side failures are logged
// with their cause; the client only sees a generic error.
func respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	if statusCode >= http.StatusInternalServerError {
		util.Error("HTTP error response",
			util.ErrorField(err),
			util.Int("status_code", statusCode),
			util.String("message", message),
		)
		err = errors.New(http.StatusText(statusCode))
	} else {
		util.Debug("HTTP error response",
			util.ErrorField(err),
			util.Int("status_code", statusCode),
		)
	}
	respondWithJSON(w, statusCode, errorResponse(err, message))
}

// respondWithResult maps a submission outcome to its status code.
func respondWithResult(w http.ResponseWriter, acceptedStatus int, result *service.SubmissionResult, err error) {
	switch result.Status {
	case service.StatusAccepted:
		respondWithJSON(w, acceptedStatus, successResponse(result, "Submission accepted"))
	case service.StatusRateLimited:
		respondWithJSON(w, http.StatusTooManyRequests, Response{
			Success: false,
			Data:    result,
			Error:   service.ErrRateLimited.Error(),
			Message: "You have already submitted within the current window",
		})
	case service.StatusInvalid:
		respondWithJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Data:    result,
			Error:   result.Reason,
			Message: "Invalid submission",
		})
	default:
		if err == nil {
			err = errors.New(result.Reason)
		}
		respondWithError(w, getStatusCode(err), err, "Submission failed")
	}
}

// getStatusCode determines the appropriate HTTP status code for an error
func getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAggregationInconsistency):
		return http.StatusConflict
	case errors.Is(err, service.ErrStoreUnavailable), errors.Is(err, service.ErrFeatureDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
