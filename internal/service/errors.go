package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rating-service/internal/models"
	"rating-service/internal/ratelimit"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrAggregationInconsistency means a stored summary disagrees with a
	// recompute of its raw rows. It indicates a bug and is never patched.
	ErrAggregationInconsistency = errors.New("aggregation inconsistency")
	ErrFeatureDisabled          = errors.New("feature disabled")
)

type Status string

const (
	StatusAccepted    Status = "accepted"
	StatusRateLimited Status = "rejected_rate_limited"
	StatusInvalid     Status = "rejected_invalid"
	StatusFailed      Status = "failed"
)

// SubmissionResult is the outcome of a submission and is returned for every
// outcome. A rate limited submission is an outcome, not an error; invalid
// input and failures also return an error wrapping ErrInvalidInput or
// ErrStoreUnavailable.
type SubmissionResult struct {
	Status    Status               `json:"status"`
	Remaining int                  `json:"remaining"`
	Reason    string               `json:"reason,omitempty"`
	Summary   *models.DailySummary `json:"summary,omitempty"`
	Comment   *models.Comment      `json:"comment,omitempty"`
}

func invalid(format string, args ...interface{}) (*SubmissionResult, error) {
	reason := fmt.Sprintf(format, args...)
	return &SubmissionResult{Status: StatusInvalid, Reason: reason}, fmt.Errorf("%w: %s", ErrInvalidInput, reason)
}

func rateLimited() (*SubmissionResult, error) {
	return &SubmissionResult{Status: StatusRateLimited, Remaining: 0, Reason: ErrRateLimited.Error()}, nil
}

// failed maps err to ErrStoreUnavailable unless it is a configuration fault.
func failed(step string, err error) (*SubmissionResult, error) {
	result := &SubmissionResult{Status: StatusFailed, Reason: step + " failed"}
	if errors.Is(err, ratelimit.ErrUnknownAction) {
		return result, fmt.Errorf("failed to %s: %w", step, err)
	}
	return result, fmt.Errorf("%w: failed to %s: %w", ErrStoreUnavailable, step, err)
}

// withTimeout bounds one store call.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
