package models

import "time"

// Issue tags a voter may attach to a rating.
const (
	IssueHallucination = "hallucination"
	IssueRefused       = "refused"
	IssueOffTopic      = "off-topic"
	IssueSlow          = "slow"
	IssueError         = "error"
	IssueOther         = "other"
)

// Ratings holds the optional rating columns. Bounds are enforced by the
// validate tags before a submission reaches the store.
type Ratings struct {
	Performance  *int `json:"performance,omitempty" validate:"omitempty,min=1,max=4"`
	Speed        *int `json:"speed,omitempty" validate:"omitempty,min=1,max=5"`
	Intelligence *int `json:"intelligence,omitempty" validate:"omitempty,min=1,max=5"`
	Reliability  *int `json:"reliability,omitempty" validate:"omitempty,min=1,max=4"`
}

func (r Ratings) IsEmpty() bool {
	return r.Performance == nil && r.Speed == nil && r.Intelligence == nil && r.Reliability == nil
}

// RatingSubmission is the raw vote keyed by (ResourceID, Day, Identity).
// A second submission for the same key replaces the first.
type RatingSubmission struct {
	ResourceID string    `json:"model_id" db:"resource_id"`
	Day        string    `json:"day" db:"day"`
	Identity   string    `json:"-" db:"identity"`
	Ratings    Ratings   `json:"ratings"`
	IssueTag   string    `json:"issue_type,omitempty" db:"issue_tag"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// RatingEvent is published for every accepted rating and archived for
// activity analytics. It carries no identity.
type RatingEvent struct {
	EventID     string    `json:"event_id"`
	ResourceID  string    `json:"model_id"`
	Day         string    `json:"day"`
	Ratings     Ratings   `json:"ratings"`
	IssueTag    string    `json:"issue_type,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// IntPtr is a convenience for building Ratings literals.
func IntPtr(v int) *int {
	return &v
}
