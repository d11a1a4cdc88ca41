package models

import "time"

// DailySummary is derived from all RatingSubmission rows of one
// (ResourceID, Day). A nil average means no submission rated that column.
type DailySummary struct {
	ResourceID      string    `json:"model_id" db:"resource_id"`
	Day             string    `json:"day" db:"day"`
	TotalVotes      int       `json:"total_votes" db:"total_votes"`
	AvgPerformance  *float64  `json:"avg_performance" db:"avg_performance"`
	AvgSpeed        *float64  `json:"avg_speed" db:"avg_speed"`
	AvgIntelligence *float64  `json:"avg_intelligence" db:"avg_intelligence"`
	AvgReliability  *float64  `json:"avg_reliability" db:"avg_reliability"`
	ComputedAt      time.Time `json:"computed_at" db:"computed_at"`
}

// ActivityPoint is one day of the cross-model activity trend built from the
// event archive. Corrections count as separate submissions there.
type ActivityPoint struct {
	Day             string   `json:"day"`
	ModelsRated     uint64   `json:"models_rated"`
	Submissions     uint64   `json:"submissions"`
	AvgPerformance  *float64 `json:"avg_performance"`
	AvgSpeed        *float64 `json:"avg_speed"`
	AvgIntelligence *float64 `json:"avg_intelligence"`
	AvgReliability  *float64 `json:"avg_reliability"`
}
