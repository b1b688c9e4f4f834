package dto

import "encoding/json"

// StudentAnalyticsDTO is the analytics dashboard's view of one student, with
// every score annotated by its band.
type StudentAnalyticsDTO struct {
	RollNumber         string                `json:"roll_number"`
	PerformanceSummary PerformanceSummaryDTO `json:"performance_summary"`
	ScoreTrends        []ScoreTrendDTO       `json:"score_trends"`
	Strengths          []string              `json:"strengths"`
	ImprovementAreas   []string              `json:"improvement_areas"`
	LatestFeedback     json.RawMessage       `json:"latest_feedback,omitempty"`
	IntroRatings       []RatedEvaluationDTO  `json:"intro_ratings"`
	ProfileRatings     []RatedEvaluationDTO  `json:"profile_ratings"`
}

type PerformanceSummaryDTO struct {
	OverallAverage   *float64 `json:"overall_average"`
	TotalAssessments int      `json:"total_assessments"`
	HighestScore     *float64 `json:"highest_score"`
	Band             *BandDTO `json:"band,omitempty"`
}

type ScoreTrendDTO struct {
	Type       string    `json:"type"`
	Scores     []float64 `json:"scores"`
	Timestamps []string  `json:"timestamps"`
	Latest     float64   `json:"latest"`
	Band       BandDTO   `json:"band"`
}

type RatedEvaluationDTO struct {
	Timestamp string          `json:"timestamp"`
	Score     float64         `json:"score"`
	Band      BandDTO         `json:"band"`
	Data      json.RawMessage `json:"data"`
}

type BandDTO struct {
	Class string `json:"class"`
	Label string `json:"label"`
}
