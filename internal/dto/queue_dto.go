package dto

import (
	"github.com/fadilmartias/introeval-web/internal/model"
)

type SubmitResponseDTO struct {
	TaskID        string `json:"task_id" validate:"required"`
	QueuePosition *int   `json:"queue_position"`
}

type MyResultsDTO struct {
	HasResults      bool         `json:"has_results"`
	LatestCompleted *model.Task  `json:"latest_completed,omitempty"`
	AllTasks        []model.Task `json:"all_tasks,omitempty"`
}

// QueueStatsDTO is the system-wide view from /queue/stats.
type QueueStatsDTO struct {
	CurrentPhase          string   `json:"current_phase"`
	STTQueueSize          int      `json:"stt_queue_size"`
	EvaluationQueueSize   int      `json:"evaluation_queue_size"`
	TotalTasks            int      `json:"total_tasks"`
	CompletedTasks        int      `json:"completed_tasks"`
	FailedTasks           int      `json:"failed_tasks"`
	ProcessingActive      bool     `json:"processing_active"`
	PhaseSwitchCount      int      `json:"phase_switch_count"`
	AverageProcessingTime *float64 `json:"average_processing_time,omitempty"`
}

type RatingCheckStatusDTO struct {
	ProfileReady bool     `json:"profile_ready"`
	IntroReady   bool     `json:"intro_ready"`
	ProfileFiles []string `json:"profile_files"`
	IntroFiles   []string `json:"intro_files"`
}

type UserProfileDTO struct {
	Username   string `json:"username"`
	RollNumber string `json:"roll_number"`
	Role       string `json:"role,omitempty"`
	Email      string `json:"email,omitempty"`
}
