package model

import (
	"bytes"
	"encoding/json"
)

type TaskStatus string

const (
	TaskPending      TaskStatus = "pending"
	TaskProcessing   TaskStatus = "processing"
	TaskSTTComplete  TaskStatus = "stt_complete"
	TaskFormComplete TaskStatus = "form_complete"
	TaskComplete     TaskStatus = "complete"
	TaskFailed       TaskStatus = "failed"
)

// IsTerminal reports whether no further status updates are expected.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskComplete || s == TaskFailed
}

// Task mirrors the backend's /queue/status/{task_id} response. Only the
// backend mutates it; the client keeps the latest observed copy.
type Task struct {
	TaskID            string     `json:"task_id"`
	Status            TaskStatus `json:"status"`
	QueuePosition     *int       `json:"queue_position,omitempty"`
	UsersAhead        *int       `json:"users_ahead,omitempty"`
	CurrentPhase      string     `json:"current_phase,omitempty"`
	Message           string     `json:"message,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	ProgressPercent   int        `json:"progress_percent,omitempty"`
	TranscriptPath    string     `json:"transcript_path,omitempty"`
	FormPath          string     `json:"form_path,omitempty"`
	ProfileRatingPath string     `json:"profile_rating_path,omitempty"`
	IntroRatingPath   string     `json:"intro_rating_path,omitempty"`
	Data              *TaskData  `json:"data,omitempty"`
}

// Position returns queue_position, falling back to users_ahead.
func (t Task) Position() (int, bool) {
	if t.QueuePosition != nil && *t.QueuePosition > 0 {
		return *t.QueuePosition, true
	}
	if t.UsersAhead != nil && *t.UsersAhead > 0 {
		return *t.UsersAhead, true
	}
	return 0, false
}

// TaskData is the inline result block the backend attaches to finished
// phases. Ratings stay raw; the rating package interprets them.
type TaskData struct {
	TranscriptContent string          `json:"transcript_content,omitempty"`
	FormData          json.RawMessage `json:"form_data,omitempty"`
	ProfileRating     json.RawMessage `json:"profile_rating,omitempty"`
	IntroRating       json.RawMessage `json:"intro_rating,omitempty"`
}

func (d *TaskData) Empty() bool {
	return d == nil || (d.TranscriptContent == "" && !Present(d.FormData) &&
		!Present(d.ProfileRating) && !Present(d.IntroRating))
}

// Present reports whether raw holds a non-null JSON value.
func Present(raw json.RawMessage) bool {
	s := bytes.TrimSpace(raw)
	return len(s) > 0 && !bytes.Equal(s, []byte("null"))
}
