package model

import "time"

// Keys of the non-authoritative per-session client cache.
const (
	StateTheme               = "theme"
	StateLastTaskID          = "lastTaskId"
	StateLastCompletedTask   = "lastCompletedTask"
	StateShowFluidTransition = "showFluidTransition"
)

type ClientState struct {
	SessionID string    `gorm:"type:varchar(64);primaryKey" json:"session_id"`
	Key       string    `gorm:"type:varchar(64);primaryKey" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *ClientState) TableName() string {
	return "client_states"
}
