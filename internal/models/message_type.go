package models

import (
	"strings"
	"time"
)

// MessageType holds the theme and context of one channel's content for one day
type MessageType struct {
	ID        int64     `json:"id" db:"id"`
	ChannelID int64     `json:"channel_id" db:"channel_id"`
	Date      time.Time `json:"date" db:"date"`
	Theme     string    `json:"theme" db:"theme"`
	Context   string    `json:"context" db:"context"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsComplete reports whether both theme and context are filled in.
func (m *MessageType) IsComplete() bool {
	return strings.TrimSpace(m.Theme) != "" && strings.TrimSpace(m.Context) != ""
}
