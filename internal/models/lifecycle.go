package models

import (
	"time"

	"github.com/google/uuid"
)

// TransitionKind is the deferred lifecycle move to perform
type TransitionKind string

const (
	TransitionActivate TransitionKind = "ACTIVATE"
	TransitionEnd      TransitionKind = "END"
)

// LifecycleTransition is a queued AUTO group move for one user and product
type LifecycleTransition struct {
	ChannelID     int64          `json:"channel_id" db:"channel_id"`
	UserID        int64          `json:"user_id" db:"user_id"`
	Product       string         `json:"product" db:"product"`
	Kind          TransitionKind `json:"kind" db:"kind"`
	EffectiveDate time.Time      `json:"effective_date" db:"effective_date"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}

// IsDue returns true once the local date has reached the effective date
func (t *LifecycleTransition) IsDue(localDate time.Time) bool {
	return !t.EffectiveDate.After(localDate)
}

// CutoverRun records one completed nightly cutover for a channel
type CutoverRun struct {
	ChannelID   int64     `json:"channel_id" db:"channel_id"`
	LocalDate   time.Time `json:"local_date" db:"local_date"`
	RunID       uuid.UUID `json:"run_id" db:"run_id"`
	Activated   int       `json:"activated" db:"activated"`
	Ended       int       `json:"ended" db:"ended"`
	Deferred    int       `json:"deferred" db:"-"`
	CompletedAt time.Time `json:"completed_at" db:"completed_at"`
}
