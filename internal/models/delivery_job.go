package models

import "time"

// JobState is the lifecycle state of a delivery job
type JobState string

const (
	JobStateScheduled  JobState = "SCHEDULED"
	JobStateDispatched JobState = "DISPATCHED"
	JobStateCancelled  JobState = "CANCELLED"
)

// IsTerminal returns true for states a job never leaves
func (s JobState) IsTerminal() bool {
	return s == JobStateDispatched || s == JobStateCancelled
}

// TargetMode selects how a delivery audience is built
type TargetMode string

const (
	TargetModeAll    TargetMode = "ALL"
	TargetModeGroups TargetMode = "GROUPS"
)

// Target describes the audience of a send
type Target struct {
	Mode            TargetMode `json:"target_mode"`
	IncludeGroupIDs []int64    `json:"include_group_ids"`
	ExcludeGroupIDs []int64    `json:"exclude_group_ids"`
}

// Validate checks the target mode.
func (t Target) Validate() error {
	switch t.Mode {
	case TargetModeAll, TargetModeGroups:
		return nil
	default:
		return NewValidationError(CodeInvalidTarget, "unknown target mode %q", t.Mode)
	}
}

// DeliveryJob is a scheduled send of one day's approved content
type DeliveryJob struct {
	ID               int64      `json:"id" db:"id"`
	ChannelID        int64      `json:"channel_id" db:"channel_id"`
	Date             time.Time  `json:"date" db:"date"`
	ScheduledInstant time.Time  `json:"scheduled_instant" db:"scheduled_instant"`
	Timezone         string     `json:"timezone" db:"timezone"`
	Target           Target     `json:"target"`
	State            JobState   `json:"state" db:"state"`
	DispatchedAt     *time.Time `json:"dispatched_at,omitempty" db:"dispatched_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// IsActive returns true while the job is still waiting to be dispatched
func (j *DeliveryJob) IsActive() bool {
	return j.State == JobStateScheduled
}

// IsDue returns true if the job should be dispatched at now
func (j *DeliveryJob) IsDue(now time.Time) bool {
	return j.IsActive() && !j.ScheduledInstant.After(now)
}

// Estimate is the size, and optionally the members, of a resolved audience
type Estimate struct {
	Count   int     `json:"count"`
	UserIDs []int64 `json:"user_ids,omitempty"`
}

// DispatchReport summarizes one dispatched job
type DispatchReport struct {
	JobID      int64 `json:"job_id"`
	Recipients int   `json:"recipients"`
	Sent       int   `json:"sent"`
	Skipped    int   `json:"skipped"`
	Failed     int   `json:"failed"`
}
