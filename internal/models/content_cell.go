package models

import (
	"fmt"
	"strings"
	"time"
)

// Level is a parent or child proficiency level, 1 through 3
type Level int

const (
	MinLevel   Level = 1
	MaxLevel   Level = 3
	LevelCount       = int(MaxLevel)
)

// Valid reports whether l is within 1..3.
func (l Level) Valid() bool { return l >= MinLevel && l <= MaxLevel }

// CellStatus is the approval state of a content cell
type CellStatus string

const (
	CellStatusEmpty     CellStatus = "EMPTY"
	CellStatusGenerated CellStatus = "GENERATED"
	CellStatusApproved  CellStatus = "APPROVED"
)

// AudioRole selects which of the two narrations of a cell is meant
type AudioRole string

const (
	AudioRoleMom   AudioRole = "mom"
	AudioRoleChild AudioRole = "child"
)

// AudioTrack is a narration script and its synthesized file
type AudioTrack struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// ContentCell is the generated message for one (user level, child level) pair
type ContentCell struct {
	ID            int64      `json:"id" db:"id"`
	MessageTypeID int64      `json:"message_type_id" db:"message_type_id"`
	UserLevel     Level      `json:"user_level" db:"user_level"`
	ChildLevel    Level      `json:"child_level" db:"child_level"`
	MessageText   string     `json:"message_text" db:"message_text"`
	MomAudio      AudioTrack `json:"mom_audio"`
	ChildAudio    AudioTrack `json:"child_audio"`
	DiaryURL      string     `json:"diary_url" db:"diary_url"`
	VocaURL       *string    `json:"voca_url,omitempty" db:"voca_url"`
	Status        CellStatus `json:"status" db:"status"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// IsApproved returns true if the cell is approved
func (c *ContentCell) IsApproved() bool {
	return c.Status == CellStatusApproved
}

// Approvable checks the content requirements for approval.
func (c *ContentCell) Approvable() error {
	if strings.TrimSpace(c.MessageText) == "" {
		return NewValidationError(CodeEmptyMessageText, "cell %d has no message text", c.ID)
	}
	if strings.TrimSpace(c.DiaryURL) == "" {
		return NewValidationError(CodeEmptyDiaryURL, "cell %d has no diary url", c.ID)
	}
	return nil
}

// Demote moves an approved cell back to GENERATED. It reports whether the
// status changed.
func (c *ContentCell) Demote() bool {
	if c.Status != CellStatusApproved {
		return false
	}
	c.Status = CellStatusGenerated
	return true
}

// Audio returns the track for role.
func (c *ContentCell) Audio(role AudioRole) *AudioTrack {
	if role == AudioRoleChild {
		return &c.ChildAudio
	}
	return &c.MomAudio
}

// CheckLevels validates a (user level, child level) pair.
func CheckLevels(userLevel, childLevel Level) error {
	if !userLevel.Valid() || !childLevel.Valid() {
		return NewValidationError(CodeInvalidLevel, "levels (%d, %d) must be within %d..%d", userLevel, childLevel, MinLevel, MaxLevel)
	}
	return nil
}

// Matrix is the fixed 3x3 grid of cells for one MessageType. A nil entry is
// an EMPTY cell.
type Matrix [LevelCount][LevelCount]*ContentCell

// NewMatrix places cells into their grid positions. Duplicate or out of range
// level pairs are rejected.
func NewMatrix(cells []*ContentCell) (Matrix, error) {
	var m Matrix
	for _, c := range cells {
		if err := CheckLevels(c.UserLevel, c.ChildLevel); err != nil {
			return Matrix{}, err
		}
		slot := &m[c.UserLevel-1][c.ChildLevel-1]
		if *slot != nil {
			return Matrix{}, fmt.Errorf("duplicate cell for levels (%d, %d)", c.UserLevel, c.ChildLevel)
		}
		*slot = c
	}
	return m, nil
}

// At returns the cell at the given levels, or nil when it is empty or the
// levels are out of range.
func (m *Matrix) At(userLevel, childLevel Level) *ContentCell {
	if !userLevel.Valid() || !childLevel.Valid() {
		return nil
	}
	return m[userLevel-1][childLevel-1]
}

// StatusAt returns the status at the given levels; absent cells are EMPTY.
func (m *Matrix) StatusAt(userLevel, childLevel Level) CellStatus {
	if c := m.At(userLevel, childLevel); c != nil {
		return c.Status
	}
	return CellStatusEmpty
}

// Counts tallies cells per status over all nine positions.
func (m *Matrix) Counts() map[CellStatus]int {
	counts := map[CellStatus]int{
		CellStatusEmpty:     0,
		CellStatusGenerated: 0,
		CellStatusApproved:  0,
	}
	for u := MinLevel; u <= MaxLevel; u++ {
		for c := MinLevel; c <= MaxLevel; c++ {
			counts[m.StatusAt(u, c)]++
		}
	}
	return counts
}

// Cells returns the non-empty cells in row-major order.
func (m *Matrix) Cells() []*ContentCell {
	var out []*ContentCell
	for _, row := range m {
		for _, c := range row {
			if c != nil {
				out = append(out, c)
			}
		}
	}
	return out
}
