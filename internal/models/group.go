package models

import "time"

// GroupType distinguishes system-maintained groups from operator groups
type GroupType string

const (
	GroupTypeAutoActive GroupType = "AUTO_ACTIVE"
	GroupTypeAutoEnded  GroupType = "AUTO_ENDED"
	GroupTypeCustom     GroupType = "CUSTOM"
)

// IsAuto returns true for the lifecycle groups managed by the cutover
func (t GroupType) IsAuto() bool {
	return t == GroupTypeAutoActive || t == GroupTypeAutoEnded
}

// UserGroup is an audience group of one channel
type UserGroup struct {
	ID          int64     `json:"id" db:"id"`
	ChannelID   int64     `json:"channel_id" db:"channel_id"`
	Title       string    `json:"title" db:"title"`
	Type        GroupType `json:"type" db:"type"`
	Product     *string   `json:"product,omitempty" db:"product"`
	MemberCount int       `json:"member_count" db:"member_count"`
	FriendCount int       `json:"friend_count" db:"friend_count"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// CanInclude reports whether the group may appear in an include list
func (g *UserGroup) CanInclude() bool {
	return g.Type == GroupTypeAutoActive || g.Type == GroupTypeCustom
}

// CanExclude reports whether the group may appear in an exclude list
func (g *UserGroup) CanExclude() bool {
	return g.Type == GroupTypeAutoEnded || g.Type == GroupTypeCustom
}

// AutoGroupTitle is the display title of a lifecycle group.
func AutoGroupTitle(t GroupType, product string) string {
	if t == GroupTypeAutoEnded {
		return product + " (ended)"
	}
	return product + " (active)"
}

// GroupMembership places one user into one group
type GroupMembership struct {
	GroupID      int64     `json:"group_id" db:"group_id"`
	UserID       int64     `json:"user_id" db:"user_id"`
	PhoneNumber  string    `json:"phone_number" db:"phone_number"`
	IsFriend     bool      `json:"is_friend" db:"is_friend"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"`
}

// ChannelUser is a user known to a channel through its messaging account
type ChannelUser struct {
	ChannelID   int64     `json:"channel_id" db:"channel_id"`
	UserID      int64     `json:"user_id" db:"user_id"`
	PhoneNumber string    `json:"phone_number" db:"phone_number"`
	IsFriend    bool      `json:"is_friend" db:"is_friend"`
	UserLevel   *Level    `json:"user_level,omitempty" db:"user_level"`
	ChildLevel  *Level    `json:"child_level,omitempty" db:"child_level"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Levels returns the user's content levels when both are known.
func (u *ChannelUser) Levels() (Level, Level, bool) {
	if u.UserLevel == nil || u.ChildLevel == nil {
		return 0, 0, false
	}
	return *u.UserLevel, *u.ChildLevel, true
}

// AddMembersResult reports the outcome of adding members by phone number
type AddMembersResult struct {
	Added          int      `json:"added"`
	AlreadyMembers int      `json:"already_members"`
	UnknownPhones  []string `json:"unknown_phones,omitempty"`
}
