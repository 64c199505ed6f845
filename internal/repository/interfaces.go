package repository

import (
	"context"
	"time"

	"github.com/Kerhoff/DailyCast/internal/models"
)

// Lookups named Get* return (nil, nil) when the row does not exist. Every
// query is scoped by channel ID; a row of another channel is reported as
// absent.

// TxManager runs work in a transaction and serializes it per key
type TxManager interface {
	// RunInTx executes fn in a transaction carried by the context. Calls
	// nested inside fn join the outer transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	// LockKey blocks until the transaction in ctx holds the lock for key.
	// The lock is released when the transaction ends.
	LockKey(ctx context.Context, key string) error
}

// ChannelRepository defines read access to channels
type ChannelRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Channel, error)
	List(ctx context.Context) ([]*models.Channel, error)
}

// MessageTypeRepository defines the interface for daily theme/context records
type MessageTypeRepository interface {
	Create(ctx context.Context, mt *models.MessageType) (*models.MessageType, error)
	GetByID(ctx context.Context, channelID, id int64) (*models.MessageType, error)
	GetByDate(ctx context.Context, channelID int64, date time.Time) (*models.MessageType, error)
	Update(ctx context.Context, mt *models.MessageType) (*models.MessageType, error)
}

// ContentCellRepository defines the interface for matrix cell operations
type ContentCellRepository interface {
	GetByID(ctx context.Context, channelID, id int64) (*models.ContentCell, error)
	GetByLevels(ctx context.Context, messageTypeID int64, userLevel, childLevel models.Level) (*models.ContentCell, error)
	ListByMessageType(ctx context.Context, messageTypeID int64) ([]*models.ContentCell, error)
	Upsert(ctx context.Context, cell *models.ContentCell) (*models.ContentCell, error)
	Update(ctx context.Context, cell *models.ContentCell) (*models.ContentCell, error)
	DemoteApproved(ctx context.Context, messageTypeID int64) (int, error)
	CountByStatus(ctx context.Context, messageTypeID int64, status models.CellStatus) (int, error)
}

// ChannelUserRepository defines the interface for the channel friend registry
type ChannelUserRepository interface {
	Get(ctx context.Context, channelID, userID int64) (*models.ChannelUser, error)
	GetMany(ctx context.Context, channelID int64, userIDs []int64) ([]*models.ChannelUser, error)
	FindByPhones(ctx context.Context, channelID int64, phones []string) ([]*models.ChannelUser, error)
	Upsert(ctx context.Context, user *models.ChannelUser) (*models.ChannelUser, error)
	SetLevels(ctx context.Context, channelID, userID int64, userLevel, childLevel models.Level) error
}

// GroupRepository defines the interface for audience groups
type GroupRepository interface {
	Create(ctx context.Context, group *models.UserGroup) (*models.UserGroup, error)
	EnsureAuto(ctx context.Context, channelID int64, groupType models.GroupType, product string) (*models.UserGroup, error)
	GetByID(ctx context.Context, channelID, id int64) (*models.UserGroup, error)
	GetByIDs(ctx context.Context, channelID int64, ids []int64) ([]*models.UserGroup, error)
	ListByType(ctx context.Context, channelID int64, groupType models.GroupType) ([]*models.UserGroup, error)
	List(ctx context.Context, channelID int64) ([]*models.UserGroup, error)
	Rename(ctx context.Context, channelID, id int64, title string) error
	Delete(ctx context.Context, channelID, id int64) error
}

// MembershipRepository defines the interface for group membership rows
type MembershipRepository interface {
	Get(ctx context.Context, groupID, userID int64) (*models.GroupMembership, error)
	// Add inserts the membership and reports false when it already existed.
	Add(ctx context.Context, m *models.GroupMembership) (bool, error)
	// Remove deletes the membership and reports false when there was none.
	Remove(ctx context.Context, groupID, userID int64) (bool, error)
	FriendUserIDs(ctx context.Context, groupIDs []int64) ([]int64, error)
	// SyncFriend mirrors the friend flag and a non-empty phone number.
	SyncFriend(ctx context.Context, channelID, userID int64, phone string, isFriend bool) error
}

// TransitionRepository defines the interface for the lifecycle cutover queue
type TransitionRepository interface {
	Upsert(ctx context.Context, t *models.LifecycleTransition) error
	Delete(ctx context.Context, channelID, userID int64, product string, kind models.TransitionKind) error
	ListDue(ctx context.Context, channelID int64, localDate time.Time) ([]*models.LifecycleTransition, error)
	LastCutover(ctx context.Context, channelID int64) (*models.CutoverRun, error)
	RecordCutover(ctx context.Context, run *models.CutoverRun) error
}

// DeliveryJobRepository defines the interface for scheduled sends
type DeliveryJobRepository interface {
	// Create fails with models.ErrConflict when another job is already
	// SCHEDULED for the same channel and date.
	Create(ctx context.Context, job *models.DeliveryJob) (*models.DeliveryJob, error)
	GetByID(ctx context.Context, channelID, id int64) (*models.DeliveryJob, error)
	GetActive(ctx context.Context, channelID int64, date time.Time) (*models.DeliveryJob, error)
	CancelActive(ctx context.Context, channelID int64, date time.Time) (bool, error)
	// ReferencesGroup reports whether a SCHEDULED job targets the group.
	ReferencesGroup(ctx context.Context, channelID, groupID int64) (bool, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.DeliveryJob, error)
	// MarkDispatched moves a SCHEDULED job to DISPATCHED and reports false if
	// the job was no longer SCHEDULED.
	MarkDispatched(ctx context.Context, id int64, at time.Time) (bool, error)
}
