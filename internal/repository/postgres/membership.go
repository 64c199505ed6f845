package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Kerhoff/DailyCast/internal/models"
	"github.com/Kerhoff/DailyCast/internal/repository"
)

type membershipRepository struct {
	db *sql.DB
}

// NewMembershipRepository creates a new group membership repository
func NewMembershipRepository(db *sql.DB) repository.MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) Get(ctx context.Context, groupID, userID int64) (*models.GroupMembership, error) {
	query := `
		SELECT group_id, user_id, phone_number, is_friend, registered_at
		FROM group_memberships
		WHERE group_id = $1 AND user_id = $2`

	m := &models.GroupMembership{}
	err := conn(ctx, r.db).QueryRowContext(ctx, query, groupID, userID).Scan(
		&m.GroupID,
		&m.UserID,
		&m.PhoneNumber,
		&m.IsFriend,
		&m.RegisteredAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

func (r *membershipRepository) Add(ctx context.Context, m *models.GroupMembership) (bool, error) {
	query := `
		INSERT INTO group_memberships (group_id, user_id, phone_number, is_friend, registered_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (group_id, user_id) DO NOTHING`

	if m.RegisteredAt.IsZero() {
		m.RegisteredAt = time.Now()
	}

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		m.GroupID,
		m.UserID,
		m.PhoneNumber,
		m.IsFriend,
		m.RegisteredAt,
	)
	if err != nil {
		return false, mapError(err, "failed to add membership")
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *membershipRepository) Remove(ctx context.Context, groupID, userID int64) (bool, error) {
	query := `DELETE FROM group_memberships WHERE group_id = $1 AND user_id = $2`

	result, err := conn(ctx, r.db).ExecContext(ctx, query, groupID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove membership: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// FriendUserIDs returns the distinct friend members of the given groups.
func (r *membershipRepository) FriendUserIDs(ctx context.Context, groupIDs []int64) ([]int64, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT user_id
		FROM group_memberships
		WHERE group_id = ANY($1) AND is_friend
		ORDER BY user_id ASC`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, pq.Array(groupIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query friend members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan friend member: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// SyncFriend copies the user's friend flag, and the phone number when one is
// given, onto every membership in the channel.
func (r *membershipRepository) SyncFriend(ctx context.Context, channelID, userID int64, phone string, isFriend bool) error {
	query := `
		UPDATE group_memberships m
		SET is_friend = $3,
			phone_number = COALESCE(NULLIF($4::text, ''), m.phone_number)
		FROM user_groups g
		WHERE g.id = m.group_id AND g.channel_id = $1 AND m.user_id = $2`

	if _, err := conn(ctx, r.db).ExecContext(ctx, query, channelID, userID, isFriend, phone); err != nil {
		return fmt.Errorf("failed to sync friend status: %w", err)
	}
	return nil
}
