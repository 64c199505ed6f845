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

type channelUserRepository struct {
	db *sql.DB
}

// NewChannelUserRepository creates a new channel user repository
func NewChannelUserRepository(db *sql.DB) repository.ChannelUserRepository {
	return &channelUserRepository{db: db}
}

const channelUserColumns = `channel_id, user_id, phone_number, is_friend, user_level, child_level, updated_at`

func scanChannelUser(row interface{ Scan(...any) error }) (*models.ChannelUser, error) {
	u := &models.ChannelUser{}
	err := row.Scan(
		&u.ChannelID,
		&u.UserID,
		&u.PhoneNumber,
		&u.IsFriend,
		&u.UserLevel,
		&u.ChildLevel,
		&u.UpdatedAt,
	)
	return u, err
}

func (r *channelUserRepository) Get(ctx context.Context, channelID, userID int64) (*models.ChannelUser, error) {
	query := `SELECT ` + channelUserColumns + `
		FROM channel_users
		WHERE channel_id = $1 AND user_id = $2`

	u, err := scanChannelUser(conn(ctx, r.db).QueryRowContext(ctx, query, channelID, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get channel user: %w", err)
	}
	return u, nil
}

func (r *channelUserRepository) GetMany(ctx context.Context, channelID int64, userIDs []int64) ([]*models.ChannelUser, error) {
	query := `SELECT ` + channelUserColumns + `
		FROM channel_users
		WHERE channel_id = $1 AND user_id = ANY($2)
		ORDER BY user_id ASC`

	return r.list(ctx, query, channelID, pq.Array(userIDs))
}

func (r *channelUserRepository) FindByPhones(ctx context.Context, channelID int64, phones []string) ([]*models.ChannelUser, error) {
	query := `SELECT ` + channelUserColumns + `
		FROM channel_users
		WHERE channel_id = $1 AND phone_number = ANY($2)
		ORDER BY user_id ASC`

	return r.list(ctx, query, channelID, pq.Array(phones))
}

func (r *channelUserRepository) list(ctx context.Context, query string, args ...any) ([]*models.ChannelUser, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query channel users: %w", err)
	}
	defer rows.Close()

	var users []*models.ChannelUser
	for rows.Next() {
		u, err := scanChannelUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// Upsert writes the friend flag and, when given, the phone number. Levels are
// left untouched.
func (r *channelUserRepository) Upsert(ctx context.Context, u *models.ChannelUser) (*models.ChannelUser, error) {
	query := `
		INSERT INTO channel_users (channel_id, user_id, phone_number, is_friend, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (channel_id, user_id) DO UPDATE SET
			phone_number = CASE WHEN EXCLUDED.phone_number = '' THEN channel_users.phone_number ELSE EXCLUDED.phone_number END,
			is_friend = EXCLUDED.is_friend,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + channelUserColumns

	saved, err := scanChannelUser(conn(ctx, r.db).QueryRowContext(ctx, query,
		u.ChannelID,
		u.UserID,
		u.PhoneNumber,
		u.IsFriend,
		time.Now(),
	))
	if err != nil {
		return nil, mapError(err, "failed to upsert channel user")
	}
	return saved, nil
}

func (r *channelUserRepository) SetLevels(ctx context.Context, channelID, userID int64, userLevel, childLevel models.Level) error {
	query := `
		UPDATE channel_users
		SET user_level = $3, child_level = $4, updated_at = $5
		WHERE channel_id = $1 AND user_id = $2`

	result, err := conn(ctx, r.db).ExecContext(ctx, query, channelID, userID, userLevel, childLevel, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set user levels: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("channel user %d", userID))
}
