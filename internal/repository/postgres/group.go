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

type groupRepository struct {
	db *sql.DB
}

// NewGroupRepository creates a new user group repository
func NewGroupRepository(db *sql.DB) repository.GroupRepository {
	return &groupRepository{db: db}
}

// groupSelect returns groups with their live member and friend counts.
const groupSelect = `
	SELECT g.id, g.channel_id, g.title, g.type, g.product, g.created_at, g.updated_at,
		COUNT(m.user_id) AS member_count,
		COUNT(m.user_id) FILTER (WHERE m.is_friend) AS friend_count
	FROM user_groups g
	LEFT JOIN group_memberships m ON m.group_id = g.id`

const groupGroupBy = `
	GROUP BY g.id`

func scanGroup(row interface{ Scan(...any) error }) (*models.UserGroup, error) {
	g := &models.UserGroup{}
	err := row.Scan(
		&g.ID,
		&g.ChannelID,
		&g.Title,
		&g.Type,
		&g.Product,
		&g.CreatedAt,
		&g.UpdatedAt,
		&g.MemberCount,
		&g.FriendCount,
	)
	return g, err
}

func (r *groupRepository) Create(ctx context.Context, group *models.UserGroup) (*models.UserGroup, error) {
	query := `
		INSERT INTO user_groups (channel_id, title, type, product, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id, created_at, updated_at`

	err := conn(ctx, r.db).QueryRowContext(ctx, query,
		group.ChannelID,
		group.Title,
		group.Type,
		group.Product,
		time.Now(),
	).Scan(&group.ID, &group.CreatedAt, &group.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "failed to create group")
	}

	return group, nil
}

// EnsureAuto creates the lifecycle group on first use and returns it.
func (r *groupRepository) EnsureAuto(ctx context.Context, channelID int64, groupType models.GroupType, product string) (*models.UserGroup, error) {
	insert := `
		INSERT INTO user_groups (channel_id, title, type, product, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (channel_id, type, product) WHERE type <> 'CUSTOM' DO NOTHING`

	q := conn(ctx, r.db)
	if _, err := q.ExecContext(ctx, insert,
		channelID,
		models.AutoGroupTitle(groupType, product),
		groupType,
		product,
		time.Now(),
	); err != nil {
		return nil, fmt.Errorf("failed to ensure auto group: %w", err)
	}

	query := groupSelect + `
		WHERE g.channel_id = $1 AND g.type = $2 AND g.product = $3` + groupGroupBy

	g, err := scanGroup(q.QueryRowContext(ctx, query, channelID, groupType, product))
	if err != nil {
		return nil, fmt.Errorf("failed to load auto group: %w", err)
	}
	return g, nil
}

func (r *groupRepository) GetByID(ctx context.Context, channelID, id int64) (*models.UserGroup, error) {
	query := groupSelect + `
		WHERE g.id = $1 AND g.channel_id = $2` + groupGroupBy

	g, err := scanGroup(conn(ctx, r.db).QueryRowContext(ctx, query, id, channelID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return g, nil
}

func (r *groupRepository) GetByIDs(ctx context.Context, channelID int64, ids []int64) ([]*models.UserGroup, error) {
	query := groupSelect + `
		WHERE g.channel_id = $1 AND g.id = ANY($2)` + groupGroupBy + `
		ORDER BY g.id ASC`

	return r.list(ctx, query, channelID, pq.Array(ids))
}

func (r *groupRepository) ListByType(ctx context.Context, channelID int64, groupType models.GroupType) ([]*models.UserGroup, error) {
	query := groupSelect + `
		WHERE g.channel_id = $1 AND g.type = $2` + groupGroupBy + `
		ORDER BY g.id ASC`

	return r.list(ctx, query, channelID, groupType)
}

func (r *groupRepository) List(ctx context.Context, channelID int64) ([]*models.UserGroup, error) {
	query := groupSelect + `
		WHERE g.channel_id = $1` + groupGroupBy + `
		ORDER BY g.type ASC, g.title ASC`

	return r.list(ctx, query, channelID)
}

func (r *groupRepository) list(ctx context.Context, query string, args ...any) ([]*models.UserGroup, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.UserGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}

	return groups, rows.Err()
}

func (r *groupRepository) Rename(ctx context.Context, channelID, id int64, title string) error {
	query := `
		UPDATE user_groups
		SET title = $3, updated_at = $4
		WHERE id = $1 AND channel_id = $2`

	result, err := conn(ctx, r.db).ExecContext(ctx, query, id, channelID, title, time.Now())
	if err != nil {
		return fmt.Errorf("failed to rename group: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("group %d", id))
}

func (r *groupRepository) Delete(ctx context.Context, channelID, id int64) error {
	query := `DELETE FROM user_groups WHERE id = $1 AND channel_id = $2 AND type = $3`

	result, err := conn(ctx, r.db).ExecContext(ctx, query, id, channelID, models.GroupTypeCustom)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("group %d", id))
}
