package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Kerhoff/DailyCast/internal/models"
	"github.com/Kerhoff/DailyCast/internal/repository"
)

type channelRepository struct {
	db *sql.DB
}

// NewChannelRepository creates a new channel repository
func NewChannelRepository(db *sql.DB) repository.ChannelRepository {
	return &channelRepository{db: db}
}

func (r *channelRepository) GetByID(ctx context.Context, id int64) (*models.Channel, error) {
	query := `
		SELECT id, name, timezone, language, created_at
		FROM channels
		WHERE id = $1`

	ch := &models.Channel{}
	err := conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&ch.ID,
		&ch.Name,
		&ch.Timezone,
		&ch.Language,
		&ch.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}

	return ch, nil
}

func (r *channelRepository) List(ctx context.Context) ([]*models.Channel, error) {
	query := `
		SELECT id, name, timezone, language, created_at
		FROM channels
		ORDER BY id ASC`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	var channels []*models.Channel
	for rows.Next() {
		ch := &models.Channel{}
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Timezone, &ch.Language, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, ch)
	}

	return channels, rows.Err()
}
