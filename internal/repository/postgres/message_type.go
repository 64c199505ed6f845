package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Kerhoff/DailyCast/internal/models"
	"github.com/Kerhoff/DailyCast/internal/repository"
)

type messageTypeRepository struct {
	db *sql.DB
}

// NewMessageTypeRepository creates a new message type repository
func NewMessageTypeRepository(db *sql.DB) repository.MessageTypeRepository {
	return &messageTypeRepository{db: db}
}

const messageTypeColumns = `id, channel_id, date, theme, context, created_at, updated_at`

func scanMessageType(row interface{ Scan(...any) error }) (*models.MessageType, error) {
	mt := &models.MessageType{}
	err := row.Scan(
		&mt.ID,
		&mt.ChannelID,
		&mt.Date,
		&mt.Theme,
		&mt.Context,
		&mt.CreatedAt,
		&mt.UpdatedAt,
	)
	return mt, err
}

func (r *messageTypeRepository) Create(ctx context.Context, mt *models.MessageType) (*models.MessageType, error) {
	query := `
		INSERT INTO message_types (channel_id, date, theme, context, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	now := time.Now()
	err := conn(ctx, r.db).QueryRowContext(ctx, query,
		mt.ChannelID,
		mt.Date,
		mt.Theme,
		mt.Context,
		now,
		now,
	).Scan(&mt.ID, &mt.CreatedAt, &mt.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "failed to create message type")
	}

	return mt, nil
}

func (r *messageTypeRepository) GetByID(ctx context.Context, channelID, id int64) (*models.MessageType, error) {
	query := `SELECT ` + messageTypeColumns + `
		FROM message_types
		WHERE id = $1 AND channel_id = $2`

	mt, err := scanMessageType(conn(ctx, r.db).QueryRowContext(ctx, query, id, channelID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message type: %w", err)
	}
	return mt, nil
}

func (r *messageTypeRepository) GetByDate(ctx context.Context, channelID int64, date time.Time) (*models.MessageType, error) {
	query := `SELECT ` + messageTypeColumns + `
		FROM message_types
		WHERE channel_id = $1 AND date = $2`

	mt, err := scanMessageType(conn(ctx, r.db).QueryRowContext(ctx, query, channelID, date))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message type by date: %w", err)
	}
	return mt, nil
}

func (r *messageTypeRepository) Update(ctx context.Context, mt *models.MessageType) (*models.MessageType, error) {
	query := `
		UPDATE message_types
		SET theme = $3, context = $4, updated_at = $5
		WHERE id = $1 AND channel_id = $2
		RETURNING updated_at`

	err := conn(ctx, r.db).QueryRowContext(ctx, query,
		mt.ID,
		mt.ChannelID,
		mt.Theme,
		mt.Context,
		time.Now(),
	).Scan(&mt.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "failed to update message type")
	}

	return mt, nil
}
