package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Kerhoff/DailyCast/internal/models"
	"github.com/Kerhoff/DailyCast/internal/repository"
)

type contentCellRepository struct {
	db *sql.DB
}

// NewContentCellRepository creates a new content cell repository
func NewContentCellRepository(db *sql.DB) repository.ContentCellRepository {
	return &contentCellRepository{db: db}
}

const cellColumns = `c.id, c.message_type_id, c.user_level, c.child_level, c.message_text,
	c.mom_audio_text, c.mom_audio_url, c.child_audio_text, c.child_audio_url,
	c.diary_url, c.voca_url, c.status, c.created_at, c.updated_at`

func scanCell(row interface{ Scan(...any) error }) (*models.ContentCell, error) {
	cell := &models.ContentCell{}
	err := row.Scan(
		&cell.ID,
		&cell.MessageTypeID,
		&cell.UserLevel,
		&cell.ChildLevel,
		&cell.MessageText,
		&cell.MomAudio.Text,
		&cell.MomAudio.URL,
		&cell.ChildAudio.Text,
		&cell.ChildAudio.URL,
		&cell.DiaryURL,
		&cell.VocaURL,
		&cell.Status,
		&cell.CreatedAt,
		&cell.UpdatedAt,
	)
	return cell, err
}

func (r *contentCellRepository) GetByID(ctx context.Context, channelID, id int64) (*models.ContentCell, error) {
	query := `SELECT ` + cellColumns + `
		FROM content_cells c
		INNER JOIN message_types mt ON mt.id = c.message_type_id
		WHERE c.id = $1 AND mt.channel_id = $2`

	cell, err := scanCell(conn(ctx, r.db).QueryRowContext(ctx, query, id, channelID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get content cell: %w", err)
	}
	return cell, nil
}

func (r *contentCellRepository) GetByLevels(ctx context.Context, messageTypeID int64, userLevel, childLevel models.Level) (*models.ContentCell, error) {
	query := `SELECT ` + cellColumns + `
		FROM content_cells c
		WHERE c.message_type_id = $1 AND c.user_level = $2 AND c.child_level = $3`

	cell, err := scanCell(conn(ctx, r.db).QueryRowContext(ctx, query, messageTypeID, userLevel, childLevel))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get content cell by levels: %w", err)
	}
	return cell, nil
}

func (r *contentCellRepository) ListByMessageType(ctx context.Context, messageTypeID int64) ([]*models.ContentCell, error) {
	query := `SELECT ` + cellColumns + `
		FROM content_cells c
		WHERE c.message_type_id = $1
		ORDER BY c.user_level ASC, c.child_level ASC`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, messageTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query content cells: %w", err)
	}
	defer rows.Close()

	var cells []*models.ContentCell
	for rows.Next() {
		cell, err := scanCell(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content cell: %w", err)
		}
		cells = append(cells, cell)
	}

	return cells, rows.Err()
}

func (r *contentCellRepository) Upsert(ctx context.Context, cell *models.ContentCell) (*models.ContentCell, error) {
	query := `
		INSERT INTO content_cells (message_type_id, user_level, child_level, message_text,
			mom_audio_text, mom_audio_url, child_audio_text, child_audio_url,
			diary_url, voca_url, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		ON CONFLICT (message_type_id, user_level, child_level) DO UPDATE SET
			message_text = EXCLUDED.message_text,
			mom_audio_text = EXCLUDED.mom_audio_text,
			mom_audio_url = EXCLUDED.mom_audio_url,
			child_audio_text = EXCLUDED.child_audio_text,
			child_audio_url = EXCLUDED.child_audio_url,
			diary_url = EXCLUDED.diary_url,
			voca_url = EXCLUDED.voca_url,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at`

	err := conn(ctx, r.db).QueryRowContext(ctx, query,
		cell.MessageTypeID,
		cell.UserLevel,
		cell.ChildLevel,
		cell.MessageText,
		cell.MomAudio.Text,
		cell.MomAudio.URL,
		cell.ChildAudio.Text,
		cell.ChildAudio.URL,
		cell.DiaryURL,
		cell.VocaURL,
		cell.Status,
		time.Now(),
	).Scan(&cell.ID, &cell.CreatedAt, &cell.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "failed to upsert content cell")
	}

	return cell, nil
}

func (r *contentCellRepository) Update(ctx context.Context, cell *models.ContentCell) (*models.ContentCell, error) {
	query := `
		UPDATE content_cells
		SET message_text = $2, mom_audio_text = $3, mom_audio_url = $4,
			child_audio_text = $5, child_audio_url = $6, diary_url = $7,
			voca_url = $8, status = $9, updated_at = $10
		WHERE id = $1
		RETURNING updated_at`

	err := conn(ctx, r.db).QueryRowContext(ctx, query,
		cell.ID,
		cell.MessageText,
		cell.MomAudio.Text,
		cell.MomAudio.URL,
		cell.ChildAudio.Text,
		cell.ChildAudio.URL,
		cell.DiaryURL,
		cell.VocaURL,
		cell.Status,
		time.Now(),
	).Scan(&cell.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "failed to update content cell")
	}

	return cell, nil
}

func (r *contentCellRepository) DemoteApproved(ctx context.Context, messageTypeID int64) (int, error) {
	query := `
		UPDATE content_cells
		SET status = $2, updated_at = $3
		WHERE message_type_id = $1 AND status = $4`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		messageTypeID,
		models.CellStatusGenerated,
		time.Now(),
		models.CellStatusApproved,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to demote approved cells: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

func (r *contentCellRepository) CountByStatus(ctx context.Context, messageTypeID int64, status models.CellStatus) (int, error) {
	query := `SELECT COUNT(*) FROM content_cells WHERE message_type_id = $1 AND status = $2`

	var n int
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, messageTypeID, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count content cells: %w", err)
	}
	return n, nil
}
