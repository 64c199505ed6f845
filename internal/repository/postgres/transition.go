package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Kerhoff/DailyCast/internal/models"
	"github.com/Kerhoff/DailyCast/internal/repository"
)

type transitionRepository struct {
	db *sql.DB
}

// NewTransitionRepository creates a new lifecycle transition repository
func NewTransitionRepository(db *sql.DB) repository.TransitionRepository {
	return &transitionRepository{db: db}
}

func (r *transitionRepository) Upsert(ctx context.Context, t *models.LifecycleTransition) error {
	query := `
		INSERT INTO lifecycle_transitions (channel_id, user_id, product, kind, effective_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (channel_id, user_id, product, kind) DO UPDATE SET
			effective_date = EXCLUDED.effective_date,
			created_at = EXCLUDED.created_at`

	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		t.ChannelID,
		t.UserID,
		t.Product,
		t.Kind,
		t.EffectiveDate,
		t.CreatedAt,
	)
	if err != nil {
		return mapError(err, "failed to queue lifecycle transition")
	}
	return nil
}

func (r *transitionRepository) Delete(ctx context.Context, channelID, userID int64, product string, kind models.TransitionKind) error {
	query := `
		DELETE FROM lifecycle_transitions
		WHERE channel_id = $1 AND user_id = $2 AND product = $3 AND kind = $4`

	if _, err := conn(ctx, r.db).ExecContext(ctx, query, channelID, userID, product, kind); err != nil {
		return fmt.Errorf("failed to delete lifecycle transition: %w", err)
	}
	return nil
}

// ListDue returns transitions effective on or before localDate. END moves
// sort before ACTIVATE moves of the same user.
func (r *transitionRepository) ListDue(ctx context.Context, channelID int64, localDate time.Time) ([]*models.LifecycleTransition, error) {
	query := `
		SELECT channel_id, user_id, product, kind, effective_date, created_at
		FROM lifecycle_transitions
		WHERE channel_id = $1 AND effective_date <= $2
		ORDER BY user_id ASC, product ASC, kind DESC`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, channelID, localDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query due transitions: %w", err)
	}
	defer rows.Close()

	var due []*models.LifecycleTransition
	for rows.Next() {
		t := &models.LifecycleTransition{}
		if err := rows.Scan(
			&t.ChannelID,
			&t.UserID,
			&t.Product,
			&t.Kind,
			&t.EffectiveDate,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		due = append(due, t)
	}

	return due, rows.Err()
}

func (r *transitionRepository) LastCutover(ctx context.Context, channelID int64) (*models.CutoverRun, error) {
	query := `
		SELECT channel_id, local_date, run_id, activated, ended, completed_at
		FROM channel_cutovers
		WHERE channel_id = $1
		ORDER BY local_date DESC
		LIMIT 1`

	run := &models.CutoverRun{}
	err := conn(ctx, r.db).QueryRowContext(ctx, query, channelID).Scan(
		&run.ChannelID,
		&run.LocalDate,
		&run.RunID,
		&run.Activated,
		&run.Ended,
		&run.CompletedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last cutover: %w", err)
	}
	return run, nil
}

func (r *transitionRepository) RecordCutover(ctx context.Context, run *models.CutoverRun) error {
	query := `
		INSERT INTO channel_cutovers (channel_id, local_date, run_id, activated, ended, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (channel_id, local_date) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			activated = channel_cutovers.activated + EXCLUDED.activated,
			ended = channel_cutovers.ended + EXCLUDED.ended,
			completed_at = EXCLUDED.completed_at`

	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		run.ChannelID,
		run.LocalDate,
		run.RunID,
		run.Activated,
		run.Ended,
		run.CompletedAt,
	)
	if err != nil {
		return mapError(err, "failed to record cutover")
	}
	return nil
}
