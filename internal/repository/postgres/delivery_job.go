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

type deliveryJobRepository struct {
	db *sql.DB
}

// NewDeliveryJobRepository creates a new delivery job repository
func NewDeliveryJobRepository(db *sql.DB) repository.DeliveryJobRepository {
	return &deliveryJobRepository{db: db}
}

const jobColumns = `id, channel_id, date, scheduled_instant, timezone, target_mode,
	include_group_ids, exclude_group_ids, state, dispatched_at, created_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (*models.DeliveryJob, error) {
	job := &models.DeliveryJob{}
	var include, exclude pq.Int64Array
	err := row.Scan(
		&job.ID,
		&job.ChannelID,
		&job.Date,
		&job.ScheduledInstant,
		&job.Timezone,
		&job.Target.Mode,
		&include,
		&exclude,
		&job.State,
		&job.DispatchedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	job.Target.IncludeGroupIDs = []int64(include)
	job.Target.ExcludeGroupIDs = []int64(exclude)
	return job, err
}

func (r *deliveryJobRepository) Create(ctx context.Context, job *models.DeliveryJob) (*models.DeliveryJob, error) {
	query := `
		INSERT INTO delivery_jobs (channel_id, date, scheduled_instant, timezone, target_mode,
			include_group_ids, exclude_group_ids, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id, created_at, updated_at`

	job.State = models.JobStateScheduled
	// the columns are NOT NULL and pq encodes a nil slice as NULL
	if job.Target.IncludeGroupIDs == nil {
		job.Target.IncludeGroupIDs = []int64{}
	}
	if job.Target.ExcludeGroupIDs == nil {
		job.Target.ExcludeGroupIDs = []int64{}
	}

	err := conn(ctx, r.db).QueryRowContext(ctx, query,
		job.ChannelID,
		job.Date,
		job.ScheduledInstant,
		job.Timezone,
		job.Target.Mode,
		pq.Array(job.Target.IncludeGroupIDs),
		pq.Array(job.Target.ExcludeGroupIDs),
		job.State,
		time.Now(),
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "failed to create delivery job")
	}

	return job, nil
}

func (r *deliveryJobRepository) GetByID(ctx context.Context, channelID, id int64) (*models.DeliveryJob, error) {
	query := `SELECT ` + jobColumns + `
		FROM delivery_jobs
		WHERE id = $1 AND channel_id = $2`

	job, err := scanJob(conn(ctx, r.db).QueryRowContext(ctx, query, id, channelID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get delivery job: %w", err)
	}
	return job, nil
}

func (r *deliveryJobRepository) GetActive(ctx context.Context, channelID int64, date time.Time) (*models.DeliveryJob, error) {
	query := `SELECT ` + jobColumns + `
		FROM delivery_jobs
		WHERE channel_id = $1 AND date = $2 AND state = $3`

	job, err := scanJob(conn(ctx, r.db).QueryRowContext(ctx, query, channelID, date, models.JobStateScheduled))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active delivery job: %w", err)
	}
	return job, nil
}

func (r *deliveryJobRepository) CancelActive(ctx context.Context, channelID int64, date time.Time) (bool, error) {
	query := `
		UPDATE delivery_jobs
		SET state = $3, updated_at = $4
		WHERE channel_id = $1 AND date = $2 AND state = $5`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		channelID,
		date,
		models.JobStateCancelled,
		time.Now(),
		models.JobStateScheduled,
	)
	if err != nil {
		return false, fmt.Errorf("failed to cancel delivery job: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ReferencesGroup reports whether a SCHEDULED job of the channel includes or
// excludes the group.
func (r *deliveryJobRepository) ReferencesGroup(ctx context.Context, channelID, groupID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM delivery_jobs
			WHERE channel_id = $1 AND state = $3
				AND $2 = ANY(include_group_ids || exclude_group_ids)
		)`

	var exists bool
	err := conn(ctx, r.db).QueryRowContext(ctx, query, channelID, groupID, models.JobStateScheduled).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check group references: %w", err)
	}
	return exists, nil
}

func (r *deliveryJobRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.DeliveryJob, error) {
	query := `SELECT ` + jobColumns + `
		FROM delivery_jobs
		WHERE state = $1 AND scheduled_instant <= $2
		ORDER BY scheduled_instant ASC
		LIMIT $3`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, models.JobStateScheduled, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due delivery jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.DeliveryJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func (r *deliveryJobRepository) MarkDispatched(ctx context.Context, id int64, at time.Time) (bool, error) {
	query := `
		UPDATE delivery_jobs
		SET state = $2, dispatched_at = $3, updated_at = $3
		WHERE id = $1 AND state = $4`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		id,
		models.JobStateDispatched,
		at,
		models.JobStateScheduled,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark delivery job dispatched: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}
