package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/DailyCast/internal/models"
)

// ScheduleRequest is the operator input of a delivery
type ScheduleRequest struct {
	ChannelID int64
	Date      time.Time
	Hour      int
	Minute    int
	Timezone  string
	Target    models.Target
}

// Schedule replaces the active delivery job of a channel day. The send time
// is resolved in the named timezone and must lie in the future. A concurrent
// schedule for the same day that wins the race makes this call fail with
// ErrConflict.
func (s *Service) Schedule(ctx context.Context, req ScheduleRequest) (*models.DeliveryJob, error) {
	if _, err := s.channel(ctx, req.ChannelID); err != nil {
		return nil, err
	}
	if err := req.Target.Validate(); err != nil {
		return nil, err
	}
	date := models.DateOf(req.Date)

	var job *models.DeliveryJob
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.tx.LockKey(ctx, contentKey(req.ChannelID, date)); err != nil {
			return err
		}

		if err := s.requireApproved(ctx, req.ChannelID, date); err != nil {
			return err
		}

		instant, err := resolveInstant(date, req.Hour, req.Minute, req.Timezone)
		if err != nil {
			return err
		}
		if !instant.After(s.now()) {
			return models.NewValidationError(models.CodePastInstant, "%s is not in the future", instant.Format(time.RFC3339))
		}

		if req.Target.Mode == models.TargetModeGroups {
			ids := append(append([]int64(nil), req.Target.IncludeGroupIDs...), req.Target.ExcludeGroupIDs...)
			if err := s.lockGroups(ctx, req.ChannelID, ids...); err != nil {
				return err
			}
			if _, err := s.checkGroups(ctx, req.ChannelID, req.Target.IncludeGroupIDs, (*models.UserGroup).CanInclude, models.CodeIncludeGroupType); err != nil {
				return err
			}
			if _, err := s.checkGroups(ctx, req.ChannelID, req.Target.ExcludeGroupIDs, (*models.UserGroup).CanExclude, models.CodeExcludeGroupType); err != nil {
				return err
			}
		}

		if _, err := s.Jobs.CancelActive(ctx, req.ChannelID, date); err != nil {
			return err
		}

		job, err = s.Jobs.Create(ctx, &models.DeliveryJob{
			ChannelID:        req.ChannelID,
			Date:             date,
			ScheduledInstant: instant.UTC(),
			Timezone:         req.Timezone,
			Target:           req.Target,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.JobScheduled()
	s.logger.WithFields(logrus.Fields{
		"channel_id": req.ChannelID,
		"date":       models.FormatDate(date),
		"job_id":     job.ID,
		"instant":    job.ScheduledInstant.Format(time.RFC3339),
	}).Info("Scheduled delivery")
	return job, nil
}

func (s *Service) requireApproved(ctx context.Context, channelID int64, date time.Time) error {
	mt, err := s.MessageTypes.GetByDate(ctx, channelID, date)
	if err != nil {
		return fmt.Errorf("failed to get message type: %w", err)
	}

	approved := 0
	if mt != nil {
		if approved, err = s.Cells.CountByStatus(ctx, mt.ID, models.CellStatusApproved); err != nil {
			return fmt.Errorf("failed to count approved cells: %w", err)
		}
	}
	if approved == 0 {
		return models.NewValidationError(models.CodeNoApprovedContent, "no approved content for %s", models.FormatDate(date))
	}
	return nil
}

// resolveInstant combines a date and a wall clock time in an IANA timezone.
func resolveInstant(date time.Time, hour, minute int, timezone string) (time.Time, error) {
	if strings.TrimSpace(timezone) == "" {
		return time.Time{}, models.NewValidationError(models.CodeInvalidTimezone, "timezone is required")
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, models.NewValidationError(models.CodeInvalidTimezone, "unknown timezone %q", timezone)
	}
	return models.LocalInstant(date, hour, minute, loc)
}

// Cancel cancels the active job of a channel day. It reports whether a job
// was cancelled; no job is not an error.
func (s *Service) Cancel(ctx context.Context, channelID int64, date time.Time) (bool, error) {
	date = models.DateOf(date)

	cancelled, err := s.Jobs.CancelActive(ctx, channelID, date)
	if err != nil {
		return false, err
	}
	if cancelled {
		s.logger.WithFields(logrus.Fields{
			"channel_id": channelID,
			"date":       models.FormatDate(date),
		}).Info("Cancelled delivery")
	}
	return cancelled, nil
}

// ActiveJob returns the SCHEDULED job of a channel day, or nil.
func (s *Service) ActiveJob(ctx context.Context, channelID int64, date time.Time) (*models.DeliveryJob, error) {
	job, err := s.Jobs.GetActive(ctx, channelID, models.DateOf(date))
	if err != nil {
		return nil, err
	}
	return job, nil
}
