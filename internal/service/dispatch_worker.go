package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/DailyCast/internal/models"
)

// dispatchBatch caps the jobs claimed per tick.
const dispatchBatch = 20

// StartDispatchWorker runs a background loop that checks for due delivery
// jobs every interval and sends them through sender. It blocks until the
// context is cancelled, so it should be launched in a separate goroutine.
func (s *Service) StartDispatchWorker(ctx context.Context, sender Sender, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Dispatch worker started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Dispatch worker stopped")
			return
		case <-ticker.C:
			if _, err := s.DispatchDue(ctx, sender); err != nil {
				s.logger.Errorf("Dispatch finished with errors: %v", err)
			}
		}
	}
}

// DispatchDue claims every due job and delivers it. A job is claimed by
// moving it to DISPATCHED first, so a job is sent at most once even with
// several workers.
func (s *Service) DispatchDue(ctx context.Context, sender Sender) ([]*models.DispatchReport, error) {
	now := s.now()
	jobs, err := s.Jobs.ListDue(ctx, now, dispatchBatch)
	if err != nil {
		return nil, fmt.Errorf("failed to get due jobs: %w", err)
	}

	var reports []*models.DispatchReport
	var result *multierror.Error
	for _, job := range jobs {
		claimed, err := s.Jobs.MarkDispatched(ctx, job.ID, now)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("job %d: %w", job.ID, err))
			continue
		}
		if !claimed {
			continue
		}
		s.metrics.JobDispatched()

		report, err := s.dispatchJob(ctx, job, sender)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("job %d: %w", job.ID, err))
		}
		if report != nil {
			reports = append(reports, report)
		}
	}

	return reports, result.ErrorOrNil()
}

func (s *Service) dispatchJob(ctx context.Context, job *models.DeliveryJob, sender Sender) (*models.DispatchReport, error) {
	log := s.logger.WithFields(logrus.Fields{
		"channel_id": job.ChannelID,
		"date":       models.FormatDate(job.Date),
		"job_id":     job.ID,
	})

	mt, err := s.MessageTypes.GetByDate(ctx, job.ChannelID, job.Date)
	if err != nil {
		return nil, fmt.Errorf("failed to get message type: %w", err)
	}
	if mt == nil {
		return nil, fmt.Errorf("message type for %s: %w", models.FormatDate(job.Date), models.ErrNotFound)
	}
	cells, err := s.Cells.ListByMessageType(ctx, mt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cells: %w", err)
	}
	matrix, err := models.NewMatrix(cells)
	if err != nil {
		return nil, err
	}

	recipients, err := s.resolveAudience(ctx, job.ChannelID, job.Target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve audience: %w", err)
	}
	users, err := s.ChannelUsers.GetMany(ctx, job.ChannelID, recipients)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipients: %w", err)
	}

	report := &models.DispatchReport{JobID: job.ID, Recipients: len(recipients)}
	byID := make(map[int64]*models.ChannelUser, len(users))
	for _, u := range users {
		byID[u.UserID] = u
	}

	for _, id := range recipients {
		user, ok := byID[id]
		if !ok || !user.IsFriend {
			report.Skipped++
			s.metrics.Message("skipped")
			continue
		}
		userLevel, childLevel, ok := user.Levels()
		if !ok {
			report.Skipped++
			s.metrics.Message("skipped")
			continue
		}
		cell := matrix.At(userLevel, childLevel)
		if cell == nil || !cell.IsApproved() {
			report.Skipped++
			s.metrics.Message("skipped")
			continue
		}

		if err := deliverCell(ctx, sender, id, cell); err != nil {
			log.WithField("user_id", id).Warnf("Delivery failed: %v", err)
			report.Failed++
			s.metrics.Message("failed")
			continue
		}
		report.Sent++
		s.metrics.Message("sent")
	}

	log.WithFields(logrus.Fields{
		"recipients": report.Recipients,
		"sent":       report.Sent,
		"skipped":    report.Skipped,
		"failed":     report.Failed,
	}).Info("Dispatched delivery job")
	return report, nil
}

// deliverCell sends the message with its links, then each narration that has
// an audio file.
func deliverCell(ctx context.Context, sender Sender, userID int64, cell *models.ContentCell) error {
	var b strings.Builder
	b.WriteString(cell.MessageText)
	b.WriteString("\n\n")
	b.WriteString(cell.DiaryURL)
	if cell.VocaURL != nil && *cell.VocaURL != "" {
		b.WriteString("\n")
		b.WriteString(*cell.VocaURL)
	}

	if err := sender.SendText(ctx, userID, b.String()); err != nil {
		return err
	}
	if cell.MomAudio.URL != "" {
		if err := sender.SendAudio(ctx, userID, cell.MomAudio.URL, cell.MomAudio.Text); err != nil {
			return err
		}
	}
	if cell.ChildAudio.URL != "" {
		if err := sender.SendAudio(ctx, userID, cell.ChildAudio.URL, cell.ChildAudio.Text); err != nil {
			return err
		}
	}
	return nil
}
