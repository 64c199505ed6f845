package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/DailyCast/internal/models"
)

type transitionOutcome string

const (
	outcomeApplied  transitionOutcome = "applied"
	outcomeNoop     transitionOutcome = "noop"
	outcomeDeferred transitionOutcome = "deferred"
)

// StartLifecycleCutover runs a background loop that checks every interval
// whether a channel's local date has advanced past its last cutover and runs
// the cutover for it. It blocks until the context is cancelled, so it should
// be launched in a separate goroutine.
func (s *Service) StartLifecycleCutover(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Lifecycle cutover started")

	s.CutoverDueChannels(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Lifecycle cutover stopped")
			return
		case <-ticker.C:
			s.CutoverDueChannels(ctx)
		}
	}
}

// CutoverDueChannels runs the cutover of every channel whose local date is
// later than its last recorded cutover.
func (s *Service) CutoverDueChannels(ctx context.Context) {
	channels, err := s.Channels.List(ctx)
	if err != nil {
		s.logger.Errorf("Failed to list channels: %v", err)
		return
	}

	for _, ch := range channels {
		today := s.localToday(ch)

		last, err := s.Transitions.LastCutover(ctx, ch.ID)
		if err != nil {
			s.logger.Errorf("Failed to get last cutover of channel %d: %v", ch.ID, err)
			continue
		}
		if last != nil && !models.DateOf(last.LocalDate).Before(today) {
			continue
		}

		if _, err := s.RunCutover(ctx, ch.ID, today); err != nil {
			s.logger.WithFields(logrus.Fields{
				"channel_id": ch.ID,
				"date":       models.FormatDate(today),
			}).Errorf("Cutover finished with errors: %v", err)
		}
	}
}

// RunCutover applies every transition due on localDate. Each transition
// checks current membership first, so re-running is a no-op for users that
// were already moved. Failures of single users are collected and do not stop
// the batch; the run is recorded either way.
func (s *Service) RunCutover(ctx context.Context, channelID int64, localDate time.Time) (*models.CutoverRun, error) {
	localDate = models.DateOf(localDate)
	run := &models.CutoverRun{
		ChannelID: channelID,
		LocalDate: localDate,
		RunID:     uuid.New(),
	}
	log := s.logger.WithFields(logrus.Fields{
		"channel_id": channelID,
		"date":       models.FormatDate(localDate),
		"run_id":     run.RunID,
	})

	due, err := s.Transitions.ListDue(ctx, channelID, localDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list due transitions: %w", err)
	}

	var result *multierror.Error
	for _, t := range due {
		outcome, err := s.applyTransition(ctx, t)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("user %d %s %s: %w", t.UserID, t.Kind, t.Product, err))
			continue
		}
		s.metrics.Transition(string(t.Kind), string(outcome))

		switch {
		case outcome == outcomeDeferred:
			run.Deferred++
		case outcome == outcomeNoop:
		case t.Kind == models.TransitionActivate:
			run.Activated++
		default:
			run.Ended++
		}
	}

	run.CompletedAt = s.now()
	if err := s.Transitions.RecordCutover(ctx, run); err != nil {
		result = multierror.Append(result, err)
	}
	if run.Activated+run.Ended > 0 {
		s.invalidateEstimates(ctx, channelID)
	}

	log.WithFields(logrus.Fields{
		"due":       len(due),
		"activated": run.Activated,
		"ended":     run.Ended,
		"deferred":  run.Deferred,
	}).Info("Lifecycle cutover completed")

	return run, result.ErrorOrNil()
}

// applyTransition performs one queued move under the locks of the product's
// AUTO pair and removes it from the queue.
func (s *Service) applyTransition(ctx context.Context, t *models.LifecycleTransition) (transitionOutcome, error) {
	outcome := outcomeNoop
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		active, ended, err := s.autoPair(ctx, t.ChannelID, t.Product)
		if err != nil {
			return err
		}
		if err := s.lockGroups(ctx, t.ChannelID, active.ID, ended.ID); err != nil {
			return err
		}

		user, err := s.ChannelUsers.Get(ctx, t.ChannelID, t.UserID)
		if err != nil {
			return fmt.Errorf("failed to get channel user: %w", err)
		}

		switch t.Kind {
		case models.TransitionActivate:
			if user == nil || !user.IsFriend {
				outcome = outcomeDeferred
				return nil
			}
			if outcome, err = s.activate(ctx, user, active, ended); err != nil {
				return err
			}
		case models.TransitionEnd:
			if outcome, err = s.end(ctx, t.UserID, user, active, ended); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown transition kind %q", t.Kind)
		}

		return s.Transitions.Delete(ctx, t.ChannelID, t.UserID, t.Product, t.Kind)
	})
	return outcome, err
}

func (s *Service) activate(ctx context.Context, user *models.ChannelUser, active, ended *models.UserGroup) (transitionOutcome, error) {
	if _, err := s.Memberships.Remove(ctx, ended.ID, user.UserID); err != nil {
		return "", fmt.Errorf("failed to leave ended group: %w", err)
	}

	inserted, err := s.Memberships.Add(ctx, &models.GroupMembership{
		GroupID:      active.ID,
		UserID:       user.UserID,
		PhoneNumber:  user.PhoneNumber,
		IsFriend:     user.IsFriend,
		RegisteredAt: s.now(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to join active group: %w", err)
	}
	if !inserted {
		return outcomeNoop, nil
	}
	return outcomeApplied, nil
}

func (s *Service) end(ctx context.Context, userID int64, user *models.ChannelUser, active, ended *models.UserGroup) (transitionOutcome, error) {
	m := &models.GroupMembership{
		GroupID:      ended.ID,
		UserID:       userID,
		RegisteredAt: s.now(),
	}
	if user != nil {
		m.PhoneNumber = user.PhoneNumber
		m.IsFriend = user.IsFriend
	}

	prev, err := s.Memberships.Get(ctx, active.ID, userID)
	if err != nil {
		return "", fmt.Errorf("failed to get active membership: %w", err)
	}
	if prev != nil {
		if _, err := s.Memberships.Remove(ctx, active.ID, userID); err != nil {
			return "", fmt.Errorf("failed to leave active group: %w", err)
		}
		if user == nil {
			m.PhoneNumber = prev.PhoneNumber
			m.IsFriend = prev.IsFriend
		}
	}

	inserted, err := s.Memberships.Add(ctx, m)
	if err != nil {
		return "", fmt.Errorf("failed to join ended group: %w", err)
	}
	if !inserted && prev == nil {
		return outcomeNoop, nil
	}
	return outcomeApplied, nil
}
