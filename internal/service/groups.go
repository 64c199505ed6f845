package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/DailyCast/internal/models"
)

// autoPair returns the AUTO_ACTIVE and AUTO_ENDED groups of a product,
// creating them on first use.
func (s *Service) autoPair(ctx context.Context, channelID int64, product string) (*models.UserGroup, *models.UserGroup, error) {
	active, err := s.Groups.EnsureAuto(ctx, channelID, models.GroupTypeAutoActive, product)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to ensure active group for %q: %w", product, err)
	}
	ended, err := s.Groups.EnsureAuto(ctx, channelID, models.GroupTypeAutoEnded, product)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to ensure ended group for %q: %w", product, err)
	}
	return active, ended, nil
}

// lockGroups takes the membership locks of the groups in ascending ID order.
func (s *Service) lockGroups(ctx context.Context, channelID int64, groupIDs ...int64) error {
	ids := append([]int64(nil), groupIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := s.tx.LockKey(ctx, groupKey(channelID, id)); err != nil {
			return err
		}
	}
	return nil
}

func normalizeProduct(product string) (string, error) {
	product = strings.TrimSpace(product)
	if product == "" {
		return "", models.NewValidationError(models.CodeInvalidProduct, "product must not be empty")
	}
	return product, nil
}

func (s *Service) queueActivation(ctx context.Context, ch *models.Channel, userID int64, product string) (time.Time, error) {
	effective := s.localToday(ch).AddDate(0, 0, 1)
	err := s.Transitions.Upsert(ctx, &models.LifecycleTransition{
		ChannelID:     ch.ID,
		UserID:        userID,
		Product:       product,
		Kind:          models.TransitionActivate,
		EffectiveDate: effective,
		CreatedAt:     s.now(),
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to queue activation: %w", err)
	}
	return effective, nil
}

// OnEntitlementActivated queues the user's AUTO_ACTIVE insertion for the
// next local day. The user must still be a friend at that cutover.
func (s *Service) OnEntitlementActivated(ctx context.Context, channelID, userID int64, product string, friendAdded bool) error {
	product, err := normalizeProduct(product)
	if err != nil {
		return err
	}
	ch, err := s.channel(ctx, channelID)
	if err != nil {
		return err
	}

	var effective time.Time
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, _, err := s.autoPair(ctx, channelID, product); err != nil {
			return err
		}
		if err := s.recordFriend(ctx, channelID, userID, friendAdded); err != nil {
			return err
		}
		effective, err = s.queueActivation(ctx, ch, userID, product)
		return err
	})
	if err != nil {
		return err
	}
	if friendAdded {
		s.invalidateEstimates(ctx, channelID)
	}

	s.logger.WithFields(logrus.Fields{
		"channel_id": channelID,
		"user_id":    userID,
		"product":    product,
		"effective":  models.FormatDate(effective),
	}).Info("Queued lifecycle activation")
	return nil
}

// recordFriend makes sure the user is known to the channel. A true flag marks
// the user as a friend; false never unmarks one, the messaging account owns
// that signal.
func (s *Service) recordFriend(ctx context.Context, channelID, userID int64, friendAdded bool) error {
	if friendAdded {
		_, err := s.setFriend(ctx, channelID, userID, "", true)
		return err
	}

	user, err := s.ChannelUsers.Get(ctx, channelID, userID)
	if err != nil {
		return fmt.Errorf("failed to get channel user %d: %w", userID, err)
	}
	if user != nil {
		return nil
	}
	_, err = s.setFriend(ctx, channelID, userID, "", false)
	return err
}

// OnEntitlementEnded queues the move from AUTO_ACTIVE to AUTO_ENDED for the
// cutover that starts endDate. A pending activation of the product is dropped.
func (s *Service) OnEntitlementEnded(ctx context.Context, channelID, userID int64, product string, endDate time.Time) error {
	product, err := normalizeProduct(product)
	if err != nil {
		return err
	}
	ch, err := s.channel(ctx, channelID)
	if err != nil {
		return err
	}
	endDate = models.DateOf(endDate)
	// today's cutover has already run, so a due end is applied now
	due := !endDate.After(s.localToday(ch))

	outcome := outcomeNoop
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, _, err := s.autoPair(ctx, channelID, product); err != nil {
			return err
		}
		if err := s.Transitions.Delete(ctx, channelID, userID, product, models.TransitionActivate); err != nil {
			return err
		}
		t := &models.LifecycleTransition{
			ChannelID:     channelID,
			UserID:        userID,
			Product:       product,
			Kind:          models.TransitionEnd,
			EffectiveDate: endDate,
			CreatedAt:     s.now(),
		}
		if err := s.Transitions.Upsert(ctx, t); err != nil {
			return fmt.Errorf("failed to queue end: %w", err)
		}
		if !due {
			return nil
		}
		var err error
		outcome, err = s.applyTransition(ctx, t)
		return err
	})
	if err != nil {
		return err
	}

	fields := logrus.Fields{
		"channel_id": channelID,
		"user_id":    userID,
		"product":    product,
		"end_date":   models.FormatDate(endDate),
	}
	if !due {
		s.logger.WithFields(fields).Info("Queued lifecycle end")
		return nil
	}

	s.metrics.Transition(string(models.TransitionEnd), string(outcome))
	if outcome == outcomeApplied {
		s.invalidateEstimates(ctx, channelID)
	}
	fields["outcome"] = outcome
	s.logger.WithFields(fields).Info("Applied lifecycle end")
	return nil
}

// OnRepurchase removes the user from AUTO_ENDED right away, drops a pending
// end and queues a new activation for the next local day.
func (s *Service) OnRepurchase(ctx context.Context, channelID, userID int64, product string) error {
	product, err := normalizeProduct(product)
	if err != nil {
		return err
	}
	ch, err := s.channel(ctx, channelID)
	if err != nil {
		return err
	}

	var removed bool
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		active, ended, err := s.autoPair(ctx, channelID, product)
		if err != nil {
			return err
		}
		if err := s.lockGroups(ctx, channelID, active.ID, ended.ID); err != nil {
			return err
		}

		if removed, err = s.Memberships.Remove(ctx, ended.ID, userID); err != nil {
			return fmt.Errorf("failed to remove user %d from ended group: %w", userID, err)
		}
		if err := s.Transitions.Delete(ctx, channelID, userID, product, models.TransitionEnd); err != nil {
			return err
		}
		_, err = s.queueActivation(ctx, ch, userID, product)
		return err
	})
	if err != nil {
		return err
	}
	if removed {
		s.invalidateEstimates(ctx, channelID)
	}

	s.logger.WithFields(logrus.Fields{
		"channel_id":         channelID,
		"user_id":            userID,
		"product":            product,
		"removed_from_ended": removed,
	}).Info("Processed repurchase")
	return nil
}

// customGroup loads a group that operators may mutate. AUTO groups fail with
// ErrPermission.
func (s *Service) customGroup(ctx context.Context, channelID, groupID int64) (*models.UserGroup, error) {
	group, err := s.Groups.GetByID(ctx, channelID, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get group %d: %w", groupID, err)
	}
	if group == nil {
		return nil, fmt.Errorf("group %d: %w", groupID, models.ErrNotFound)
	}
	if group.Type.IsAuto() {
		return nil, fmt.Errorf("group %d is %s: %w", groupID, group.Type, models.ErrPermission)
	}
	return group, nil
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", models.NewValidationError(models.CodeEmptyTitle, "group title must not be empty")
	}
	return title, nil
}

// CreateCustomGroup creates an operator group.
func (s *Service) CreateCustomGroup(ctx context.Context, channelID int64, title string) (*models.UserGroup, error) {
	title, err := normalizeTitle(title)
	if err != nil {
		return nil, err
	}
	if _, err := s.channel(ctx, channelID); err != nil {
		return nil, err
	}

	group, err := s.Groups.Create(ctx, &models.UserGroup{
		ChannelID: channelID,
		Title:     title,
		Type:      models.GroupTypeCustom,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"channel_id": channelID,
		"group_id":   group.ID,
	}).Infof("Created custom group %q", title)
	return group, nil
}

// AddMembers adds the users registered under the phone numbers to a CUSTOM
// group. Unknown numbers are reported back.
func (s *Service) AddMembers(ctx context.Context, channelID, groupID int64, phoneNumbers []string) (*models.AddMembersResult, error) {
	phones := make([]string, 0, len(phoneNumbers))
	seen := make(map[string]struct{}, len(phoneNumbers))
	for _, p := range phoneNumbers {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		phones = append(phones, p)
	}

	result := &models.AddMembersResult{}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.customGroup(ctx, channelID, groupID); err != nil {
			return err
		}
		if err := s.lockGroups(ctx, channelID, groupID); err != nil {
			return err
		}

		users, err := s.ChannelUsers.FindByPhones(ctx, channelID, phones)
		if err != nil {
			return fmt.Errorf("failed to resolve phone numbers: %w", err)
		}
		byPhone := make(map[string]*models.ChannelUser, len(users))
		for _, u := range users {
			byPhone[u.PhoneNumber] = u
		}

		for _, phone := range phones {
			user, ok := byPhone[phone]
			if !ok {
				result.UnknownPhones = append(result.UnknownPhones, phone)
				continue
			}
			inserted, err := s.Memberships.Add(ctx, &models.GroupMembership{
				GroupID:      groupID,
				UserID:       user.UserID,
				PhoneNumber:  phone,
				IsFriend:     user.IsFriend,
				RegisteredAt: s.now(),
			})
			if err != nil {
				return fmt.Errorf("failed to add user %d: %w", user.UserID, err)
			}
			if inserted {
				result.Added++
			} else {
				result.AlreadyMembers++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Added > 0 {
		s.invalidateEstimates(ctx, channelID)
	}

	s.logger.WithFields(logrus.Fields{
		"channel_id": channelID,
		"group_id":   groupID,
		"added":      result.Added,
		"unknown":    len(result.UnknownPhones),
	}).Info("Added group members")
	return result, nil
}

// RemoveMember removes a user from a CUSTOM group.
func (s *Service) RemoveMember(ctx context.Context, channelID, groupID, userID int64) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.customGroup(ctx, channelID, groupID); err != nil {
			return err
		}
		if err := s.lockGroups(ctx, channelID, groupID); err != nil {
			return err
		}

		removed, err := s.Memberships.Remove(ctx, groupID, userID)
		if err != nil {
			return fmt.Errorf("failed to remove user %d: %w", userID, err)
		}
		if !removed {
			return fmt.Errorf("user %d in group %d: %w", userID, groupID, models.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateEstimates(ctx, channelID)
	return nil
}

// RenameGroup changes the title of a CUSTOM group.
func (s *Service) RenameGroup(ctx context.Context, channelID, groupID int64, title string) error {
	title, err := normalizeTitle(title)
	if err != nil {
		return err
	}
	if _, err := s.customGroup(ctx, channelID, groupID); err != nil {
		return err
	}
	if err := s.Groups.Rename(ctx, channelID, groupID, title); err != nil {
		return fmt.Errorf("failed to rename group %d: %w", groupID, err)
	}
	return nil
}

// DeleteCustomGroup removes a CUSTOM group and its memberships.
func (s *Service) DeleteCustomGroup(ctx context.Context, channelID, groupID int64) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.customGroup(ctx, channelID, groupID); err != nil {
			return err
		}
		if err := s.lockGroups(ctx, channelID, groupID); err != nil {
			return err
		}
		referenced, err := s.Jobs.ReferencesGroup(ctx, channelID, groupID)
		if err != nil {
			return err
		}
		if referenced {
			return fmt.Errorf("group %d is targeted by a scheduled delivery: %w", groupID, models.ErrConflict)
		}
		if err := s.Groups.Delete(ctx, channelID, groupID); err != nil {
			return fmt.Errorf("failed to delete group %d: %w", groupID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidateEstimates(ctx, channelID)

	s.logger.WithFields(logrus.Fields{
		"channel_id": channelID,
		"group_id":   groupID,
	}).Info("Deleted custom group")
	return nil
}

// ListGroups returns every group of the channel with member and friend counts.
func (s *Service) ListGroups(ctx context.Context, channelID int64) ([]*models.UserGroup, error) {
	groups, err := s.Groups.List(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}

// SetFriendStatus records whether the user has added the channel account and
// mirrors the flag onto every membership of the user in the channel.
func (s *Service) SetFriendStatus(ctx context.Context, channelID, userID int64, phone string, isFriend bool) (*models.ChannelUser, error) {
	if _, err := s.channel(ctx, channelID); err != nil {
		return nil, err
	}

	var user *models.ChannelUser
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.setFriend(ctx, channelID, userID, phone, isFriend)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidateEstimates(ctx, channelID)

	s.logger.WithFields(logrus.Fields{
		"channel_id": channelID,
		"user_id":    userID,
		"is_friend":  isFriend,
	}).Info("Updated friend status")
	return user, nil
}

func (s *Service) setFriend(ctx context.Context, channelID, userID int64, phone string, isFriend bool) (*models.ChannelUser, error) {
	user, err := s.ChannelUsers.Upsert(ctx, &models.ChannelUser{
		ChannelID:   channelID,
		UserID:      userID,
		PhoneNumber: strings.TrimSpace(phone),
		IsFriend:    isFriend,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save channel user %d: %w", userID, err)
	}
	if err := s.Memberships.SyncFriend(ctx, channelID, userID, user.PhoneNumber, isFriend); err != nil {
		return nil, fmt.Errorf("failed to sync friend flag of user %d: %w", userID, err)
	}
	return user, nil
}

// SetUserLevels stores the content levels used to pick the user's cell.
func (s *Service) SetUserLevels(ctx context.Context, channelID, userID int64, userLevel, childLevel models.Level) error {
	if err := models.CheckLevels(userLevel, childLevel); err != nil {
		return err
	}
	user, err := s.ChannelUsers.Get(ctx, channelID, userID)
	if err != nil {
		return fmt.Errorf("failed to get channel user %d: %w", userID, err)
	}
	if user == nil {
		return fmt.Errorf("channel user %d: %w", userID, models.ErrNotFound)
	}
	if err := s.ChannelUsers.SetLevels(ctx, channelID, userID, userLevel, childLevel); err != nil {
		return fmt.Errorf("failed to set levels of user %d: %w", userID, err)
	}
	return nil
}
