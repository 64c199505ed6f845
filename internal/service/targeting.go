package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/Kerhoff/DailyCast/internal/cache"
	"github.com/Kerhoff/DailyCast/internal/models"
)

// Estimate computes the deduplicated audience of a target. Count only
// results may come from the estimate cache; withUserIDs always reads storage.
func (s *Service) Estimate(ctx context.Context, channelID int64, target models.Target, withUserIDs bool) (*models.Estimate, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	key := cache.EstimateKey(channelID, target)
	if s.cache != nil && !withUserIDs {
		n, ok, err := s.cache.GetCount(ctx, key)
		if err != nil {
			s.logger.Warnf("Estimate cache read failed: %v", err)
		}
		s.metrics.EstimateCacheRead(ok)
		if ok {
			return &models.Estimate{Count: n}, nil
		}
	}

	ids, err := s.resolveAudience(ctx, channelID, target)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetCount(ctx, key, len(ids)); err != nil {
			s.logger.Warnf("Estimate cache write failed: %v", err)
		}
	}

	est := &models.Estimate{Count: len(ids)}
	if withUserIDs {
		est.UserIDs = ids
	}
	return est, nil
}

// invalidateEstimates drops cached counts after the channel's audience changed.
func (s *Service) invalidateEstimates(ctx context.Context, channelID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateChannel(ctx, channelID); err != nil {
		s.logger.Warnf("Estimate cache invalidation failed for channel %d: %v", channelID, err)
	}
}

// resolveAudience returns the sorted user IDs a target reaches. Only friend
// members count, and exclusion wins over inclusion.
func (s *Service) resolveAudience(ctx context.Context, channelID int64, target models.Target) ([]int64, error) {
	switch target.Mode {
	case models.TargetModeAll:
		groups, err := s.Groups.ListByType(ctx, channelID, models.GroupTypeAutoActive)
		if err != nil {
			return nil, fmt.Errorf("failed to list active groups: %w", err)
		}
		groupIDs := make([]int64, 0, len(groups))
		for _, g := range groups {
			groupIDs = append(groupIDs, g.ID)
		}
		members, err := s.friendSet(ctx, groupIDs)
		if err != nil {
			return nil, err
		}
		return sortedIDs(members), nil

	case models.TargetModeGroups:
		include, err := s.checkGroups(ctx, channelID, target.IncludeGroupIDs, (*models.UserGroup).CanInclude, models.CodeIncludeGroupType)
		if err != nil {
			return nil, err
		}
		exclude, err := s.checkGroups(ctx, channelID, target.ExcludeGroupIDs, (*models.UserGroup).CanExclude, models.CodeExcludeGroupType)
		if err != nil {
			return nil, err
		}
		if len(include) == 0 {
			return []int64{}, nil
		}

		members, err := s.friendSet(ctx, include)
		if err != nil {
			return nil, err
		}
		excluded, err := s.friendSet(ctx, exclude)
		if err != nil {
			return nil, err
		}
		for id := range excluded {
			delete(members, id)
		}
		return sortedIDs(members), nil

	default:
		return nil, target.Validate()
	}
}

// checkGroups deduplicates the IDs and verifies that every group belongs to
// the channel and passes allowed.
func (s *Service) checkGroups(ctx context.Context, channelID int64, ids []int64, allowed func(*models.UserGroup) bool, code string) ([]int64, error) {
	unique := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return nil, nil
	}

	groups, err := s.Groups.GetByIDs(ctx, channelID, unique)
	if err != nil {
		return nil, fmt.Errorf("failed to get groups: %w", err)
	}
	found := make(map[int64]*models.UserGroup, len(groups))
	for _, g := range groups {
		found[g.ID] = g
	}

	for _, id := range unique {
		g, ok := found[id]
		if !ok {
			return nil, fmt.Errorf("group %d: %w", id, models.ErrNotFound)
		}
		if !allowed(g) {
			return nil, models.NewValidationError(code, "group %d of type %s is not allowed here", id, g.Type)
		}
	}
	return unique, nil
}

func (s *Service) friendSet(ctx context.Context, groupIDs []int64) (map[int64]struct{}, error) {
	set := make(map[int64]struct{})
	if len(groupIDs) == 0 {
		return set, nil
	}
	ids, err := s.Memberships.FriendUserIDs(ctx, groupIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load group members: %w", err)
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
