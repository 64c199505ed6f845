package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/DailyCast/internal/models"
	"github.com/Kerhoff/DailyCast/pkg/logger"
)

const (
	seoulChannel int64 = 7
	otherChannel int64 = 8
)

var (
	// 12:00 in Seoul on 2024-03-21
	testNow = time.Date(2024, 3, 21, 3, 0, 0, 0, time.UTC)
	today   = time.Date(2024, 3, 21, 0, 0, 0, 0, time.UTC)
	day     = time.Date(2024, 3, 22, 0, 0, 0, 0, time.UTC)
)

type harness struct {
	svc   *Service
	store *memStore
	gen   *fakeGenerator
	synth *fakeSynth
	cache *fakeCache
	clock time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store: newMemStore(),
		gen:   &fakeGenerator{},
		synth: &fakeSynth{fail: make(map[models.AudioRole]bool)},
		cache: newFakeCache(),
		clock: testNow,
	}
	h.store.channels[seoulChannel] = &models.Channel{ID: seoulChannel, Name: "seoul", Timezone: "Asia/Seoul", Language: "ko"}
	h.store.channels[otherChannel] = &models.Channel{ID: otherChannel, Name: "other", Timezone: "UTC", Language: "en"}
	h.store.nextID = 100

	h.svc = New(logger.NewDiscard(), newMemTx(), h.store.repositories(),
		WithGenerator(h.gen),
		WithSynthesizer(h.synth),
		WithEstimateCache(h.cache),
		WithClock(func() time.Time { return h.clock }),
		WithVoices(Voices{Mom: "mom-voice", Child: "child-voice", Speed: 1.0}),
	)
	return h
}

// approvedCell saves the day's theme and approves the cell at (1, 1).
func (h *harness) approvedCell(t *testing.T, channelID int64, date time.Time) *models.ContentCell {
	t.Helper()
	ctx := context.Background()

	_, _, err := h.svc.SaveMessageType(ctx, channelID, date, "spring", "a walk in the park", false)
	require.NoError(t, err)
	cell, err := h.svc.GenerateOrRetrieve(ctx, channelID, date, 1, 1, false)
	require.NoError(t, err)
	cell, err = h.svc.Approve(ctx, channelID, cell.ID)
	require.NoError(t, err)
	return cell
}

// friend registers a friend user with optional levels.
func (h *harness) friend(t *testing.T, channelID, userID int64, phone string, levels ...models.Level) {
	t.Helper()
	ctx := context.Background()

	_, err := h.svc.SetFriendStatus(ctx, channelID, userID, phone, true)
	require.NoError(t, err)
	if len(levels) == 2 {
		require.NoError(t, h.svc.SetUserLevels(ctx, channelID, userID, levels[0], levels[1]))
	}
}

// join places a user into a group directly, bypassing the lifecycle rules.
func (h *harness) join(t *testing.T, groupID, userID int64, isFriend bool) {
	t.Helper()
	_, err := memMemberships{h.store}.Add(context.Background(), &models.GroupMembership{
		GroupID:  groupID,
		UserID:   userID,
		IsFriend: isFriend,
	})
	require.NoError(t, err)
}

func (h *harness) autoGroups(t *testing.T, channelID int64, product string) (*models.UserGroup, *models.UserGroup) {
	t.Helper()
	active, ended, err := h.svc.autoPair(context.Background(), channelID, product)
	require.NoError(t, err)
	return active, ended
}

func (h *harness) isMember(groupID, userID int64) bool {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	_, ok := h.store.memberships[pairKey{groupID, userID}]
	return ok
}

func (h *harness) storedCell(id int64) *models.ContentCell {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return copyCell(h.store.cells[id])
}
