package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Kerhoff/DailyCast/internal/models"
	"github.com/Kerhoff/DailyCast/internal/repository"
)

// memTx serializes LockKey per key like the advisory locks of the postgres
// manager. Locks are reentrant within one transaction and released when it
// ends.
type memTx struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type memTxState struct {
	held map[string]*sync.Mutex
}

type memTxKey struct{}

func newMemTx() *memTx {
	return &memTx{locks: make(map[string]*sync.Mutex)}
}

func (m *memTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*memTxState); ok {
		return fn(ctx)
	}
	state := &memTxState{held: make(map[string]*sync.Mutex)}
	defer func() {
		for _, l := range state.held {
			l.Unlock()
		}
	}()
	return fn(context.WithValue(ctx, memTxKey{}, state))
}

func (m *memTx) LockKey(ctx context.Context, key string) error {
	state, ok := ctx.Value(memTxKey{}).(*memTxState)
	if !ok {
		return fmt.Errorf("lock %q requested outside a transaction", key)
	}
	if _, held := state.held[key]; held {
		return nil
	}

	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()

	l.Lock()
	state.held[key] = l
	return nil
}

type pairKey [2]int64

type transitionKey struct {
	channelID int64
	userID    int64
	product   string
	kind      models.TransitionKind
}

type cutoverKey struct {
	channelID int64
	date      time.Time
}

// memStore holds every table of the fake storage. Reads return copies so the
// service cannot change stored rows without calling a repository.
type memStore struct {
	mu     sync.Mutex
	nextID int64

	channels     map[int64]*models.Channel
	messageTypes map[int64]*models.MessageType
	cells        map[int64]*models.ContentCell
	users        map[pairKey]*models.ChannelUser
	groups       map[int64]*models.UserGroup
	memberships  map[pairKey]*models.GroupMembership
	transitions  map[transitionKey]*models.LifecycleTransition
	cutovers     map[cutoverKey]*models.CutoverRun
	jobs         map[int64]*models.DeliveryJob

	// beforeJobCreate runs inside Create before the uniqueness check.
	beforeJobCreate func()
}

func newMemStore() *memStore {
	return &memStore{
		channels:     make(map[int64]*models.Channel),
		messageTypes: make(map[int64]*models.MessageType),
		cells:        make(map[int64]*models.ContentCell),
		users:        make(map[pairKey]*models.ChannelUser),
		groups:       make(map[int64]*models.UserGroup),
		memberships:  make(map[pairKey]*models.GroupMembership),
		transitions:  make(map[transitionKey]*models.LifecycleTransition),
		cutovers:     make(map[cutoverKey]*models.CutoverRun),
		jobs:         make(map[int64]*models.DeliveryJob),
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) repositories() Repositories {
	return Repositories{
		Channels:     memChannels{s},
		MessageTypes: memMessageTypes{s},
		Cells:        memCells{s},
		ChannelUsers: memChannelUsers{s},
		Groups:       memGroups{s},
		Memberships:  memMemberships{s},
		Transitions:  memTransitions{s},
		Jobs:         memJobs{s},
	}
}

func copyCell(c *models.ContentCell) *models.ContentCell {
	cp := *c
	if c.VocaURL != nil {
		v := *c.VocaURL
		cp.VocaURL = &v
	}
	return &cp
}

func copyJob(j *models.DeliveryJob) *models.DeliveryJob {
	cp := *j
	cp.Target.IncludeGroupIDs = append([]int64(nil), j.Target.IncludeGroupIDs...)
	cp.Target.ExcludeGroupIDs = append([]int64(nil), j.Target.ExcludeGroupIDs...)
	return &cp
}

// channels

type memChannels struct{ *memStore }

var _ repository.ChannelRepository = memChannels{}

func (r memChannels) GetByID(_ context.Context, id int64) (*models.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[id]
	if !ok {
		return nil, nil
	}
	cp := *ch
	return &cp, nil
}

func (r memChannels) List(_ context.Context) ([]*models.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Channel
	for _, ch := range r.channels {
		cp := *ch
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// message types

type memMessageTypes struct{ *memStore }

func (r memMessageTypes) Create(_ context.Context, mt *models.MessageType) (*models.MessageType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.messageTypes {
		if existing.ChannelID == mt.ChannelID && existing.Date.Equal(mt.Date) {
			return nil, fmt.Errorf("message type: %w", models.ErrConflict)
		}
	}
	cp := *mt
	cp.ID = r.id()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.messageTypes[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r memMessageTypes) GetByID(_ context.Context, channelID, id int64) (*models.MessageType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mt, ok := r.messageTypes[id]
	if !ok || mt.ChannelID != channelID {
		return nil, nil
	}
	cp := *mt
	return &cp, nil
}

func (r memMessageTypes) GetByDate(_ context.Context, channelID int64, date time.Time) (*models.MessageType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, mt := range r.messageTypes {
		if mt.ChannelID == channelID && mt.Date.Equal(date) {
			cp := *mt
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memMessageTypes) Update(_ context.Context, mt *models.MessageType) (*models.MessageType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messageTypes[mt.ID]; !ok {
		return nil, fmt.Errorf("message type %d: %w", mt.ID, models.ErrNotFound)
	}
	cp := *mt
	cp.UpdatedAt = time.Now()
	r.messageTypes[mt.ID] = &cp
	out := cp
	return &out, nil
}

// content cells

type memCells struct{ *memStore }

func (r memCells) GetByID(_ context.Context, channelID, id int64) (*models.ContentCell, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cells[id]
	if !ok {
		return nil, nil
	}
	if mt := r.messageTypes[c.MessageTypeID]; mt == nil || mt.ChannelID != channelID {
		return nil, nil
	}
	return copyCell(c), nil
}

func (r memCells) GetByLevels(_ context.Context, messageTypeID int64, userLevel, childLevel models.Level) (*models.ContentCell, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.cells {
		if c.MessageTypeID == messageTypeID && c.UserLevel == userLevel && c.ChildLevel == childLevel {
			return copyCell(c), nil
		}
	}
	return nil, nil
}

func (r memCells) ListByMessageType(_ context.Context, messageTypeID int64) ([]*models.ContentCell, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ContentCell
	for _, c := range r.cells {
		if c.MessageTypeID == messageTypeID {
			out = append(out, copyCell(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memCells) Upsert(_ context.Context, cell *models.ContentCell) (*models.ContentCell, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := copyCell(cell)
	stored.UpdatedAt = time.Now()
	for id, c := range r.cells {
		if c.MessageTypeID == cell.MessageTypeID && c.UserLevel == cell.UserLevel && c.ChildLevel == cell.ChildLevel {
			stored.ID = id
			stored.CreatedAt = c.CreatedAt
			r.cells[id] = stored
			return copyCell(stored), nil
		}
	}
	stored.ID = r.id()
	stored.CreatedAt = stored.UpdatedAt
	r.cells[stored.ID] = stored
	return copyCell(stored), nil
}

func (r memCells) Update(_ context.Context, cell *models.ContentCell) (*models.ContentCell, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cells[cell.ID]; !ok {
		return nil, fmt.Errorf("cell %d: %w", cell.ID, models.ErrNotFound)
	}
	stored := copyCell(cell)
	stored.UpdatedAt = time.Now()
	r.cells[cell.ID] = stored
	return copyCell(stored), nil
}

func (r memCells) DemoteApproved(_ context.Context, messageTypeID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.cells {
		if c.MessageTypeID == messageTypeID && c.Demote() {
			n++
		}
	}
	return n, nil
}

func (r memCells) CountByStatus(_ context.Context, messageTypeID int64, status models.CellStatus) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.cells {
		if c.MessageTypeID == messageTypeID && c.Status == status {
			n++
		}
	}
	return n, nil
}

// channel users

type memChannelUsers struct{ *memStore }

func (r memChannelUsers) Get(_ context.Context, channelID, userID int64) (*models.ChannelUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[pairKey{channelID, userID}]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r memChannelUsers) GetMany(_ context.Context, channelID int64, userIDs []int64) ([]*models.ChannelUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ChannelUser
	for _, id := range userIDs {
		if u, ok := r.users[pairKey{channelID, id}]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r memChannelUsers) FindByPhones(_ context.Context, channelID int64, phones []string) ([]*models.ChannelUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[string]bool, len(phones))
	for _, p := range phones {
		want[p] = true
	}
	var out []*models.ChannelUser
	for _, u := range r.users {
		if u.ChannelID == channelID && want[u.PhoneNumber] {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r memChannelUsers) Upsert(_ context.Context, u *models.ChannelUser) (*models.ChannelUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey{u.ChannelID, u.UserID}
	stored, ok := r.users[key]
	if !ok {
		stored = &models.ChannelUser{ChannelID: u.ChannelID, UserID: u.UserID}
		r.users[key] = stored
	}
	if u.PhoneNumber != "" {
		stored.PhoneNumber = u.PhoneNumber
	}
	stored.IsFriend = u.IsFriend
	stored.UpdatedAt = time.Now()
	cp := *stored
	return &cp, nil
}

func (r memChannelUsers) SetLevels(_ context.Context, channelID, userID int64, userLevel, childLevel models.Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[pairKey{channelID, userID}]
	if !ok {
		return fmt.Errorf("channel user %d: %w", userID, models.ErrNotFound)
	}
	u.UserLevel = &userLevel
	u.ChildLevel = &childLevel
	return nil
}

// groups

type memGroups struct{ *memStore }

// withCounts returns a copy of g with member and friend counts. Callers hold mu.
func (r memGroups) withCounts(g *models.UserGroup) *models.UserGroup {
	cp := *g
	cp.MemberCount, cp.FriendCount = 0, 0
	for _, m := range r.memberships {
		if m.GroupID == g.ID {
			cp.MemberCount++
			if m.IsFriend {
				cp.FriendCount++
			}
		}
	}
	return &cp
}

func (r memGroups) Create(_ context.Context, g *models.UserGroup) (*models.UserGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *g
	cp.ID = r.id()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.groups[cp.ID] = &cp
	return r.withCounts(&cp), nil
}

func (r memGroups) EnsureAuto(_ context.Context, channelID int64, groupType models.GroupType, product string) (*models.UserGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.groups {
		if g.ChannelID == channelID && g.Type == groupType && g.Product != nil && *g.Product == product {
			return r.withCounts(g), nil
		}
	}
	p := product
	g := &models.UserGroup{
		ID:        r.id(),
		ChannelID: channelID,
		Title:     models.AutoGroupTitle(groupType, product),
		Type:      groupType,
		Product:   &p,
		CreatedAt: time.Now(),
	}
	r.groups[g.ID] = g
	return r.withCounts(g), nil
}

func (r memGroups) GetByID(_ context.Context, channelID, id int64) (*models.UserGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok || g.ChannelID != channelID {
		return nil, nil
	}
	return r.withCounts(g), nil
}

func (r memGroups) GetByIDs(_ context.Context, channelID int64, ids []int64) ([]*models.UserGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.UserGroup
	for _, id := range ids {
		if g, ok := r.groups[id]; ok && g.ChannelID == channelID {
			out = append(out, r.withCounts(g))
		}
	}
	return out, nil
}

func (r memGroups) ListByType(_ context.Context, channelID int64, groupType models.GroupType) ([]*models.UserGroup, error) {
	all, _ := r.List(context.Background(), channelID)
	var out []*models.UserGroup
	for _, g := range all {
		if g.Type == groupType {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r memGroups) List(_ context.Context, channelID int64) ([]*models.UserGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.UserGroup
	for _, g := range r.groups {
		if g.ChannelID == channelID {
			out = append(out, r.withCounts(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memGroups) Rename(_ context.Context, channelID, id int64, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok || g.ChannelID != channelID {
		return fmt.Errorf("group %d: %w", id, models.ErrNotFound)
	}
	g.Title = title
	return nil
}

func (r memGroups) Delete(_ context.Context, channelID, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok || g.ChannelID != channelID || g.Type != models.GroupTypeCustom {
		return fmt.Errorf("group %d: %w", id, models.ErrNotFound)
	}
	delete(r.groups, id)
	for key, m := range r.memberships {
		if m.GroupID == id {
			delete(r.memberships, key)
		}
	}
	return nil
}

// memberships

type memMemberships struct{ *memStore }

func (r memMemberships) Get(_ context.Context, groupID, userID int64) (*models.GroupMembership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memberships[pairKey{groupID, userID}]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r memMemberships) Add(_ context.Context, m *models.GroupMembership) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[m.GroupID]; !ok {
		return false, fmt.Errorf("group %d: %w", m.GroupID, models.ErrNotFound)
	}
	key := pairKey{m.GroupID, m.UserID}
	if _, ok := r.memberships[key]; ok {
		return false, nil
	}
	cp := *m
	r.memberships[key] = &cp
	return true, nil
}

func (r memMemberships) Remove(_ context.Context, groupID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey{groupID, userID}
	if _, ok := r.memberships[key]; !ok {
		return false, nil
	}
	delete(r.memberships, key)
	return true, nil
}

// FriendUserIDs returns one ID per friend membership, duplicates included, so
// the service has to deduplicate by itself.
func (r memMemberships) FriendUserIDs(_ context.Context, groupIDs []int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[int64]bool, len(groupIDs))
	for _, id := range groupIDs {
		want[id] = true
	}
	var out []int64
	for _, m := range r.memberships {
		if want[m.GroupID] && m.IsFriend {
			out = append(out, m.UserID)
		}
	}
	return out, nil
}

func (r memMemberships) SyncFriend(_ context.Context, channelID, userID int64, phone string, isFriend bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.memberships {
		if g := r.groups[m.GroupID]; g != nil && g.ChannelID == channelID && m.UserID == userID {
			m.IsFriend = isFriend
			if phone != "" {
				m.PhoneNumber = phone
			}
		}
	}
	return nil
}

// transitions

type memTransitions struct{ *memStore }

func (r memTransitions) Upsert(_ context.Context, t *models.LifecycleTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.transitions[transitionKey{t.ChannelID, t.UserID, t.Product, t.Kind}] = &cp
	return nil
}

func (r memTransitions) Delete(_ context.Context, channelID, userID int64, product string, kind models.TransitionKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.transitions, transitionKey{channelID, userID, product, kind})
	return nil
}

func (r memTransitions) ListDue(_ context.Context, channelID int64, localDate time.Time) ([]*models.LifecycleTransition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.LifecycleTransition
	for _, t := range r.transitions {
		if t.ChannelID == channelID && t.IsDue(localDate) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		if out[i].Product != out[j].Product {
			return out[i].Product < out[j].Product
		}
		return out[i].Kind > out[j].Kind
	})
	return out, nil
}

func (r memTransitions) LastCutover(_ context.Context, channelID int64) (*models.CutoverRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last *models.CutoverRun
	for _, run := range r.cutovers {
		if run.ChannelID == channelID && (last == nil || run.LocalDate.After(last.LocalDate)) {
			last = run
		}
	}
	if last == nil {
		return nil, nil
	}
	cp := *last
	return &cp, nil
}

func (r memTransitions) RecordCutover(_ context.Context, run *models.CutoverRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	r.cutovers[cutoverKey{run.ChannelID, run.LocalDate}] = &cp
	return nil
}

// delivery jobs

type memJobs struct{ *memStore }

func (r memJobs) Create(_ context.Context, job *models.DeliveryJob) (*models.DeliveryJob, error) {
	if r.beforeJobCreate != nil {
		r.beforeJobCreate()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ChannelID == job.ChannelID && j.Date.Equal(job.Date) && j.IsActive() {
			return nil, fmt.Errorf("failed to create delivery job: %w", models.ErrConflict)
		}
	}
	stored := copyJob(job)
	stored.ID = r.id()
	stored.State = models.JobStateScheduled
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	r.jobs[stored.ID] = stored
	return copyJob(stored), nil
}

func (r memJobs) GetByID(_ context.Context, channelID, id int64) (*models.DeliveryJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.ChannelID != channelID {
		return nil, nil
	}
	return copyJob(j), nil
}

func (r memJobs) GetActive(_ context.Context, channelID int64, date time.Time) (*models.DeliveryJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ChannelID == channelID && j.Date.Equal(date) && j.IsActive() {
			return copyJob(j), nil
		}
	}
	return nil, nil
}

func (r memJobs) CancelActive(_ context.Context, channelID int64, date time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ChannelID == channelID && j.Date.Equal(date) && j.IsActive() {
			j.State = models.JobStateCancelled
			return true, nil
		}
	}
	return false, nil
}

func (r memJobs) ReferencesGroup(_ context.Context, channelID, groupID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ChannelID != channelID || j.State != models.JobStateScheduled {
			continue
		}
		for _, id := range append(append([]int64{}, j.Target.IncludeGroupIDs...), j.Target.ExcludeGroupIDs...) {
			if id == groupID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r memJobs) ListDue(_ context.Context, now time.Time, limit int) ([]*models.DeliveryJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.DeliveryJob
	for _, j := range r.jobs {
		if j.IsDue(now) {
			out = append(out, copyJob(j))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledInstant.Before(out[j].ScheduledInstant) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memJobs) MarkDispatched(_ context.Context, id int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || !j.IsActive() {
		return false, nil
	}
	j.State = models.JobStateDispatched
	j.DispatchedAt = &at
	return true, nil
}

// collaborators

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	err   error
	// during runs inside Generate, before the result is returned.
	during func()
}

func (g *fakeGenerator) Generate(_ context.Context, req models.GenerationRequest) (*models.GeneratedContent, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()

	if g.during != nil {
		g.during()
	}
	if g.err != nil {
		return nil, g.err
	}
	return &models.GeneratedContent{
		MessageText:        fmt.Sprintf("%s L%d/C%d #%d", req.Theme, req.UserLevel, req.ChildLevel, n),
		MomAudioText:       "mom says " + req.Theme,
		ChildAudioText:     "child says " + req.Theme,
		DiaryURLSuggestion: fmt.Sprintf("https://diary.example/%d", n),
	}, nil
}

type fakeSynth struct {
	mu    sync.Mutex
	fail  map[models.AudioRole]bool
	calls []models.SynthesisRequest
}

func (f *fakeSynth) Synthesize(_ context.Context, req models.SynthesisRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.fail[req.Role] {
		return "", errors.New("tts unavailable")
	}
	return fmt.Sprintf("https://cdn.example/%s/%d.mp3", req.Role, len(f.calls)), nil
}

type sentMessage struct {
	userID int64
	text   string
	audio  []string
}

type fakeSender struct {
	mu     sync.Mutex
	sent   map[int64]*sentMessage
	failTo map[int64]bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[int64]*sentMessage), failTo: make(map[int64]bool)}
}

func (f *fakeSender) SendText(_ context.Context, userID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[userID] {
		return errors.New("blocked by user")
	}
	f.sent[userID] = &sentMessage{userID: userID, text: text}
	return nil
}

func (f *fakeSender) SendAudio(_ context.Context, userID int64, url, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.sent[userID]
	if !ok {
		return errors.New("audio before text")
	}
	m.audio = append(m.audio, url)
	return nil
}

type fakeCache struct {
	mu          sync.Mutex
	counts      map[string]int
	gets        int
	invalidated []int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{counts: make(map[string]int)}
}

func (c *fakeCache) GetCount(_ context.Context, key string) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	n, ok := c.counts[key]
	return n, ok, nil
}

func (c *fakeCache) SetCount(_ context.Context, key string, count int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key] = count
	return nil
}

func (c *fakeCache) InvalidateChannel(_ context.Context, channelID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, channelID)
	prefix := fmt.Sprintf("estimate:%d:", channelID)
	for key := range c.counts {
		if strings.HasPrefix(key, prefix) {
			delete(c.counts, key)
		}
	}
	return nil
}
