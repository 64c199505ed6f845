package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/DailyCast/internal/metrics"
	"github.com/Kerhoff/DailyCast/internal/models"
	"github.com/Kerhoff/DailyCast/internal/repository"
)

// ContentGenerator produces the text of one matrix cell
type ContentGenerator interface {
	Generate(ctx context.Context, req models.GenerationRequest) (*models.GeneratedContent, error)
}

// AudioSynthesizer renders a narration script to an audio file
type AudioSynthesizer interface {
	Synthesize(ctx context.Context, req models.SynthesisRequest) (string, error)
}

// EstimateCache stores audience counts for a short time
type EstimateCache interface {
	GetCount(ctx context.Context, key string) (int, bool, error)
	SetCount(ctx context.Context, key string, count int) error
	InvalidateChannel(ctx context.Context, channelID int64) error
}

// Sender delivers content to one recipient
type Sender interface {
	SendText(ctx context.Context, userID int64, text string) error
	SendAudio(ctx context.Context, userID int64, url, caption string) error
}

// Voices selects the narration voices of the two audio roles
type Voices struct {
	Mom   string
	Child string
	Speed float64
}

// Repositories groups the storage dependencies of the service
type Repositories struct {
	Channels     repository.ChannelRepository
	MessageTypes repository.MessageTypeRepository
	Cells        repository.ContentCellRepository
	ChannelUsers repository.ChannelUserRepository
	Groups       repository.GroupRepository
	Memberships  repository.MembershipRepository
	Transitions  repository.TransitionRepository
	Jobs         repository.DeliveryJobRepository
}

// Service is the central business logic layer that holds all repositories
// and provides the campaign operations. Every operation takes the channel ID
// it acts on.
type Service struct {
	logger *logrus.Logger
	tx     repository.TxManager

	Channels     repository.ChannelRepository
	MessageTypes repository.MessageTypeRepository
	Cells        repository.ContentCellRepository
	ChannelUsers repository.ChannelUserRepository
	Groups       repository.GroupRepository
	Memberships  repository.MembershipRepository
	Transitions  repository.TransitionRepository
	Jobs         repository.DeliveryJobRepository

	generator ContentGenerator
	synth     AudioSynthesizer
	cache     EstimateCache
	metrics   *metrics.Metrics
	now       func() time.Time
	language  string
	voices    Voices
}

// Option configures optional collaborators of the Service
type Option func(*Service)

func WithGenerator(g ContentGenerator) Option { return func(s *Service) { s.generator = g } }

func WithSynthesizer(a AudioSynthesizer) Option { return func(s *Service) { s.synth = a } }

func WithEstimateCache(c EstimateCache) Option { return func(s *Service) { s.cache = c } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithClock replaces time.Now. Tests use it to pin "now".
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithLanguage sets the generation language used when a channel has none.
func WithLanguage(lang string) Option { return func(s *Service) { s.language = lang } }

func WithVoices(v Voices) Option { return func(s *Service) { s.voices = v } }

// New creates a new Service with all required dependencies.
func New(logger *logrus.Logger, tx repository.TxManager, repos Repositories, opts ...Option) *Service {
	s := &Service{
		logger:       logger,
		tx:           tx,
		Channels:     repos.Channels,
		MessageTypes: repos.MessageTypes,
		Cells:        repos.Cells,
		ChannelUsers: repos.ChannelUsers,
		Groups:       repos.Groups,
		Memberships:  repos.Memberships,
		Transitions:  repos.Transitions,
		Jobs:         repos.Jobs,
		now:          time.Now,
		language:     "ko",
		voices:       Voices{Speed: 1.0},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// channel loads a channel or fails with ErrNotFound.
func (s *Service) channel(ctx context.Context, channelID int64) (*models.Channel, error) {
	ch, err := s.Channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to get channel %d: %w", channelID, err)
	}
	if ch == nil {
		return nil, fmt.Errorf("channel %d: %w", channelID, models.ErrNotFound)
	}
	return ch, nil
}

// localToday returns the current calendar date in the channel timezone.
func (s *Service) localToday(ch *models.Channel) time.Time {
	return models.LocalDate(s.now(), ch.Location())
}

func contentKey(channelID int64, date time.Time) string {
	return fmt.Sprintf("content:%d:%s", channelID, models.FormatDate(date))
}

func groupKey(channelID, groupID int64) string {
	return fmt.Sprintf("group:%d:%d", channelID, groupID)
}
