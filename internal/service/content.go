package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/DailyCast/internal/models"
)

// MatrixView is the content matrix of one channel day
type MatrixView struct {
	MessageType *models.MessageType
	Matrix      models.Matrix
	Counts      map[models.CellStatus]int
}

// SaveMessageType creates the MessageType of a day on first save. A later
// save that changes theme or context demotes every APPROVED cell of the day
// and is rejected with CascadeNotConfirmed while approved cells exist and
// confirmCascade is false. It returns the saved record and the number of
// demoted cells.
func (s *Service) SaveMessageType(ctx context.Context, channelID int64, date time.Time, theme, dayContext string, confirmCascade bool) (*models.MessageType, int, error) {
	if _, err := s.channel(ctx, channelID); err != nil {
		return nil, 0, err
	}
	date = models.DateOf(date)
	theme = strings.TrimSpace(theme)
	dayContext = strings.TrimSpace(dayContext)

	var saved *models.MessageType
	var demoted int
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.tx.LockKey(ctx, contentKey(channelID, date)); err != nil {
			return err
		}

		mt, err := s.MessageTypes.GetByDate(ctx, channelID, date)
		if err != nil {
			return fmt.Errorf("failed to get message type: %w", err)
		}
		if mt == nil {
			saved, err = s.MessageTypes.Create(ctx, &models.MessageType{
				ChannelID: channelID,
				Date:      date,
				Theme:     theme,
				Context:   dayContext,
			})
			if err != nil {
				return fmt.Errorf("failed to create message type: %w", err)
			}
			return nil
		}

		if mt.Theme == theme && mt.Context == dayContext {
			saved = mt
			return nil
		}

		approved, err := s.Cells.CountByStatus(ctx, mt.ID, models.CellStatusApproved)
		if err != nil {
			return fmt.Errorf("failed to count approved cells: %w", err)
		}
		if approved > 0 && !confirmCascade {
			return models.NewValidationError(models.CodeCascadeNotConfirmed,
				"%d approved cells would be reverted to GENERATED", approved)
		}

		mt.Theme = theme
		mt.Context = dayContext
		if saved, err = s.MessageTypes.Update(ctx, mt); err != nil {
			return fmt.Errorf("failed to update message type %d: %w", mt.ID, err)
		}

		demoted, err = s.OnMessageTypeEdited(ctx, channelID, mt.ID)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	s.logger.WithFields(logrus.Fields{
		"channel_id": channelID,
		"date":       models.FormatDate(date),
		"demoted":    demoted,
	}).Info("Saved message type")

	return saved, demoted, nil
}

// OnMessageTypeEdited demotes every APPROVED cell of the MessageType to
// GENERATED in one transaction and returns how many were demoted.
func (s *Service) OnMessageTypeEdited(ctx context.Context, channelID, messageTypeID int64) (int, error) {
	var demoted int
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		mt, err := s.MessageTypes.GetByID(ctx, channelID, messageTypeID)
		if err != nil {
			return fmt.Errorf("failed to get message type %d: %w", messageTypeID, err)
		}
		if mt == nil {
			return fmt.Errorf("message type %d: %w", messageTypeID, models.ErrNotFound)
		}
		if err := s.tx.LockKey(ctx, contentKey(channelID, mt.Date)); err != nil {
			return err
		}

		demoted, err = s.Cells.DemoteApproved(ctx, mt.ID)
		if err != nil {
			return fmt.Errorf("failed to demote approved cells: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.metrics.CellsDemoted(demoted)
	return demoted, nil
}

// GenerateOrRetrieve returns the cell at the given levels. When the cell is
// absent or regenerate is set, the generator is called and the result is
// stored as GENERATED. A failed generation leaves the stored cell untouched.
func (s *Service) GenerateOrRetrieve(ctx context.Context, channelID int64, date time.Time, userLevel, childLevel models.Level, regenerate bool) (*models.ContentCell, error) {
	if err := models.CheckLevels(userLevel, childLevel); err != nil {
		return nil, err
	}
	ch, err := s.channel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	date = models.DateOf(date)

	mt, err := s.MessageTypes.GetByDate(ctx, channelID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to get message type: %w", err)
	}
	if mt == nil {
		return nil, models.NewValidationError(models.CodeNoMessageType, "no message type for %s", models.FormatDate(date))
	}

	if !regenerate {
		cell, err := s.Cells.GetByLevels(ctx, mt.ID, userLevel, childLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to get cell: %w", err)
		}
		if cell != nil {
			return cell, nil
		}
	}

	if !mt.IsComplete() {
		return nil, models.NewValidationError(models.CodeMissingThemeContext, "theme and context must be set before generating")
	}

	generated, err := s.generate(ctx, ch, mt, userLevel, childLevel)
	if err != nil {
		return nil, err
	}

	cell := &models.ContentCell{
		MessageTypeID: mt.ID,
		UserLevel:     userLevel,
		ChildLevel:    childLevel,
		MessageText:   generated.MessageText,
		MomAudio:      models.AudioTrack{Text: generated.MomAudioText},
		ChildAudio:    models.AudioTrack{Text: generated.ChildAudioText},
		DiaryURL:      generated.DiaryURLSuggestion,
		Status:        models.CellStatusGenerated,
	}
	s.fillAudio(ctx, cell)

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.tx.LockKey(ctx, contentKey(channelID, date)); err != nil {
			return err
		}

		current, err := s.MessageTypes.GetByID(ctx, channelID, mt.ID)
		if err != nil {
			return fmt.Errorf("failed to reload message type: %w", err)
		}
		if current == nil || current.Theme != mt.Theme || current.Context != mt.Context {
			return fmt.Errorf("message type %d changed during generation: %w", mt.ID, models.ErrConflict)
		}

		existing, err := s.Cells.GetByLevels(ctx, mt.ID, userLevel, childLevel)
		if err != nil {
			return fmt.Errorf("failed to get cell: %w", err)
		}
		if existing != nil {
			cell.VocaURL = existing.VocaURL
		}

		if cell, err = s.Cells.Upsert(ctx, cell); err != nil {
			return fmt.Errorf("failed to store generated cell: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.CellGenerated()
	s.logger.WithFields(logrus.Fields{
		"channel_id":  channelID,
		"date":        models.FormatDate(date),
		"cell_id":     cell.ID,
		"user_level":  userLevel,
		"child_level": childLevel,
	}).Info("Generated content cell")

	return cell, nil
}

func (s *Service) generate(ctx context.Context, ch *models.Channel, mt *models.MessageType, userLevel, childLevel models.Level) (*models.GeneratedContent, error) {
	if s.generator == nil {
		return nil, &models.UpstreamError{Code: models.CodeGenerationFailed, Err: errors.New("no content generator configured")}
	}

	lang := ch.Language
	if lang == "" {
		lang = s.language
	}

	out, err := s.generator.Generate(ctx, models.GenerationRequest{
		Theme:      mt.Theme,
		Context:    mt.Context,
		UserLevel:  userLevel,
		ChildLevel: childLevel,
		Language:   lang,
	})
	if err == nil && strings.TrimSpace(out.MessageText) == "" {
		err = errors.New("empty message text")
	}
	if err != nil {
		s.metrics.UpstreamFailure(models.CodeGenerationFailed)
		return nil, asUpstream(models.CodeGenerationFailed, err)
	}
	return out, nil
}

// fillAudio synthesizes both narrations of a freshly generated cell. Failures
// are logged and leave the URL empty.
func (s *Service) fillAudio(ctx context.Context, cell *models.ContentCell) {
	if s.synth == nil {
		return
	}
	for _, role := range []models.AudioRole{models.AudioRoleMom, models.AudioRoleChild} {
		track := cell.Audio(role)
		if strings.TrimSpace(track.Text) == "" {
			continue
		}
		url, err := s.synthesize(ctx, track.Text, role)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"message_type_id": cell.MessageTypeID,
				"role":            role,
			}).Warnf("Audio synthesis failed: %v", err)
			continue
		}
		track.URL = url
	}
}

func (s *Service) synthesize(ctx context.Context, text string, role models.AudioRole) (string, error) {
	if s.synth == nil {
		return "", &models.UpstreamError{Code: models.CodeAudioFailed, Err: errors.New("no speech synthesizer configured")}
	}

	voice := s.voices.Mom
	if role == models.AudioRoleChild {
		voice = s.voices.Child
	}

	url, err := s.synth.Synthesize(ctx, models.SynthesisRequest{
		Text:  text,
		Voice: voice,
		Speed: s.voices.Speed,
		Role:  role,
	})
	if err != nil {
		s.metrics.UpstreamFailure(models.CodeAudioFailed)
		return "", asUpstream(models.CodeAudioFailed, err)
	}
	return url, nil
}

func asUpstream(code string, err error) error {
	var ue *models.UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &models.UpstreamError{Code: code, Err: err}
}

// cellForUpdate loads a cell and its MessageType, scoped to the channel.
func (s *Service) cellForUpdate(ctx context.Context, channelID, cellID int64) (*models.ContentCell, *models.MessageType, error) {
	cell, err := s.Cells.GetByID(ctx, channelID, cellID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get cell %d: %w", cellID, err)
	}
	if cell == nil {
		return nil, nil, fmt.Errorf("cell %d: %w", cellID, models.ErrNotFound)
	}
	mt, err := s.MessageTypes.GetByID(ctx, channelID, cell.MessageTypeID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get message type %d: %w", cell.MessageTypeID, err)
	}
	if mt == nil {
		return nil, nil, fmt.Errorf("message type %d: %w", cell.MessageTypeID, models.ErrNotFound)
	}
	return cell, mt, nil
}

// lockedCell runs fn with the cell reloaded under the content lock of its day.
func (s *Service) lockedCell(ctx context.Context, channelID, cellID int64, fn func(ctx context.Context, cell *models.ContentCell, mt *models.MessageType) error) error {
	_, mt, err := s.cellForUpdate(ctx, channelID, cellID)
	if err != nil {
		return err
	}

	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.tx.LockKey(ctx, contentKey(channelID, mt.Date)); err != nil {
			return err
		}
		cell, mt, err := s.cellForUpdate(ctx, channelID, cellID)
		if err != nil {
			return err
		}
		return fn(ctx, cell, mt)
	})
}

// EditCell replaces the content of a cell. An APPROVED cell is demoted to
// GENERATED by any edit.
func (s *Service) EditCell(ctx context.Context, channelID, cellID int64, messageText, diaryURL string, vocaURL *string) (*models.ContentCell, error) {
	var saved *models.ContentCell
	var demoted bool
	err := s.lockedCell(ctx, channelID, cellID, func(ctx context.Context, cell *models.ContentCell, _ *models.MessageType) error {
		cell.MessageText = messageText
		cell.DiaryURL = strings.TrimSpace(diaryURL)
		cell.VocaURL = vocaURL
		demoted = cell.Demote()

		var err error
		if saved, err = s.Cells.Update(ctx, cell); err != nil {
			return fmt.Errorf("failed to update cell %d: %w", cellID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if demoted {
		s.metrics.CellsDemoted(1)
		s.logger.WithFields(logrus.Fields{
			"channel_id": channelID,
			"cell_id":    cellID,
		}).Info("Edited approved cell, approval revoked")
	}
	return saved, nil
}

// Approve moves a GENERATED cell to APPROVED. Approving an APPROVED cell
// fails with ErrConflict.
func (s *Service) Approve(ctx context.Context, channelID, cellID int64) (*models.ContentCell, error) {
	var saved *models.ContentCell
	err := s.lockedCell(ctx, channelID, cellID, func(ctx context.Context, cell *models.ContentCell, mt *models.MessageType) error {
		if cell.IsApproved() {
			return fmt.Errorf("cell %d is already approved: %w", cellID, models.ErrConflict)
		}
		if cell.Status != models.CellStatusGenerated {
			return fmt.Errorf("cell %d has status %s: %w", cellID, cell.Status, models.ErrConflict)
		}
		if !mt.IsComplete() {
			return models.NewValidationError(models.CodeMissingThemeContext, "theme and context must be set before approving")
		}
		if err := cell.Approvable(); err != nil {
			return err
		}

		cell.Status = models.CellStatusApproved
		var err error
		if saved, err = s.Cells.Update(ctx, cell); err != nil {
			return fmt.Errorf("failed to approve cell %d: %w", cellID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.CellApproved()
	s.logger.WithFields(logrus.Fields{
		"channel_id": channelID,
		"cell_id":    cellID,
	}).Info("Approved cell")
	return saved, nil
}

// GetMatrix returns the MessageType and the 3x3 matrix of a day. A day
// without a MessageType yields an all EMPTY matrix.
func (s *Service) GetMatrix(ctx context.Context, channelID int64, date time.Time) (*MatrixView, error) {
	if _, err := s.channel(ctx, channelID); err != nil {
		return nil, err
	}

	view := &MatrixView{}
	mt, err := s.MessageTypes.GetByDate(ctx, channelID, models.DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("failed to get message type: %w", err)
	}
	if mt != nil {
		cells, err := s.Cells.ListByMessageType(ctx, mt.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list cells: %w", err)
		}
		if view.Matrix, err = models.NewMatrix(cells); err != nil {
			return nil, err
		}
		view.MessageType = mt
	}
	view.Counts = view.Matrix.Counts()
	return view, nil
}

// SynthesizeAudio re-renders one narration of a cell. The cell status is
// never changed.
func (s *Service) SynthesizeAudio(ctx context.Context, channelID, cellID int64, role models.AudioRole) (*models.ContentCell, error) {
	if role != models.AudioRoleMom && role != models.AudioRoleChild {
		return nil, models.NewValidationError(models.CodeInvalidAudioRole, "unknown audio role %q", role)
	}

	cell, _, err := s.cellForUpdate(ctx, channelID, cellID)
	if err != nil {
		return nil, err
	}
	text := cell.Audio(role).Text
	if strings.TrimSpace(text) == "" {
		return nil, models.NewValidationError(models.CodeEmptyMessageText, "cell %d has no %s narration", cellID, role)
	}

	url, err := s.synthesize(ctx, text, role)
	if err != nil {
		return nil, err
	}

	var saved *models.ContentCell
	err = s.lockedCell(ctx, channelID, cellID, func(ctx context.Context, cell *models.ContentCell, _ *models.MessageType) error {
		track := cell.Audio(role)
		if track.Text != text {
			return fmt.Errorf("cell %d narration changed during synthesis: %w", cellID, models.ErrConflict)
		}
		track.URL = url

		var err error
		if saved, err = s.Cells.Update(ctx, cell); err != nil {
			return fmt.Errorf("failed to store audio for cell %d: %w", cellID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}
