package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/DailyCast/internal/models"
)

func TestSaveMessageTypeCreatesOncePerDay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, demoted, err := h.svc.SaveMessageType(ctx, seoulChannel, day, " spring ", "park", false)
	require.NoError(t, err)
	assert.Equal(t, 0, demoted)
	assert.Equal(t, "spring", first.Theme)

	second, _, err := h.svc.SaveMessageType(ctx, seoulChannel, day.Add(5*time.Hour), "summer", "beach", false)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "summer", second.Theme)
}

func TestSaveMessageTypeUnknownChannel(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.svc.SaveMessageType(context.Background(), 999, day, "a", "b", false)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGenerateOrRetrieveValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.GenerateOrRetrieve(ctx, seoulChannel, day, 1, 1, false)
	assert.Equal(t, models.CodeNoMessageType, models.ValidationCode(err))
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = h.svc.GenerateOrRetrieve(ctx, seoulChannel, day, 0, 4, false)
	assert.Equal(t, models.CodeInvalidLevel, models.ValidationCode(err))

	_, _, err = h.svc.SaveMessageType(ctx, seoulChannel, day, "spring", "", false)
	require.NoError(t, err)
	_, err = h.svc.GenerateOrRetrieve(ctx, seoulChannel, day, 1, 1, false)
	assert.Equal(t, models.CodeMissingThemeContext, models.ValidationCode(err))
	assert.Equal(t, 0, h.gen.calls)
}

func TestGenerateOrRetrieveReusesExistingCell(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.svc.SaveMessageType(ctx, seoulChannel, day, "spring", "park", false)
	require.NoError(t, err)

	first, err := h.svc.GenerateOrRetrieve(ctx, seoulChannel, day, 2, 3, false)
	require.NoError(t, err)
	assert.Equal(t, models.CellStatusGenerated, first.Status)
	assert.Equal(t, "https://diary.example/1", first.DiaryURL)

	again, err := h.svc.GenerateOrRetrieve(ctx, seoulChannel, day, 2, 3, false)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.MessageText, again.MessageText)
	assert.Equal(t, 1, h.gen.calls)

	regenerated, err := h.svc.GenerateOrRetrieve(ctx, seoulChannel, day, 2, 3, true)
	require.NoError(t, err)
	assert.Equal(t, first.ID, regenerated.ID)
	assert.NotEqual(t, first.MessageText, regenerated.MessageText)
	assert.Equal(t, 2, h.gen.calls)
}

func TestMatrixHoldsAtMostOneCellPerLevelPair(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.svc.SaveMessageType(ctx, seoulChannel, day, "spring", "park", false)
	require.NoError(t, err)

	for round := 0; round < 2; round++ {
		for u := models.MinLevel; u <= models.MaxLevel; u++ {
			for c := models.MinLevel; c <= models.MaxLevel; c++ {
				_, err := h.svc.GenerateOrRetrieve(ctx, seoulChannel, day, u, c, round == 1)
				require.NoError(t, err)
			}
		}
	}

	view, err := h.svc.GetMatrix(ctx, seoulChannel, day)
	require.NoError(t, err)
	require.NotNil(t, view.MessageType)
	assert.Len(t, view.Matrix.Cells(), 9)
	assert.Equal(t, 9, view.Counts[models.CellStatusGenerated])
	assert.Equal(t, 0, view.Counts[models.CellStatusEmpty])

	seen := make(map[[2]models.Level]bool)
	for _, c := range view.Matrix.Cells() {
		key := [2]models.Level{c.UserLevel, c.ChildLevel}
		assert.False(t, seen[key], "duplicate cell %v", key)
		seen[key] = true
	}
}

func TestGetMatrixWithoutMessageType(t *testing.T) {
	h := newHarness(t)

	view, err := h.svc.GetMatrix(context.Background(), seoulChannel, day)
	require.NoError(t, err)
	assert.Nil(t, view.MessageType)
	assert.Equal(t, 9, view.Counts[models.CellStatusEmpty])
}

func TestGenerationFailureLeavesCellUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	approved := h.approvedCell(t, seoulChannel, day)
	h.gen.err = errors.New("model overloaded")

	_, err := h.svc.GenerateOrRetrieve(ctx, seoulChannel, day, 1, 1, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUpstream)

	var ue *models.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, models.CodeGenerationFailed, ue.Code)

	stored := h.storedCell(approved.ID)
	assert.Equal(t, models.CellStatusApproved, stored.Status)
	assert.Equal(t, approved.MessageText, stored.MessageText)
}

func TestAudioFailureDoesNotFailGeneration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.synth.fail[models.AudioRoleChild] = true

	_, _, err := h.svc.SaveMessageType(ctx, seoulChannel, day, "spring", "park", false)
	require.NoError(t, err)

	cell, err := h.svc.GenerateOrRetrieve(ctx, seoulChannel, day, 1, 2, false)
	require.NoError(t, err)
	assert.Equal(t, models.CellStatusGenerated, cell.Status)
	assert.NotEmpty(t, cell.MomAudio.URL)
	assert.Empty(t, cell.ChildAudio.URL)
	assert.Equal(t, "child says spring", cell.ChildAudio.Text)
	assert.Equal(t, "mom-voice", h.synth.calls[0].Voice)
}

func TestGenerateConflictsWhenThemeChangesMeanwhile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.svc.SaveMessageType(ctx, seoulChannel, day, "spring", "park", false)
	require.NoError(t, err)

	h.gen.during = func() {
		_, _, err := h.svc.SaveMessageType(ctx, seoulChannel, day, "autumn", "leaves", true)
		require.NoError(t, err)
	}

	_, err = h.svc.GenerateOrRetrieve(ctx, seoulChannel, day, 1, 1, false)
	assert.ErrorIs(t, err, models.ErrConflict)

	view, err := h.svc.GetMatrix(ctx, seoulChannel, day)
	require.NoError(t, err)
	assert.Empty(t, view.Matrix.Cells())
}

func TestApproveRequiresContent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.svc.SaveMessageType(ctx, seoulChannel, day, "spring", "park", false)
	require.NoError(t, err)
	cell, err := h.svc.GenerateOrRetrieve(ctx, seoulChannel, day, 1, 1, false)
	require.NoError(t, err)

	_, err = h.svc.EditCell(ctx, seoulChannel, cell.ID, "hello", "  ", nil)
	require.NoError(t, err)
	_, err = h.svc.Approve(ctx, seoulChannel, cell.ID)
	assert.Equal(t, models.CodeEmptyDiaryURL, models.ValidationCode(err))

	_, err = h.svc.EditCell(ctx, seoulChannel, cell.ID, "", "https://diary/1", nil)
	require.NoError(t, err)
	_, err = h.svc.Approve(ctx, seoulChannel, cell.ID)
	assert.Equal(t, models.CodeEmptyMessageText, models.ValidationCode(err))

	_, err = h.svc.EditCell(ctx, seoulChannel, cell.ID, "hello", "https://diary/1", nil)
	require.NoError(t, err)
	approved, err := h.svc.Approve(ctx, seoulChannel, cell.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CellStatusApproved, approved.Status)
}

func TestApproveTwiceConflictsUntilEdited(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cell := h.approvedCell(t, seoulChannel, day)

	_, err := h.svc.Approve(ctx, seoulChannel, cell.ID)
	assert.ErrorIs(t, err, models.ErrConflict)

	voca := "https://voca/1"
	edited, err := h.svc.EditCell(ctx, seoulChannel, cell.ID, "new text", cell.DiaryURL, &voca)
	require.NoError(t, err)
	assert.Equal(t, models.CellStatusGenerated, edited.Status)
	require.NotNil(t, edited.VocaURL)

	again, err := h.svc.Approve(ctx, seoulChannel, cell.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CellStatusApproved, again.Status)
	assert.Equal(t, "new text", again.MessageText)
}

func TestApproveRejectsMissingThemeContext(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.svc.SaveMessageType(ctx, seoulChannel, day, "spring", "park", false)
	require.NoError(t, err)
	cell, err := h.svc.GenerateOrRetrieve(ctx, seoulChannel, day, 3, 3, false)
	require.NoError(t, err)

	_, _, err = h.svc.SaveMessageType(ctx, seoulChannel, day, "spring", "", false)
	require.NoError(t, err)

	_, err = h.svc.Approve(ctx, seoulChannel, cell.ID)
	assert.Equal(t, models.CodeMissingThemeContext, models.ValidationCode(err))
}

func TestEditingMessageTypeDemotesEveryApprovedCell(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.approvedCell(t, seoulChannel, day)
	second, err := h.svc.GenerateOrRetrieve(ctx, seoulChannel, day, 2, 2, false)
	require.NoError(t, err)
	_, err = h.svc.Approve(ctx, seoulChannel, second.ID)
	require.NoError(t, err)
	draft, err := h.svc.GenerateOrRetrieve(ctx, seoulChannel, day, 3, 1, false)
	require.NoError(t, err)

	_, _, err = h.svc.SaveMessageType(ctx, seoulChannel, day, "summer", "beach", false)
	assert.Equal(t, models.CodeCascadeNotConfirmed, models.ValidationCode(err))
	assert.Equal(t, models.CellStatusApproved, h.storedCell(first.ID).Status)

	mt, demoted, err := h.svc.SaveMessageType(ctx, seoulChannel, day, "summer", "beach", true)
	require.NoError(t, err)
	assert.Equal(t, 2, demoted)
	assert.Equal(t, "summer", mt.Theme)

	view, err := h.svc.GetMatrix(ctx, seoulChannel, day)
	require.NoError(t, err)
	assert.Equal(t, 0, view.Counts[models.CellStatusApproved])
	assert.Equal(t, 3, view.Counts[models.CellStatusGenerated])
	assert.Equal(t, models.CellStatusGenerated, h.storedCell(draft.ID).Status)
}

func TestSavingUnchangedMessageTypeKeepsApprovals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cell := h.approvedCell(t, seoulChannel, day)

	_, demoted, err := h.svc.SaveMessageType(ctx, seoulChannel, day, "spring", "a walk in the park", false)
	require.NoError(t, err)
	assert.Equal(t, 0, demoted)
	assert.Equal(t, models.CellStatusApproved, h.storedCell(cell.ID).Status)
}

func TestApproveWaitsForContentLock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.svc.SaveMessageType(ctx, seoulChannel, day, "spring", "park", false)
	require.NoError(t, err)
	cell, err := h.svc.GenerateOrRetrieve(ctx, seoulChannel, day, 1, 1, false)
	require.NoError(t, err)

	locked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = h.svc.tx.RunInTx(ctx, func(ctx context.Context) error {
			if err := h.svc.tx.LockKey(ctx, contentKey(seoulChannel, day)); err != nil {
				return err
			}
			close(locked)
			<-release
			_, err := h.svc.OnMessageTypeEdited(ctx, seoulChannel, cell.MessageTypeID)
			return err
		})
	}()
	<-locked

	done := make(chan error, 1)
	go func() {
		_, err := h.svc.Approve(ctx, seoulChannel, cell.ID)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("approve finished while the content lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, models.CellStatusApproved, h.storedCell(cell.ID).Status)
}

func TestCellsAreScopedByChannel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cell := h.approvedCell(t, seoulChannel, day)

	_, err := h.svc.EditCell(ctx, otherChannel, cell.ID, "x", "y", nil)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = h.svc.Approve(ctx, otherChannel, cell.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSynthesizeAudioKeepsStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cell := h.approvedCell(t, seoulChannel, day)

	updated, err := h.svc.SynthesizeAudio(ctx, seoulChannel, cell.ID, models.AudioRoleChild)
	require.NoError(t, err)
	assert.Equal(t, models.CellStatusApproved, updated.Status)
	assert.NotEqual(t, cell.ChildAudio.URL, updated.ChildAudio.URL)
	assert.Equal(t, "child-voice", h.synth.calls[len(h.synth.calls)-1].Voice)

	h.synth.fail[models.AudioRoleMom] = true
	_, err = h.svc.SynthesizeAudio(ctx, seoulChannel, cell.ID, models.AudioRoleMom)
	var ue *models.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, models.CodeAudioFailed, ue.Code)
	assert.Equal(t, models.CellStatusApproved, h.storedCell(cell.ID).Status)

	_, err = h.svc.SynthesizeAudio(ctx, seoulChannel, cell.ID, "narrator")
	assert.Equal(t, models.CodeInvalidAudioRole, models.ValidationCode(err))
}
