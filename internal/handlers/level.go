package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/DailyCast/internal/models"
	"github.com/Kerhoff/DailyCast/internal/telegram"
)

const levelUsage = "Usage: /level <your level 1-3> <child level 1-3>\nExample: /level 2 1"

// LevelHandler handles the /level command
type LevelHandler struct {
	registry  FriendRegistry
	channelID int64
	logger    *logrus.Logger
}

func NewLevelHandler(registry FriendRegistry, channelID int64, logger *logrus.Logger) *LevelHandler {
	return &LevelHandler{registry: registry, channelID: channelID, logger: logger}
}

func (h *LevelHandler) Handle(ctx context.Context, bot telegram.Replier, message *tgbotapi.Message, args []string) error {
	reply := func(text string) error {
		_, err := bot.Send(tgbotapi.NewMessage(message.Chat.ID, text))
		return err
	}

	if len(args) != 2 {
		return reply(levelUsage)
	}
	userLevel, err1 := strconv.Atoi(args[0])
	childLevel, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		return reply(levelUsage)
	}

	err := h.registry.SetUserLevels(ctx, h.channelID, message.From.ID, models.Level(userLevel), models.Level(childLevel))
	switch {
	case errors.Is(err, models.ErrValidation):
		return reply(levelUsage)
	case errors.Is(err, models.ErrNotFound):
		return reply("Please send /start first.")
	case err != nil:
		return fmt.Errorf("failed to set levels: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"channel_id":  h.channelID,
		"user_id":     message.From.ID,
		"user_level":  userLevel,
		"child_level": childLevel,
	}).Info("Updated user levels")

	return reply(fmt.Sprintf("✅ Levels saved: you %d, your child %d.", userLevel, childLevel))
}
