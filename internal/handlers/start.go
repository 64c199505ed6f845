package handlers

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/DailyCast/internal/models"
	"github.com/Kerhoff/DailyCast/internal/telegram"
)

// FriendRegistry records which users may receive deliveries
type FriendRegistry interface {
	SetFriendStatus(ctx context.Context, channelID, userID int64, phone string, isFriend bool) (*models.ChannelUser, error)
	SetUserLevels(ctx context.Context, channelID, userID int64, userLevel, childLevel models.Level) error
}

// StartHandler handles the /start command and shared contacts
type StartHandler struct {
	registry  FriendRegistry
	channelID int64
	logger    *logrus.Logger
}

// NewStartHandler creates a new start command handler
func NewStartHandler(registry FriendRegistry, channelID int64, logger *logrus.Logger) *StartHandler {
	return &StartHandler{
		registry:  registry,
		channelID: channelID,
		logger:    logger,
	}
}

// Handle processes the /start command
func (h *StartHandler) Handle(ctx context.Context, bot telegram.Replier, message *tgbotapi.Message, args []string) error {
	if _, err := h.registry.SetFriendStatus(ctx, h.channelID, message.From.ID, "", true); err != nil {
		return fmt.Errorf("failed to register friend: %w", err)
	}

	welcomeText := `🎧 *Welcome to DailyCast!*

Every day you will receive a short message with audio for you and your child.

Please share your phone number with the button below so we can match your purchase.
Use /level to choose your levels and /stop to pause deliveries.`

	msg := tgbotapi.NewMessage(message.Chat.ID, welcomeText)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = tgbotapi.NewOneTimeReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact("📱 Share phone number")),
	)

	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send start message: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"channel_id": h.channelID,
		"user_id":    message.From.ID,
	}).Info("Registered friend")

	return nil
}

// HandleContact stores the phone number of a user who shared their own contact
func (h *StartHandler) HandleContact(ctx context.Context, bot telegram.Replier, message *tgbotapi.Message) error {
	contact := message.Contact
	if contact.UserID != message.From.ID {
		_, err := bot.Send(tgbotapi.NewMessage(message.Chat.ID, "Please share your own contact."))
		return err
	}

	if _, err := h.registry.SetFriendStatus(ctx, h.channelID, message.From.ID, contact.PhoneNumber, true); err != nil {
		return fmt.Errorf("failed to save phone number: %w", err)
	}

	reply := tgbotapi.NewMessage(message.Chat.ID, "✅ Thanks! Your phone number is saved.")
	reply.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	if _, err := bot.Send(reply); err != nil {
		return fmt.Errorf("failed to send contact reply: %w", err)
	}
	return nil
}

// StopHandler handles the /stop command
type StopHandler struct {
	registry  FriendRegistry
	channelID int64
	logger    *logrus.Logger
}

func NewStopHandler(registry FriendRegistry, channelID int64, logger *logrus.Logger) *StopHandler {
	return &StopHandler{registry: registry, channelID: channelID, logger: logger}
}

func (h *StopHandler) Handle(ctx context.Context, bot telegram.Replier, message *tgbotapi.Message, args []string) error {
	if _, err := h.registry.SetFriendStatus(ctx, h.channelID, message.From.ID, "", false); err != nil {
		return fmt.Errorf("failed to unregister friend: %w", err)
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, "⏸ Deliveries paused. Send /start to resume.")
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send stop message: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"channel_id": h.channelID,
		"user_id":    message.From.ID,
	}).Info("Unregistered friend")

	return nil
}
