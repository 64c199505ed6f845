package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Bot wraps the Telegram bot API. It receives friend registrations and
// delivers daily content to users by their Telegram user id.
type Bot struct {
	api    *tgbotapi.BotAPI
	logger *logrus.Logger
	router *Router
}

// NewBot creates a new Telegram bot instance
func NewBot(token string, logger *logrus.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	logger.Infof("Authorized on account %s", api.Self.UserName)

	return &Bot{
		api:    api,
		logger: logger,
		router: NewRouter(logger),
	}, nil
}

// Start starts the bot with long polling and blocks until ctx is done
func (b *Bot) Start(ctx context.Context) error {
	// Delete webhook if exists and use polling
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Bot started with long polling")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Stopping bot...")
			b.api.StopReceivingUpdates()
			return nil
		case update := <-updates:
			go b.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate processes incoming updates
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorf("Panic in update handler: %v", r)
		}
	}()

	if update.Message != nil {
		b.router.HandleMessage(ctx, b.api, update.Message)
	}
}

// SendText sends a plain text message to the user's private chat
func (b *Bot) SendText(ctx context.Context, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := b.api.Send(tgbotapi.NewMessage(userID, text)); err != nil {
		return fmt.Errorf("failed to send message to %d: %w", userID, err)
	}
	return nil
}

// SendAudio sends a hosted audio file to the user's private chat
func (b *Bot) SendAudio(ctx context.Context, userID int64, url, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	audio := tgbotapi.NewAudio(userID, tgbotapi.FileURL(url))
	audio.Caption = truncateCaption(caption)

	if _, err := b.api.Send(audio); err != nil {
		return fmt.Errorf("failed to send audio to %d: %w", userID, err)
	}
	return nil
}

// maxCaption is the Telegram limit for media captions, in characters.
const maxCaption = 1024

func truncateCaption(caption string) string {
	runes := []rune(caption)
	if len(runes) <= maxCaption {
		return caption
	}
	return string(runes[:maxCaption-1]) + "…"
}

// RegisterCommand registers a command handler on the router
func (b *Bot) RegisterCommand(command string, handler CommandHandler) {
	b.router.RegisterCommand(command, handler)
}

// RegisterContact registers the shared contact handler on the router
func (b *Bot) RegisterContact(handler ContactHandler) {
	b.router.RegisterContact(handler)
}
