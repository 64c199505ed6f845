package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Replier sends a reply through the bot API. *tgbotapi.BotAPI implements it.
type Replier interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Router handles message routing and command parsing
type Router struct {
	logger   *logrus.Logger
	handlers map[string]CommandHandler
	contact  ContactHandler
}

// CommandHandler defines the interface for command handlers
type CommandHandler interface {
	Handle(ctx context.Context, bot Replier, message *tgbotapi.Message, args []string) error
}

// ContactHandler receives contacts shared through the request-contact keyboard
type ContactHandler interface {
	HandleContact(ctx context.Context, bot Replier, message *tgbotapi.Message) error
}

// NewRouter creates a new message router
func NewRouter(logger *logrus.Logger) *Router {
	return &Router{
		logger:   logger,
		handlers: make(map[string]CommandHandler),
	}
}

// RegisterCommand registers a command handler
func (r *Router) RegisterCommand(command string, handler CommandHandler) {
	r.handlers[command] = handler
	r.logger.Debugf("Registered command: %s", command)
}

// RegisterContact sets the handler for shared contacts
func (r *Router) RegisterContact(handler ContactHandler) {
	r.contact = handler
}

// HandleMessage handles incoming messages
func (r *Router) HandleMessage(ctx context.Context, bot Replier, message *tgbotapi.Message) {
	// channel posts carry no sender
	if message.From == nil || message.Chat == nil {
		return
	}

	r.logger.WithFields(logrus.Fields{
		"chat_id":    message.Chat.ID,
		"user_id":    message.From.ID,
		"message_id": message.MessageID,
	}).Debug("Received message")

	if message.Contact != nil {
		if r.contact == nil {
			return
		}
		if err := r.contact.HandleContact(ctx, bot, message); err != nil {
			r.fail(bot, message, "contact", err)
		}
		return
	}

	if message.Text == "" || !message.IsCommand() {
		return
	}

	command := message.Command()
	args := strings.Fields(message.CommandArguments())

	handler, exists := r.handlers[command]
	if !exists {
		r.logger.WithFields(logrus.Fields{
			"command": command,
			"chat_id": message.Chat.ID,
			"user_id": message.From.ID,
		}).Warn("Unknown command")

		unknownMsg := tgbotapi.NewMessage(message.Chat.ID, "❓ Unknown command. Use /help to see available commands.")
		bot.Send(unknownMsg)
		return
	}

	if err := handler.Handle(ctx, bot, message, args); err != nil {
		r.fail(bot, message, command, err)
	}
}

func (r *Router) fail(bot Replier, message *tgbotapi.Message, command string, err error) {
	r.logger.WithFields(logrus.Fields{
		"command": command,
		"chat_id": message.Chat.ID,
		"user_id": message.From.ID,
		"error":   err,
	}).Error("Command handler failed")

	errorMsg := tgbotapi.NewMessage(message.Chat.ID, "❌ Something went wrong. Please try again later.")
	bot.Send(errorMsg)
}
