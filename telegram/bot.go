// Package telegram is the chat transport. Bot wraps go-telegram/bot for outbound calls;
// Handlers routes commands and button presses to the subscription menu.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/DanArmor/melatonin-bot/menu"
)

// RequestTimeout bounds every outbound API call.
const RequestTimeout = 30 * time.Second

// Bot wraps the Telegram client.
type Bot struct {
	api      *tgbot.Bot
	fallback tgbot.HandlerFunc
}

// New creates the client. Extra options are passed through (tests use WithServerURL).
func New(token string, opts ...tgbot.Option) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	b := &Bot{}
	opts = append([]tgbot.Option{tgbot.WithDefaultHandler(b.handleDefault)}, opts...)
	api, err := tgbot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	b.api = api
	return b, nil
}

// Raw returns the underlying client for handler registration.
func (b *Bot) Raw() *tgbot.Bot { return b.api }

// SetFallback installs the handler for updates no registered pattern matched.
func (b *Bot) SetFallback(f tgbot.HandlerFunc) { b.fallback = f }

func (b *Bot) handleDefault(ctx context.Context, api *tgbot.Bot, update *models.Update) {
	if b.fallback != nil {
		b.fallback(ctx, api, update)
	}
}

// Start long-polls for updates until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	slog.Info("telegram bot starting", slog.String("component", "telegram"))
	b.api.Start(ctx)
	slog.Info("telegram bot stopped", slog.String("component", "telegram"))
}

// Keyboard converts menu rows into an inline keyboard. The result is never nil so an
// empty menu clears the keyboard on edit.
func Keyboard(rows [][]menu.Button) *models.InlineKeyboardMarkup {
	kb := make([][]models.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		r := make([]models.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			r = append(r, models.InlineKeyboardButton{Text: btn.Label, CallbackData: btn.Data})
		}
		kb = append(kb, r)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: kb}
}

// SendMessage sends plain text, with a keyboard when rows is non-empty.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string, rows [][]menu.Button) error {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()
	params := &tgbot.SendMessageParams{ChatID: chatID, Text: text}
	if len(rows) > 0 {
		params.ReplyMarkup = Keyboard(rows)
	}
	_, err := b.api.SendMessage(ctx, params)
	return err
}

// SendPhoto sends a photo by URL with a MarkdownV2 caption.
func (b *Bot) SendPhoto(ctx context.Context, chatID int64, photoURL, caption string) error {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()
	_, err := b.api.SendPhoto(ctx, &tgbot.SendPhotoParams{
		ChatID:    chatID,
		Photo:     &models.InputFileString{Data: photoURL},
		Caption:   caption,
		ParseMode: models.ParseModeMarkdown,
	})
	return err
}

// EditMessageText replaces a message's text. Telegram drops the keyboard on a text
// edit, so callers follow up with EditMessageReplyMarkup.
func (b *Bot) EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()
	_, err := b.api.EditMessageText(ctx, &tgbot.EditMessageTextParams{ChatID: chatID, MessageID: messageID, Text: text})
	return err
}

// EditMessageReplyMarkup replaces a message's keyboard.
func (b *Bot) EditMessageReplyMarkup(ctx context.Context, chatID int64, messageID int, rows [][]menu.Button) error {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()
	_, err := b.api.EditMessageReplyMarkup(ctx, &tgbot.EditMessageReplyMarkupParams{
		ChatID:      chatID,
		MessageID:   messageID,
		ReplyMarkup: Keyboard(rows),
	})
	return err
}

// AnswerCallback acknowledges a button press so the client stops its spinner.
func (b *Bot) AnswerCallback(ctx context.Context, callbackID string) error {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()
	_, err := b.api.AnswerCallbackQuery(ctx, &tgbot.AnswerCallbackQueryParams{CallbackQueryID: callbackID})
	return err
}

// Commands is the command list shown in the client's menu.
var Commands = []models.BotCommand{
	{Command: "start", Description: "Начать работу с ботом"},
	{Command: "waves", Description: "Выбрать втуберов"},
	{Command: "about", Description: "О боте"},
}

// SetCommands publishes Commands.
func (b *Bot) SetCommands(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()
	_, err := b.api.SetMyCommands(ctx, &tgbot.SetMyCommandsParams{Commands: Commands})
	return err
}
