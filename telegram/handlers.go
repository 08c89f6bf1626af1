package telegram

import (
	"context"
	"log/slog"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"

	"github.com/DanArmor/melatonin-bot/db"
	"github.com/DanArmor/melatonin-bot/menu"
	"github.com/DanArmor/melatonin-bot/telemetry"
)

const (
	AboutText = "Бот, напоминающий о стримах выбранных втуберов NijiEN за 15-20 минут до начала\n" +
		"Жалобы/предложения - @DanArmor\n" +
		"Код бота: https://github.com/DanArmor/melatonin-bot\n" +
		"Если что-то не работает - попробуйте команду /start\n" +
		"Если и это не помогло - напишите админу"
	UnknownCommandText = "Команда не распознана"
)

// Transport is the outbound surface the handlers use.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string, rows [][]menu.Button) error
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error
	EditMessageReplyMarkup(ctx context.Context, chatID int64, messageID int, rows [][]menu.Button) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// Users records first contact.
type Users interface {
	EnsureUser(ctx context.Context, u db.User) (bool, error)
}

// Handlers routes updates to the menu machine.
type Handlers struct {
	menu  *menu.Machine
	users Users
	out   Transport
}

func NewHandlers(m *menu.Machine, users Users, out Transport) *Handlers {
	return &Handlers{menu: m, users: users, out: out}
}

// Register attaches the command and callback routes to b.
func (h *Handlers) Register(b *Bot) {
	api := b.Raw()
	api.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypePrefix, h.HandleStart)
	api.RegisterHandler(tgbot.HandlerTypeMessageText, "/waves", tgbot.MatchTypeExact, h.HandleWaves)
	api.RegisterHandler(tgbot.HandlerTypeMessageText, "/about", tgbot.MatchTypeExact, h.HandleAbout)
	api.RegisterHandler(tgbot.HandlerTypeCallbackQueryData, "wave_", tgbot.MatchTypePrefix, h.HandleCallback)
	api.RegisterHandler(tgbot.HandlerTypeCallbackQueryData, "member_", tgbot.MatchTypePrefix, h.HandleCallback)
	b.SetFallback(h.HandleDefault)
}

func interactionContext(ctx context.Context) (context.Context, *slog.Logger) {
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	return ctx, telemetry.LoggerWithCorr(ctx).With(slog.String("component", "telegram"))
}

func messageUser(msg *models.Message) db.User {
	u := db.User{ChatID: msg.Chat.ID}
	if msg.From != nil {
		u.ExternalUserID = msg.From.ID
		u.FirstName = msg.From.FirstName
		u.LastName = msg.From.LastName
		u.Username = msg.From.Username
	}
	return u
}

// HandleStart records the user and sends the greeting with the root menu.
func (h *Handlers) HandleStart(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	h.rootCommand(ctx, update, "start", menu.GreetingText)
}

// HandleWaves sends the root menu.
func (h *Handlers) HandleWaves(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	h.rootCommand(ctx, update, "waves", menu.RootText)
}

func (h *Handlers) rootCommand(ctx context.Context, update *models.Update, action, text string) {
	if update.Message == nil {
		return
	}
	ctx, log := interactionContext(ctx)
	u := messageUser(update.Message)
	log = log.With(slog.Int64("user_id", u.ExternalUserID), slog.String("action", action))
	log.Info("user action")

	screen, err := h.rootScreen(ctx, u)
	telemetry.RecordMenuAction(action, err != nil)
	if err != nil {
		log.Error("root menu failed", slog.Any("err", err))
		screen = menu.FailureScreen()
	} else {
		screen.Text = text
	}
	if err := h.out.SendMessage(ctx, u.ChatID, screen.Text, screen.Keyboard); err != nil {
		log.Warn("send failed", slog.Any("err", err))
	}
}

func (h *Handlers) rootScreen(ctx context.Context, u db.User) (menu.Screen, error) {
	if _, err := h.users.EnsureUser(ctx, u); err != nil {
		return menu.Screen{}, err
	}
	return h.menu.Root(ctx, u.ExternalUserID)
}

// HandleAbout sends the static about text.
func (h *Handlers) HandleAbout(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	h.staticReply(ctx, update, "about", AboutText)
}

// HandleDefault answers anything unrecognized. A button press with unknown data is
// only acknowledged so the client stops its spinner.
func (h *Handlers) HandleDefault(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	if cq := update.CallbackQuery; cq != nil {
		ctx, log := interactionContext(ctx)
		log.Warn("unrouted callback", slog.Int64("user_id", cq.From.ID), slog.String("data", cq.Data))
		telemetry.RecordMenuAction("unknown_callback", true)
		if err := h.out.AnswerCallback(ctx, cq.ID); err != nil {
			log.Debug("callback answer failed", slog.Any("err", err))
		}
		return
	}
	h.staticReply(ctx, update, "unknown", UnknownCommandText)
}

func (h *Handlers) staticReply(ctx context.Context, update *models.Update, action, text string) {
	if update.Message == nil {
		return
	}
	ctx, log := interactionContext(ctx)
	u := messageUser(update.Message)
	log = log.With(slog.Int64("user_id", u.ExternalUserID), slog.String("action", action))
	log.Info("user action")
	if _, err := h.users.EnsureUser(ctx, u); err != nil {
		log.Warn("user not recorded", slog.Any("err", err))
	}
	telemetry.RecordMenuAction(action, false)
	if err := h.out.SendMessage(ctx, u.ChatID, text, nil); err != nil {
		log.Warn("send failed", slog.Any("err", err))
	}
}

// callbackTarget returns the chat and message a button press belongs to.
func callbackTarget(cq *models.CallbackQuery) (chatID int64, messageID int, ok bool) {
	switch {
	case cq.Message.Message != nil:
		return cq.Message.Message.Chat.ID, cq.Message.Message.ID, true
	case cq.Message.InaccessibleMessage != nil:
		return cq.Message.InaccessibleMessage.Chat.ID, cq.Message.InaccessibleMessage.MessageID, true
	}
	return 0, 0, false
}

// HandleCallback performs a menu transition and edits the originating message in place.
// Any failure replaces the message text with the generic failure notice.
func (h *Handlers) HandleCallback(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	cq := update.CallbackQuery
	if cq == nil {
		return
	}
	ctx, log := interactionContext(ctx)
	defer func() {
		if err := h.out.AnswerCallback(ctx, cq.ID); err != nil {
			log.Debug("callback answer failed", slog.Any("err", err))
		}
	}()

	chatID, messageID, ok := callbackTarget(cq)
	if !ok {
		log.Warn("callback without message", slog.String("data", cq.Data))
		return
	}
	action := "callback"
	if act, err := menu.ParsePayload(cq.Data); err == nil {
		action = act.Kind.String()
	}
	log = log.With(slog.Int64("user_id", cq.From.ID), slog.String("action", action))
	log.Info("user action", slog.String("data", cq.Data))

	u := db.User{ExternalUserID: cq.From.ID, ChatID: chatID, FirstName: cq.From.FirstName, LastName: cq.From.LastName, Username: cq.From.Username}
	tr, err := h.transition(ctx, u, cq.Data)
	telemetry.RecordMenuAction(action, err != nil)
	if err != nil {
		log.Error("menu transition failed", slog.Any("err", err))
		if err := h.out.EditMessageText(ctx, chatID, messageID, menu.FailureText); err != nil {
			log.Warn("failure notice not shown", slog.Any("err", err))
		}
		return
	}
	if tr.ReplaceText {
		if err := h.out.EditMessageText(ctx, chatID, messageID, tr.Screen.Text); err != nil {
			log.Warn("edit text failed", slog.Any("err", err))
			return
		}
	}
	if err := h.out.EditMessageReplyMarkup(ctx, chatID, messageID, tr.Screen.Keyboard); err != nil {
		log.Warn("edit keyboard failed", slog.Any("err", err))
	}
}

func (h *Handlers) transition(ctx context.Context, u db.User, data string) (menu.Transition, error) {
	if _, err := h.users.EnsureUser(ctx, u); err != nil {
		return menu.Transition{}, err
	}
	return h.menu.Handle(ctx, u.ExternalUserID, data)
}
