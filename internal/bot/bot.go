// Package bot wires the Telegram update loop to the ticket digests. It
// answers commands and keyboard presses interactively and pushes the
// summary digest to every tracked chat on a weekday schedule.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/a-atpv/report-bot-amu/internal/config"
	"github.com/a-atpv/report-bot-amu/internal/digest"
	"github.com/a-atpv/report-bot-amu/internal/registry"
	"github.com/a-atpv/report-bot-amu/internal/storage/mysql"
)

// Deps carries everything a Bot needs. All fields are required.
type Deps struct {
	API       *tgbotapi.BotAPI
	Store     *mysql.Store
	Digest    *digest.Composer
	Registry  *registry.Registry
	Log       *zap.Logger
	Location  *time.Location
	SendTimes []config.ClockTime
}

type Bot struct {
	api       *tgbotapi.BotAPI
	store     *mysql.Store
	digest    *digest.Composer
	registry  *registry.Registry
	log       *zap.Logger
	loc       *time.Location
	sendTimes []config.ClockTime
	cron      *cron.Cron
}

func New(d Deps) *Bot {
	return &Bot{
		api:       d.API,
		store:     d.Store,
		digest:    d.Digest,
		registry:  d.Registry,
		log:       d.Log,
		loc:       d.Location,
		sendTimes: d.SendTimes,
	}
}

// Start registers the command menu, starts the broadcast schedule and
// consumes updates until Stop is called. Updates are handled one at a
// time: every handler goes through the registry's read-modify-write
// cycle, and serial handling keeps the registry file consistent.
func (b *Bot) Start() error {
	if err := b.setupCommands(); err != nil {
		b.log.Warn("failed to register command menu", zap.Error(err))
	}
	if err := b.startBroadcasts(); err != nil {
		return err
	}

	b.log.Info("bot started", zap.String("username", b.api.Self.UserName))

	upd := tgbotapi.NewUpdate(0)
	upd.Timeout = 30
	upd.AllowedUpdates = []string{"message", "callback_query", "my_chat_member", "chat_member"}

	for update := range b.api.GetUpdatesChan(upd) {
		b.handleUpdate(update)
	}
	return nil
}

// Stop halts the broadcast schedule and closes the update channel,
// letting Start return.
func (b *Bot) Stop() {
	if b.cron != nil {
		b.cron.Stop()
	}
	b.api.StopReceivingUpdates()
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		b.handleMessage(update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(update.CallbackQuery)
	case update.MyChatMember != nil:
		b.handleMyChatMember(update.MyChatMember)
	case update.ChatMember != nil:
		b.trackChat(update.ChatMember.Chat.ID)
	}
}

func (b *Bot) handleMessage(m *tgbotapi.Message) {
	ctx := context.Background()
	b.trackChat(m.Chat.ID)

	if m.IsCommand() {
		switch m.Command() {
		case "start":
			b.onStart(ctx, m)
		case "help":
			b.onHelp(m)
		case "status":
			b.onStatus(ctx, m)
		case "tickets":
			b.onSummary(ctx, m)
		case "ticket":
			if arg := strings.TrimSpace(m.CommandArguments()); arg != "" {
				b.onTicket(ctx, m, arg)
				return
			}
			b.onSummary(ctx, m)
		case "new":
			b.onNewList(ctx, m)
		case "taken":
			b.onTakenList(ctx, m)
		default:
			b.reply(m.Chat.ID, "Неизвестная команда. Наберите /help.")
		}
		return
	}

	switch m.Text {
	case ButtonNew:
		b.onNewList(ctx, m)
	case ButtonTaken:
		b.onTakenList(ctx, m)
	case ButtonStatus:
		// The reply-keyboard status button shows the summary digest,
		// not the /status health check.
		b.onSummary(ctx, m)
	default:
		b.echo(m)
	}
}

func (b *Bot) onStart(ctx context.Context, m *tgbotapi.Message) {
	name := "гость"
	if m.From != nil && m.From.FirstName != "" {
		name = m.From.FirstName
	}

	greeting := tgbotapi.NewMessage(m.Chat.ID,
		fmt.Sprintf("Добрый день, %s! 👋\n\n%s", name, digest.StatusText(b.pingStore(ctx))))
	greeting.ReplyMarkup = menuKB
	b.send(greeting)

	quick := tgbotapi.NewMessage(m.Chat.ID, "Быстрые действия:")
	quick.ReplyMarkup = inlineKB
	b.send(quick)
}

func (b *Bot) onHelp(m *tgbotapi.Message) {
	msg := tgbotapi.NewMessage(m.Chat.ID, helpText)
	msg.ReplyMarkup = menuKB
	b.send(msg)
}

func (b *Bot) onStatus(ctx context.Context, m *tgbotapi.Message) {
	err := b.pingStore(ctx)
	if err != nil {
		b.log.Warn("ticket store unreachable", zap.Error(err))
	}
	b.reply(m.Chat.ID, digest.StatusText(err))
}

func (b *Bot) onSummary(ctx context.Context, m *tgbotapi.Message) {
	text, err := b.digest.Summary(ctx)
	if err != nil {
		b.log.Error("failed to compose summary", zap.Int64("chat_id", m.Chat.ID), zap.Error(err))
		b.reply(m.Chat.ID, "Failed to fetch tickets summary. Please try again later.")
		return
	}
	b.sendMarkdown(m.Chat.ID, text)
}

func (b *Bot) onNewList(ctx context.Context, m *tgbotapi.Message) {
	text, err := b.digest.NewTickets(ctx)
	if err != nil {
		b.log.Error("failed to compose new tickets list", zap.Int64("chat_id", m.Chat.ID), zap.Error(err))
		b.reply(m.Chat.ID, "Не удалось получить список новых заявок. Попробуйте позже.")
		return
	}
	b.sendHTML(m.Chat.ID, text)
}

func (b *Bot) onTakenList(ctx context.Context, m *tgbotapi.Message) {
	text, err := b.digest.TakenTickets(ctx)
	if err != nil {
		b.log.Error("failed to compose taken tickets list", zap.Int64("chat_id", m.Chat.ID), zap.Error(err))
		b.reply(m.Chat.ID, "Не удалось получить список заявок в работе. Попробуйте позже.")
		return
	}
	b.sendHTML(m.Chat.ID, text)
}

func (b *Bot) onTicket(ctx context.Context, m *tgbotapi.Message, arg string) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		b.reply(m.Chat.ID, "Номер заявки должен быть числом. Пример: /ticket 845")
		return
	}

	text, err := b.digest.Ticket(ctx, id)
	switch {
	case errors.Is(err, mysql.ErrNotFound):
		b.reply(m.Chat.ID, fmt.Sprintf("Заявка №%d не найдена.", id))
	case err != nil:
		b.log.Error("failed to fetch ticket", zap.Int64("ticket_id", id), zap.Error(err))
		b.reply(m.Chat.ID, "Не удалось получить заявку. Попробуйте позже.")
	default:
		b.sendHTML(m.Chat.ID, text)
	}
}

// echo mirrors free text back, the way the bot has always answered
// anything it does not understand.
func (b *Bot) echo(m *tgbotapi.Message) {
	if m.Text == "" {
		return
	}
	b.reply(m.Chat.ID, m.Text)
}

func (b *Bot) handleCallback(cq *tgbotapi.CallbackQuery) {
	b.answer(cq.ID)
	if cq.Message == nil || !strings.HasPrefix(cq.Data, "menu:") {
		return
	}

	ctx := context.Background()
	chatID := cq.Message.Chat.ID
	messageID := cq.Message.MessageID
	b.trackChat(chatID)

	switch cq.Data {
	case CallbackNew:
		text, err := b.digest.NewTickets(ctx)
		if err != nil {
			b.log.Error("failed to compose new tickets list", zap.Int64("chat_id", chatID), zap.Error(err))
			b.edit(chatID, messageID, "Не удалось получить список новых заявок. Попробуйте позже.", "")
			return
		}
		b.edit(chatID, messageID, text, tgbotapi.ModeHTML)
	case CallbackTaken:
		text, err := b.digest.TakenTickets(ctx)
		if err != nil {
			b.log.Error("failed to compose taken tickets list", zap.Int64("chat_id", chatID), zap.Error(err))
			b.edit(chatID, messageID, "Не удалось получить список заявок в работе. Попробуйте позже.", "")
			return
		}
		b.edit(chatID, messageID, text, tgbotapi.ModeHTML)
	case CallbackStatus:
		text, err := b.digest.Summary(ctx)
		if err != nil {
			b.log.Error("failed to compose summary", zap.Int64("chat_id", chatID), zap.Error(err))
			b.edit(chatID, messageID, "Failed to fetch tickets summary. Please try again later.", "")
			return
		}
		b.edit(chatID, messageID, text, tgbotapi.ModeMarkdown)
	default:
		// Unknown menu action: put the keyboard back and move on.
		b.send(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, inlineKB))
	}
}

func (b *Bot) handleMyChatMember(upd *tgbotapi.ChatMemberUpdated) {
	chatID := upd.Chat.ID
	status := upd.NewChatMember.Status

	switch status {
	case "member", "administrator":
		b.trackChat(chatID)
	case "kicked", "left":
		removed, err := b.registry.Remove(chatID)
		if err != nil {
			b.log.Warn("failed to persist chat removal", zap.Int64("chat_id", chatID), zap.Error(err))
			return
		}
		if removed {
			b.log.Info("chat untracked", zap.Int64("chat_id", chatID), zap.String("status", status))
		}
	}
}

// trackChat remembers the chat for scheduled digests. Adding an already
// known chat is a no-op.
func (b *Bot) trackChat(chatID int64) {
	added, err := b.registry.Track(chatID)
	if err != nil {
		b.log.Warn("failed to persist chat registry", zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}
	if added {
		b.log.Info("chat tracked", zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) pingStore(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return b.store.Ping(ctx)
}

func (b *Bot) setupCommands() error {
	commands := []tgbotapi.BotCommand{
		{Command: "start", Description: "Запустить бота"},
		{Command: "help", Description: "Список команд"},
		{Command: "status", Description: "Состояние бота"},
		{Command: "tickets", Description: "Выжимка по заявкам"},
		{Command: "new", Description: "Новые заявки"},
		{Command: "taken", Description: "Заявки в работе"},
	}
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		return fmt.Errorf("set bot commands: %w", err)
	}
	return nil
}

func (b *Bot) answer(callbackID string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		b.log.Warn("failed to answer callback", zap.Error(err))
	}
}

// edit rewrites the quick-actions message in place, keeping the inline
// keyboard attached. If Telegram rejects the edit the text goes out as a
// fresh message instead.
func (b *Bot) edit(chatID int64, messageID int, text, parseMode string) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, inlineKB)
	edit.ParseMode = parseMode
	if _, err := b.api.Send(edit); err != nil {
		b.log.Warn("edit failed, sending a fresh message", zap.Int64("chat_id", chatID), zap.Error(err))
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = parseMode
		msg.ReplyMarkup = inlineKB
		b.send(msg)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) sendMarkdown(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	return b.send(msg)
}

func (b *Bot) sendHTML(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	return b.send(msg)
}

func (b *Bot) send(c tgbotapi.Chattable) error {
	if _, err := b.api.Send(c); err != nil {
		b.log.Warn("failed to send message", zap.Error(err))
		return err
	}
	return nil
}
