package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/a-atpv/report-bot-amu/internal/registry"
)

// startBroadcasts schedules a digest broadcast at every configured
// wall-clock time, weekdays only, in the bot's location.
func (b *Bot) startBroadcasts() error {
	c := cron.New(
		cron.WithLocation(b.loc),
		cron.WithChain(cron.Recover(cronLogger{b.log.Sugar()})),
	)
	for _, t := range b.sendTimes {
		spec := fmt.Sprintf("%d %d * * 1-5", t.Minute, t.Hour)
		if _, err := c.AddFunc(spec, b.broadcastDigest); err != nil {
			return fmt.Errorf("schedule broadcast at %02d:%02d: %w", t.Hour, t.Minute, err)
		}
		b.log.Info("broadcast scheduled",
			zap.String("time", fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)),
			zap.String("timezone", b.loc.String()))
	}
	c.Start()
	b.cron = c
	return nil
}

// broadcastDigest runs one scheduled cycle: reload the registry from
// disk, compose the summary once, deliver it to every tracked chat and
// prune the chats that are gone for good.
func (b *Bot) broadcastDigest() {
	b.log.Info("scheduled send started",
		zap.String("local_time", time.Now().In(b.loc).Format("2006-01-02 15:04:05 MST")))

	ids := b.registry.Reload()
	if len(ids) == 0 {
		b.log.Warn("no tracked chats, skipping scheduled send")
		return
	}

	text, err := b.digest.Summary(context.Background())
	if err != nil {
		b.log.Error("failed to compose scheduled digest", zap.Error(err))
		return
	}

	sent, failed, removed := deliverDigest(b.log, b.registry, ids, text, b.sendDigest)
	b.log.Info("scheduled send completed",
		zap.Int("sent", sent),
		zap.Int("failed", failed),
		zap.Int("removed", removed),
		zap.Int("total", len(ids)))
}

// deliverDigest sends text to every chat in ids, removing from reg the
// chats that report a permanent delivery failure. Transient failures
// keep the chat for the next cycle; a cycle never retries.
func deliverDigest(log *zap.Logger, reg *registry.Registry, ids []int64, text string, send func(chatID int64, text string) error) (sent, failed, removed int) {
	for _, chatID := range ids {
		err := send(chatID, text)
		if err == nil {
			sent++
			continue
		}
		failed++
		if !isPermanentSendError(err) {
			log.Error("failed to deliver digest", zap.Int64("chat_id", chatID), zap.Error(err))
			continue
		}
		if _, rmErr := reg.Remove(chatID); rmErr != nil {
			log.Warn("failed to persist chat removal", zap.Int64("chat_id", chatID), zap.Error(rmErr))
		}
		removed++
		log.Warn("unreachable chat removed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	return sent, failed, removed
}

func (b *Bot) sendDigest(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err := b.api.Send(msg)
	return err
}

// permanentSendErrors are the Telegram error fragments that mean a chat
// is gone for good: deleted, blocked the bot, or revoked access.
var permanentSendErrors = []string{
	"chat not found",
	"bot was blocked",
	"unauthorized",
}

func isPermanentSendError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range permanentSendErrors {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// cronLogger adapts zap to the cron.Logger interface.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
