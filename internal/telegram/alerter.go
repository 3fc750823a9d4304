package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/chatrelay/internal/config"
)

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Alerter posts operational failures to a Telegram ops chat. A nil *Alerter
// is valid and drops everything.
type Alerter struct {
	sender  messageSender
	chatID  int64
	topicID int
	now     func() time.Time
	wg      sync.WaitGroup
}

func NewAlerter(token string, chatID int64, topicID int) (*Alerter, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return newAlerter(b, chatID, topicID), nil
}

func newAlerter(sender messageSender, chatID int64, topicID int) *Alerter {
	return &Alerter{
		sender:  sender,
		chatID:  chatID,
		topicID: topicID,
		now:     time.Now,
	}
}

// Log sends message in the background.
func (a *Alerter) Log(message string) {
	if a == nil || a.chatID == 0 {
		return
	}

	if len([]rune(message)) > config.MaxTelegramMessageLen {
		message = string([]rune(message)[:config.MaxTelegramMessageLen-20]) + "\n\n... (truncated)"
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.send(message)
	}()
}

func (a *Alerter) send(message string) {
	ctx, cancel := context.WithTimeout(context.Background(), config.AlertSendTimeout)
	defer cancel()

	params := &bot.SendMessageParams{
		ChatID:          a.chatID,
		Text:            message,
		ParseMode:       models.ParseModeMarkdownV1,
		MessageThreadID: a.topicID,
	}
	if _, err := a.sender.SendMessage(ctx, params); err != nil {
		// error text may break markdown; retry as plain text
		params.ParseMode = ""
		if _, err := a.sender.SendMessage(ctx, params); err != nil {
			slog.Error("failed to send telegram alert", "error", err)
		}
	}
}

func (a *Alerter) LogError(err error, context string) {
	if a == nil || err == nil {
		return
	}
	msg := fmt.Sprintf("❌ *Error*\n\n*Context:* %s\n*Error:* `%s`\n*Time:* %s",
		context, err.Error(), a.now().UTC().Format("2006-01-02 15:04:05"))
	a.Log(msg)
}

// Close waits for alerts still being sent.
func (a *Alerter) Close() {
	if a == nil {
		return
	}
	a.wg.Wait()
}
