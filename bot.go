package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/turbekoff/calcbot/pkg/calculator"
)

var (
	ErrClosed         = errors.New("bot has closed")
	ErrSessionExpired = errors.New("session has expired")
	ErrAlreadyStarted = errors.New("bot already started")
)

// Callback data is the keypad key understood by calculator.ParseKey.
var botKeyboard = tgbotapi.NewInlineKeyboardMarkup(
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("AC", "AC"),
		tgbotapi.NewInlineKeyboardButtonData("⌫", "C"),
		tgbotapi.NewInlineKeyboardButtonData("%", "%"),
		tgbotapi.NewInlineKeyboardButtonData("÷", "/"),
	),
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("7", "7"),
		tgbotapi.NewInlineKeyboardButtonData("8", "8"),
		tgbotapi.NewInlineKeyboardButtonData("9", "9"),
		tgbotapi.NewInlineKeyboardButtonData("×", "*"),
	),
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("4", "4"),
		tgbotapi.NewInlineKeyboardButtonData("5", "5"),
		tgbotapi.NewInlineKeyboardButtonData("6", "6"),
		tgbotapi.NewInlineKeyboardButtonData("−", "-"),
	),
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("1", "1"),
		tgbotapi.NewInlineKeyboardButtonData("2", "2"),
		tgbotapi.NewInlineKeyboardButtonData("3", "3"),
		tgbotapi.NewInlineKeyboardButtonData("+", "+"),
	),
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("±", "T"),
		tgbotapi.NewInlineKeyboardButtonData("0", "0"),
		tgbotapi.NewInlineKeyboardButtonData(".", "."),
		tgbotapi.NewInlineKeyboardButtonData("=", "="),
	),
)

// botAPI is the part of *tgbotapi.BotAPI the bot talks to.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Bot struct {
	sessions   *Memcached[*calculator.Session]
	api        botAPI
	config     *Config
	welcome    string
	help       string
	isStarted  atomic.Bool
	inShutdown atomic.Bool
	isDone     chan struct{}
	logger     *slog.Logger
}

func LoadBot(config *Config, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(config.BotToken)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	return newBot(api, config, logger), nil
}

func newBot(api botAPI, config *Config, logger *slog.Logger) *Bot {
	return &Bot{
		api:    api,
		config: config,
		logger: logger.With("component", "bot"),
		isDone: make(chan struct{}),
		sessions: NewMemcached[*calculator.Session](
			config.MemcachedTTLTimeout,
			config.MemcachedCleanupTimeout,
		),
		welcome: fmt.Sprintf(
			"%s%s %s of inactivity.",
			"Welcome! Type /open to get started.\n",
			"Note: the session expires after",
			config.MemcachedTTLTimeout,
		),
		help: strings.Join([]string{
			"Help:",
			"/start - welcome message.",
			"/open - open new calculator.",
			"/help - send this message.",
		}, "\n"),
	}
}

func (b *Bot) Run() error {
	if !b.isStarted.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer close(b.isDone)

	updateConfig := tgbotapi.NewUpdate(b.config.BotOffset)
	updateConfig.Timeout = b.config.BotTimeout
	updates := b.api.GetUpdatesChan(updateConfig)

	b.logger.Info("receiving updates", "offset", b.config.BotOffset, "timeout", b.config.BotTimeout)
	for update := range updates {
		if b.inShutdown.Load() && b.sessions.IsEmpty() {
			continue
		}

		if update.CallbackQuery != nil {
			if err := b.handleCallback(update.CallbackQuery); err != nil {
				b.logger.Warn("failed to handle callback",
					"data", update.CallbackQuery.Data,
					"error", err,
				)
			}
			continue
		}

		if update.Message == nil {
			continue
		}

		if err := b.handleCommand(update.Message); err != nil {
			b.logger.Warn("failed to handle command",
				"command", update.Message.Text,
				"error", err,
			)
		}
	}

	return ErrClosed
}

func (b *Bot) createMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (b *Bot) createKeyboard(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = botKeyboard

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send keyboard: %w", err)
	}
	return nil
}

func (b *Bot) updateKeyboard(callback *tgbotapi.CallbackQuery, text string) error {
	if text == callback.Message.Text {
		return nil
	}

	edit := tgbotapi.NewEditMessageText(
		callback.Message.Chat.ID,
		callback.Message.MessageID,
		text,
	)
	edit.ReplyMarkup = &botKeyboard

	if _, err := b.api.Send(edit); err != nil {
		return fmt.Errorf("edit keyboard: %w", err)
	}
	return nil
}

func sessionKey(chatID, userID int64) string {
	return fmt.Sprintf("%d_%d", chatID, userID)
}

func (b *Bot) handleCommand(command *tgbotapi.Message) error {
	switch command.Text {
	case "/start":
		return b.createMessage(command.Chat.ID, b.welcome)
	case "/help":
		return b.createMessage(command.Chat.ID, b.help)
	case "/open":
		if command.From == nil {
			return b.createMessage(command.Chat.ID, "Calculators are opened per user.")
		}

		key := sessionKey(command.Chat.ID, command.From.ID)
		if _, ok := b.sessions.Get(key); ok {
			return b.createMessage(
				command.Chat.ID,
				"Your session is not expired!",
			)
		}

		if b.inShutdown.Load() {
			return b.createMessage(
				command.Chat.ID,
				"The bot is restarting, please try again later.",
			)
		}

		session := calculator.NewSession()
		if err := b.createKeyboard(command.Chat.ID, session.View().DisplayValue); err != nil {
			return err
		}
		b.sessions.Set(key, session)
		b.logger.Debug("session opened", "session", key)
		return nil
	default:
		return b.createMessage(command.Chat.ID, "Unknown command. Try /help")
	}
}

func (b *Bot) handleCallback(callback *tgbotapi.CallbackQuery) error {
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}

	if callback.Message == nil || callback.From == nil {
		return nil
	}

	event, err := calculator.ParseKey(callback.Data)
	if err != nil {
		return err
	}

	key := sessionKey(callback.Message.Chat.ID, callback.From.ID)
	var view calculator.UiState
	_, ok := b.sessions.Update(key, func(session *calculator.Session) *calculator.Session {
		view = session.Send(event)
		return session
	})
	if !ok {
		err := b.updateKeyboard(
			callback,
			"Your session has expired, please /open a new one.",
		)
		if err != nil {
			return err
		}
		return ErrSessionExpired
	}

	b.logger.Debug("event applied",
		"session", key,
		"event", event.String(),
		"display", view.DisplayValue,
	)
	return b.updateKeyboard(callback, view.DisplayValue)
}

// Shutdown stops opening calculators and keeps serving the open ones until
// they expire or ctx is done.
func (b *Bot) Shutdown(ctx context.Context) error {
	b.inShutdown.Store(true)
	err := b.sessions.Shutdown(ctx)
	b.api.StopReceivingUpdates()

	if !b.isStarted.Load() {
		return err
	}

	select {
	case <-b.isDone:
		if errors.Is(err, ErrMemcachedClosed) {
			return ErrClosed
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bot) Close() error {
	b.inShutdown.Store(true)
	err := b.sessions.Close()
	b.api.StopReceivingUpdates()
	if b.isStarted.Load() {
		<-b.isDone
	}

	if errors.Is(err, ErrMemcachedClosed) {
		return ErrClosed
	}
	return err
}
