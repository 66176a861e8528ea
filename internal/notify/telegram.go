package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramMaxMessageLen is the Bot API limit for one text message.
const telegramMaxMessageLen = 4096

// TelegramBot is the part of the Bot API client the sender uses.
type TelegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender posts change summaries to one chat.
type TelegramSender struct {
	bot      TelegramBot
	chatID   int64
	logger   *slog.Logger
	attempts uint
	delay    time.Duration
}

// TelegramOption configures a TelegramSender.
type TelegramOption func(*TelegramSender)

// WithTelegramLogger sets the logger.
func WithTelegramLogger(logger *slog.Logger) TelegramOption {
	return func(s *TelegramSender) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTelegramRetry sets the number of attempts per message and the initial delay.
func WithTelegramRetry(attempts uint, delay time.Duration) TelegramOption {
	return func(s *TelegramSender) {
		s.attempts = attempts
		s.delay = delay
	}
}

// NewTelegramSender connects to the Bot API with token. The token is
// checked against getMe, so a revoked token fails here rather than on the
// first notification.
func NewTelegramSender(token string, chatID int64, opts ...TelegramOption) (*TelegramSender, error) {
	if token == "" {
		return nil, errors.New("telegram bot token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is not set")
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return NewTelegramSenderWithBot(bot, chatID, opts...), nil
}

// NewTelegramSenderWithBot creates a sender around an existing bot client.
func NewTelegramSenderWithBot(bot TelegramBot, chatID int64, opts ...TelegramOption) *TelegramSender {
	s := &TelegramSender{
		bot:      bot,
		chatID:   chatID,
		logger:   slog.Default(),
		attempts: defaultSendAttempts,
		delay:    defaultSendDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Sender.
func (s *TelegramSender) Name() string { return "telegram" }

// Send implements Sender.
func (s *TelegramSender) Send(ctx context.Context, items []Item) (SendResult, time.Duration) {
	text := BuildTelegramText(items)
	if text == "" {
		return SendOK, 0
	}
	if r := []rune(text); len(r) > telegramMaxMessageLen {
		text = string(r[:telegramMaxMessageLen-1]) + "…"
	}

	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	var (
		fatal      bool
		retryAfter time.Duration
	)
	err := retry.Do(
		func() error {
			_, err := s.bot.Send(msg)
			if err == nil {
				return nil
			}
			var apiErr *tgbotapi.Error
			if !errors.As(err, &apiErr) {
				return err // transport error
			}
			switch {
			case apiErr.Code == http.StatusTooManyRequests:
				retryAfter = time.Duration(apiErr.RetryAfter) * time.Second
				return retry.Unrecoverable(err)
			case apiErr.Code >= 400 && apiErr.Code < 500:
				fatal = true
				return retry.Unrecoverable(err)
			default:
				return err
			}
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.MaxDelay(10*time.Second),
		retry.DelayType(retry.FullJitterBackoffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debug("retrying Telegram message", "attempt", n+1, "error", err)
		}),
	)

	switch {
	case err == nil:
		s.logger.Debug("Telegram notification sent", "items", len(items))
		return SendOK, 0
	case fatal:
		s.logger.Error("Telegram rejected the message", "error", err, "chat_id", s.chatID)
		return SendFatal, 0
	default:
		s.logger.Warn("Telegram send failed", "error", err, "retry_after", retryAfter)
		return SendRetryable, retryAfter
	}
}
