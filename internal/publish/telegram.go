package publish

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/cryptoradar/radarshot/internal/caption"
)

// Telegram channel ceilings. Captions are clamped, oversized photos get
// one recompression pass before the upload is abandoned.
const (
	telegramMaxPhotoBytes   = 10 * 1024 * 1024
	telegramMaxCaptionLen   = 1024
	telegramCompressQuality = 60
)

// TelegramConfig carries bot credentials and the destination chat.
type TelegramConfig struct {
	Token  string
	ChatID int64
}

// Telegram publishes artifacts as photos with HTML captions.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

// NewTelegram validates credentials against the Bot API (getMe) and
// returns a ready publisher.
func NewTelegram(cfg TelegramConfig, logger *zap.Logger) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram: token is required")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram: chat id is required")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: validate credentials: %w", err)
	}
	logger.Info("telegram bot authorized", zap.String("username", bot.Self.UserName))
	return &Telegram{bot: bot, chatID: cfg.ChatID, logger: logger}, nil
}

// newTelegramWithBot wires an already-constructed bot, used by tests to
// point at a stub API endpoint.
func newTelegramWithBot(bot *tgbotapi.BotAPI, chatID int64, logger *zap.Logger) *Telegram {
	return &Telegram{bot: bot, chatID: chatID, logger: logger}
}

// Name implements radar.Publisher.
func (t *Telegram) Name() string { return "telegram" }

// Publish sends the artifact as a photo. The caption is clamped to the
// Bot API limit; a photo over the byte ceiling is recompressed once.
func (t *Telegram) Publish(ctx context.Context, path, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	upload, cleanup, err := ensureUnderLimit(path, telegramMaxPhotoBytes, telegramCompressQuality, t.logger)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	defer cleanup()

	photo := tgbotapi.NewPhoto(t.chatID, tgbotapi.FilePath(upload))
	photo.Caption = caption.Clamp(text, telegramMaxCaptionLen)
	photo.ParseMode = tgbotapi.ModeHTML

	if _, err := t.bot.Send(photo); err != nil {
		return fmt.Errorf("telegram: send photo: %w", err)
	}
	t.logger.Info("published to telegram", zap.Int64("chat_id", t.chatID))
	return nil
}
