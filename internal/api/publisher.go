package api

import (
	"context"
	"fmt"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"saliency-viz/internal/domain/entity"
)

// sender: часть BotAPI, которой пользуется Publisher
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Publisher отправляет готовое видео в Telegram-чат
type Publisher struct {
	api    sender
	chatID int64
	logger *zap.Logger
}

// NewPublisher авторизует бота и создаёт публикатор для чата chatID
func NewPublisher(token string, chatID int64, logger *zap.Logger) (*Publisher, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("authorize bot: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Info("authorized on account", zap.String("account", api.Self.UserName))

	return &Publisher{api: api, chatID: chatID, logger: logger}, nil
}

// Publish отправляет видео с подписью
func (p *Publisher) Publish(ctx context.Context, result *entity.RenderResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(result.Output); err != nil {
		return fmt.Errorf("video %s: %w", result.Output, err)
	}

	video := tgbotapi.NewVideo(p.chatID, tgbotapi.FilePath(result.Output))
	video.Caption = caption(result)

	msg, err := p.api.Send(video)
	if err != nil {
		return fmt.Errorf("send video: %w", err)
	}

	p.logger.Info("video published", zap.Int64("chat_id", p.chatID), zap.Int("message_id", msg.MessageID))
	return nil
}

// caption формирует подпись к видео
func caption(result *entity.RenderResult) string {
	return fmt.Sprintf("🎬 Saliency: %d/%d кадров\nrun %s", result.Rendered, result.Total, result.RunID)
}
