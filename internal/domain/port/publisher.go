package port

import (
	"context"

	"saliency-viz/internal/domain/entity"
)

// Publisher отправляет готовое видео наружу
type Publisher interface {
	Publish(ctx context.Context, result *entity.RenderResult) error
}
