package port

import (
	"context"

	"saliency-viz/internal/domain/entity"
)

// ModelLoader загружает обученную модель
type ModelLoader interface {
	// Load читает артефакт модели и готовит выходной слой к визуализации
	Load(ctx context.Context, path string) (SaliencyModel, error)
}

// SaliencyModel интерфейс модели, умеющей считать карту значимости
type SaliencyModel interface {
	// Saliency считает карту значимости кадра для выходного слоя
	Saliency(ctx context.Context, frame *entity.Frame) (*entity.SaliencyMap, error)

	// Predict возвращает сырые выходы выходного слоя
	Predict(ctx context.Context, frame *entity.Frame) ([]float32, error)

	// OutputLayer возвращает имя выходного слоя
	OutputLayer() string
}
