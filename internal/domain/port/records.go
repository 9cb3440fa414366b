package port

import (
	"context"

	"saliency-viz/internal/domain/entity"
)

// RecordRepository интерфейс хранилища записей тюба
type RecordRepository interface {
	// List возвращает записи, отсортированные по возрастанию индекса
	List(ctx context.Context) ([]entity.Record, error)

	// Resolve читает метаданные записи и возвращает путь к её изображению
	Resolve(ctx context.Context, record entity.Record) (string, error)
}
