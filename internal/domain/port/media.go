package port

import (
	"context"

	"saliency-viz/internal/domain/entity"
)

// FrameDecoder декодирует изображения записей
type FrameDecoder interface {
	Decode(ctx context.Context, path string) (*entity.Frame, error)
}

// Compositor накладывает карту значимости на кадр
type Compositor interface {
	// Compose раскрашивает карту и смешивает её с кадром
	Compose(frame *entity.Frame, saliency *entity.SaliencyMap) (*entity.Frame, error)

	// Annotate печатает текст поверх кадра
	Annotate(frame *entity.Frame, text string) (*entity.Frame, error)
}

// VideoSink принимает кадры выходного видео
type VideoSink interface {
	Write(frame *entity.Frame) error
	Close() error
}

// VideoSinkFactory открывает выходное видео
type VideoSinkFactory interface {
	Open(path string, fps float64, width, height int) (VideoSink, error)
}

// Previewer показывает кадры в окне
type Previewer interface {
	// Show выводит кадр; stop=true, если пользователь попросил остановиться
	Show(frame *entity.Frame) (stop bool, err error)
	Close() error
}
