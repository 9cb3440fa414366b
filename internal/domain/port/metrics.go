package port

import (
	"time"

	"saliency-viz/internal/domain/entity"
)

// RenderMetrics интерфейс сборщика метрик рендера
type RenderMetrics interface {
	FrameRendered(d time.Duration)
	RecordFailed()
	RunFinished(result *entity.RenderResult, d time.Duration)
}
