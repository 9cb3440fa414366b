package container

import (
	"go.uber.org/zap"

	"saliency-viz/config"
	telegram "saliency-viz/internal/api"
	app "saliency-viz/internal/application"
	"saliency-viz/internal/domain/entity"
	"saliency-viz/internal/domain/port"
	"saliency-viz/internal/infrastructure/metrics"
	"saliency-viz/internal/infrastructure/nn"
	"saliency-viz/internal/infrastructure/storage"
	"saliency-viz/internal/infrastructure/vision"
)

// PreviewTitle задаёт заголовок окна предпросмотра
const PreviewTitle = "Saliency"

type Container struct {
	RenderService *app.RenderService
	Metrics       *metrics.Recorder
}

// New собирает сервис рендера из конфигурации.
func New(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	backprop, err := entity.ParseBackprop(cfg.Backprop)
	if err != nil {
		return nil, err
	}

	recorder := metrics.New()

	deps := app.RenderDeps{
		Loader: nn.NewLoader(cfg.LayerName, backprop, cfg.Filters, logger),
		Tub: func(dir string) port.RecordRepository {
			return storage.NewTubRepository(dir, cfg.ImageKey, logger)
		},
		Decoder:    vision.NewDecoder(),
		Compositor: vision.NewCompositor(cfg.Blend),
		Sinks:      vision.NewVideoWriterFactory(cfg.Codec),
		Preview: func() port.Previewer {
			return vision.NewWindow(PreviewTitle, cfg.PreviewDelay)
		},
		Metrics: recorder,
	}

	// Telegram необязателен: без токена или при ошибке авторизации видео остаётся только на диске
	if cfg.TelegramEnabled() {
		publisher, err := telegram.NewPublisher(cfg.TelegramToken, cfg.TelegramChatID, logger)
		if err != nil {
			logger.Warn("telegram publisher disabled", zap.Error(err))
		} else {
			deps.Publisher = publisher
		}
	}

	opts := app.RenderOptions{
		Width:         cfg.FrameWidth,
		Height:        cfg.FrameHeight,
		FPS:           cfg.FPS,
		ProgressEvery: cfg.ProgressEvery,
	}

	return &Container{
		RenderService: app.NewRenderService(deps, opts, logger),
		Metrics:       recorder,
	}, nil
}
