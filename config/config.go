package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"saliency-viz/internal/domain/entity"
)

// EnvPrefix — префикс переменных окружения
const EnvPrefix = "SALIENCY_"

type Config struct {
	TubPath   string `env:"TUB"`
	ModelPath string `env:"MODEL"`
	Output    string `env:"OUTPUT" envDefault:"output.avi"`
	Headless  bool   `env:"HEADLESS" envDefault:"false"`

	// Размер кадра видео и входа модели
	FrameWidth  int     `env:"FRAME_WIDTH" envDefault:"240"`
	FrameHeight int     `env:"FRAME_HEIGHT" envDefault:"100"`
	FPS         float64 `env:"FPS" envDefault:"20"`
	Codec       string  `env:"CODEC" envDefault:"XVID"`

	LayerName      string        `env:"LAYER_NAME" envDefault:"angle_out"`
	Backprop       string        `env:"BACKPROP" envDefault:"guided"`
	Filters        []int         `env:"FILTERS" envSeparator:","`
	ImageKey       string        `env:"IMAGE_KEY" envDefault:"cam/image_array"`
	Blend          float64       `env:"BLEND" envDefault:"0.5"`
	ProgressEvery  int           `env:"PROGRESS_EVERY" envDefault:"10"`
	PreviewDelay   time.Duration `env:"PREVIEW_DELAY" envDefault:"10ms"`
	Start          int           `env:"START" envDefault:"0"`
	ShowPrediction bool          `env:"SHOW_PREDICTION" envDefault:"false"`

	MetricsFile string `env:"METRICS_FILE"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	TelegramToken  string `env:"TELEGRAM_TOKEN"`
	TelegramChatID int64  `env:"TELEGRAM_CHAT_ID"`
}

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

// Validate проверяет значения после применения флагов командной строки.
func (c *Config) Validate() error {
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		return fmt.Errorf("frame size must be positive, got %dx%d", c.FrameWidth, c.FrameHeight)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %v", c.FPS)
	}
	if len(c.Codec) != 4 {
		return fmt.Errorf("codec must be a fourcc code, got %q", c.Codec)
	}
	if c.Blend < 0 || c.Blend > 1 {
		return fmt.Errorf("blend must be in [0, 1], got %v", c.Blend)
	}
	if c.ProgressEvery <= 0 {
		return fmt.Errorf("progress interval must be positive, got %d", c.ProgressEvery)
	}
	if c.Start < 0 {
		return fmt.Errorf("start must not be negative, got %d", c.Start)
	}
	if c.LayerName == "" {
		return fmt.Errorf("layer name is required")
	}
	for _, f := range c.Filters {
		if f < 0 {
			return fmt.Errorf("filter index must not be negative, got %d", f)
		}
	}
	if _, err := entity.ParseBackprop(c.Backprop); err != nil {
		return err
	}
	return nil
}

// TelegramEnabled сообщает, настроена ли отправка видео в Telegram.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}
