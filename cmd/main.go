package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"saliency-viz/config"
	app "saliency-viz/internal/application"
	"saliency-viz/internal/container"
	"saliency-viz/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := newRootCmd(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd описывает CLI. Флаги перекрывают значения из окружения.
func newRootCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saliency-viz",
		Short: "Render a saliency video for a tub of driving records",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if cfg.TubPath == "" {
				return errors.New("--tub is required")
			}
			if cfg.ModelPath == "" {
				return errors.New("--model is required")
			}
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Дальше ошибки только логируются: код выхода ненулевой лишь для неверных флагов
			cmd.SilenceUsage = true
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.TubPath, "tub", cfg.TubPath, "tub directory with record_<N>.json files")
	f.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "model artifact (.json, .yaml)")
	f.StringVar(&cfg.Output, "output", cfg.Output, "output video file")
	f.BoolVar(&cfg.Headless, "headless", cfg.Headless, "do not open the preview window")
	f.StringVar(&cfg.LayerName, "layer", cfg.LayerName, "output layer to explain")
	f.StringVar(&cfg.Backprop, "backprop", cfg.Backprop, "relu backprop modifier: guided, rectified, vanilla")
	f.IntSliceVar(&cfg.Filters, "filters", cfg.Filters, "output channels to explain, all when empty")
	f.IntVar(&cfg.Start, "start", cfg.Start, "skip the first N records")
	f.BoolVar(&cfg.ShowPrediction, "show-prediction", cfg.ShowPrediction, "draw the predicted steering angle")
	f.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "write Prometheus metrics to this textfile")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn, error")

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	lg, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = lg.Sync() }()

	c, err := container.New(cfg, lg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := c.RenderService.Render(ctx, app.RenderRequest{
		TubPath:        cfg.TubPath,
		ModelPath:      cfg.ModelPath,
		Output:         cfg.Output,
		Headless:       cfg.Headless,
		ShowPrediction: cfg.ShowPrediction,
		Start:          cfg.Start,
	})
	switch {
	case errors.Is(err, app.ErrNoModel):
		// сообщение уже в логе
	case err != nil:
		lg.Error("render failed", zap.Error(err))
	default:
		lg.Debug("render result",
			zap.String("run_id", result.RunID),
			zap.Int("rendered", result.Rendered),
			zap.Int("total", result.Total),
			zap.Bool("interrupted", result.Interrupted))
	}

	if cfg.MetricsFile != "" {
		if err := c.Metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			lg.Error("write metrics", zap.String("path", cfg.MetricsFile), zap.Error(err))
		}
	}

	return nil
}
