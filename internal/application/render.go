package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"saliency-viz/internal/domain/entity"
	"saliency-viz/internal/domain/port"
)

// ErrNoModel — по пути модели нет файла. Рендер в этом случае ничего не делает.
var ErrNoModel = errors.New("no model found")

// RenderRequest — параметры одного запуска.
type RenderRequest struct {
	TubPath        string
	ModelPath      string
	Output         string
	Headless       bool
	ShowPrediction bool
	// Start — сколько первых записей пропустить
	Start int
}

// RenderOptions — параметры выходного видео.
type RenderOptions struct {
	Width         int
	Height        int
	FPS           float64
	ProgressEvery int
}

// RenderDeps собирает адаптеры рендера.
type RenderDeps struct {
	Loader     port.ModelLoader
	Tub        func(dir string) port.RecordRepository
	Decoder    port.FrameDecoder
	Compositor port.Compositor
	Sinks      port.VideoSinkFactory
	// Preview создаёт окно предпросмотра, при nil предпросмотра нет
	Preview   func() port.Previewer
	Publisher port.Publisher
	Metrics   port.RenderMetrics
}

// RenderService строит видео с картами значимости поверх записей тюба.
type RenderService struct {
	deps   RenderDeps
	opts   RenderOptions
	logger *zap.Logger
}

// NewRenderService создаёт сервис рендера.
func NewRenderService(deps RenderDeps, opts RenderOptions, logger *zap.Logger) *RenderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 10
	}
	return &RenderService{deps: deps, opts: opts, logger: logger}
}

// Render обрабатывает записи по возрастанию индекса и пишет кадры в видео.
//
// Ошибка возвращается, только если цикл по записям не начался: нет модели
// (ErrNoModel), модель не загрузилась, тюб не читается или видео не открылось.
// Сбой на отдельной записи останавливает цикл и попадает в RenderResult.Err;
// уже записанные кадры сохраняются. Отмена ctx считается штатной остановкой.
func (s *RenderService) Render(ctx context.Context, req RenderRequest) (*entity.RenderResult, error) {
	result := &entity.RenderResult{RunID: uuid.NewString(), Output: req.Output}
	log := s.logger.With(zap.String("run_id", result.RunID))

	if !isFile(req.ModelPath) {
		log.Warn("No model found", zap.String("model", req.ModelPath))
		return result, ErrNoModel
	}

	model, err := s.deps.Loader.Load(ctx, req.ModelPath)
	if err != nil {
		return result, fmt.Errorf("load model: %w", err)
	}
	log.Info("saliency model ready", zap.String("layer", model.OutputLayer()))
	if c, ok := model.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				log.Warn("close model", zap.Error(err))
			}
		}()
	}

	tub := s.deps.Tub(req.TubPath)
	records, err := tub.List(ctx)
	if err != nil {
		return result, fmt.Errorf("list records: %w", err)
	}
	result.Total = len(records)
	log.Info("records found", zap.String("tub", req.TubPath), zap.Int("count", len(records)))

	sink, err := s.deps.Sinks.Open(req.Output, s.opts.FPS, s.opts.Width, s.opts.Height)
	if err != nil {
		return result, fmt.Errorf("open output: %w", err)
	}

	var preview port.Previewer
	if !req.Headless && s.deps.Preview != nil {
		preview = s.deps.Preview()
	}

	started := time.Now()
	s.run(ctx, log, &job{
		req:     req,
		model:   model,
		tub:     tub,
		records: records,
		sink:    sink,
		preview: preview,
		result:  result,
	})

	switch {
	case result.Interrupted:
		log.Info(fmt.Sprintf("Saved %s", req.Output), zap.Int("frames", result.Rendered))
	case result.Err != nil:
		log.Warn("output is incomplete", zap.String("output", req.Output), zap.Int("frames", result.Rendered))
	default:
		log.Info("render finished", zap.String("output", req.Output), zap.Int("frames", result.Rendered))
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.RunFinished(result, time.Since(started))
	}
	if s.deps.Publisher != nil && result.Complete() {
		if err := s.deps.Publisher.Publish(ctx, result); err != nil {
			log.Error("publish failed", zap.Error(err))
		}
	}

	return result, nil
}

type job struct {
	req     RenderRequest
	model   port.SaliencyModel
	tub     port.RecordRepository
	records []entity.Record
	sink    port.VideoSink
	preview port.Previewer
	result  *entity.RenderResult
}

// run обходит записи. Видео и окно закрываются ровно один раз при любом выходе.
func (s *RenderService) run(ctx context.Context, log *zap.Logger, j *job) {
	defer s.finalize(log, j)

	total := len(j.records)
	for i, rec := range j.records {
		pos := i + 1
		if pos <= j.req.Start {
			j.result.Skipped++
			continue
		}
		if ctx.Err() != nil {
			j.result.Interrupted = true
			return
		}

		// прерывание проверяется только между кадрами: начатый кадр дописывается
		started := time.Now()
		frame, err := s.renderRecord(context.WithoutCancel(ctx), j, rec)
		if err != nil {
			j.result.Err = err
			log.Error("record failed",
				zap.Int("index", rec.Index),
				zap.String("record", rec.Path),
				zap.Error(err),
				zap.String("stack", fmt.Sprintf("%+v", err)))
			if s.deps.Metrics != nil {
				s.deps.Metrics.RecordFailed()
			}
			return
		}
		j.result.Rendered++
		if s.deps.Metrics != nil {
			s.deps.Metrics.FrameRendered(time.Since(started))
		}

		stop := false
		if j.preview != nil {
			stop, err = j.preview.Show(frame)
			if err != nil {
				log.Warn("preview failed, continuing headless", zap.Error(err))
				s.closePreview(log, j)
			}
		}

		if pos%s.opts.ProgressEvery == 0 {
			log.Info(fmt.Sprintf("%d / %d", pos, total))
		}

		if stop {
			j.result.Interrupted = true
			return
		}
	}
}

// renderRecord считает и пишет один кадр. Паника внутри превращается в ошибку.
func (s *RenderService) renderRecord(ctx context.Context, j *job, rec entity.Record) (frame *entity.Frame, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pkgerrors.Errorf("record %d: panic: %v", rec.Index, r)
		}
	}()

	path, err := j.tub.Resolve(ctx, rec)
	if err != nil {
		return nil, pkgerrors.WithStack(err)
	}
	image, err := s.deps.Decoder.Decode(ctx, path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "record %d: decode", rec.Index)
	}
	saliency, err := j.model.Saliency(ctx, image)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "record %d: saliency", rec.Index)
	}
	blended, err := s.deps.Compositor.Compose(image, saliency)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "record %d: compose", rec.Index)
	}

	if j.req.ShowPrediction {
		pred, err := j.model.Predict(ctx, image)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "record %d: predict", rec.Index)
		}
		blended, err = s.deps.Compositor.Annotate(blended, fmt.Sprintf("%.2f", SteeringAngle(pred)))
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "record %d: annotate", rec.Index)
		}
	}

	if err := j.sink.Write(blended); err != nil {
		return nil, pkgerrors.Wrapf(err, "record %d: write", rec.Index)
	}
	return blended, nil
}

func (s *RenderService) finalize(log *zap.Logger, j *job) {
	if err := j.sink.Close(); err != nil {
		log.Error("close output", zap.Error(err))
	}
	s.closePreview(log, j)
}

func (s *RenderService) closePreview(log *zap.Logger, j *job) {
	if j.preview == nil {
		return
	}
	if err := j.preview.Close(); err != nil {
		log.Warn("close preview", zap.Error(err))
	}
	j.preview = nil
}

// SteeringAngle переводит выход angle_out в угол руля: одно значение берётся
// как есть, категориальный выход раскладывается по [-1, 1] по номеру максимума.
func SteeringAngle(pred []float32) float32 {
	switch len(pred) {
	case 0:
		return 0
	case 1:
		return pred[0]
	}
	best := 0
	for i, v := range pred {
		if v > pred[best] {
			best = i
		}
	}
	return float32(best)*(2/float32(len(pred)-1)) - 1
}

func isFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
