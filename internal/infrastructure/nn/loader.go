package nn

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"saliency-viz/internal/domain/entity"
	"saliency-viz/internal/domain/port"
)

// Loader загружает модель и переключает выходной слой на линейную активацию,
// чтобы градиенты считались по сырым значениям, а не по насыщенным вероятностям.
type Loader struct {
	LayerName string
	Backprop  entity.Backprop
	// Filters — каналы выходного слоя для функции потерь, nil означает все
	Filters []int

	logger *zap.Logger
}

// NewLoader создаёт загрузчик для выходного слоя layerName.
func NewLoader(layerName string, backprop entity.Backprop, filters []int, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(filters) == 0 {
		filters = nil
	}
	return &Loader{LayerName: layerName, Backprop: backprop, Filters: filters, logger: logger}
}

// Load читает артефакт и готовит его к визуализации.
func (l *Loader) Load(ctx context.Context, path string) (port.SaliencyModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := Load(path)
	if err != nil {
		return nil, err
	}
	l.logger.Info("saved model found", zap.String("model", m.Name), zap.Int("layers", len(m.Layers())))
	return l.prepare(m)
}

func (l *Loader) prepare(m *Model) (*SaliencyModel, error) {
	idx, err := m.LayerIndex(l.LayerName)
	if err != nil {
		return nil, err
	}

	if a, ok := m.Layers()[idx].(Activated); ok && a.Activation() != Linear {
		l.logger.Debug("swapping output activation",
			zap.String("layer", l.LayerName),
			zap.String("from", string(a.Activation())))
		if err := m.SetActivation(idx, Linear); err != nil {
			return nil, err
		}
	}
	if err := m.ApplyModifications(); err != nil {
		return nil, err
	}

	return newSaliencyModel(m, idx, l.Backprop, l.Filters)
}

// SaliencyModel реализует port.SaliencyModel поверх двух графов модели:
// с градиентом для карт и без него для прогноза.
type SaliencyModel struct {
	model    *Model
	layer    int
	saliency *Program
	predict  *Program
}

func newSaliencyModel(m *Model, idx int, mod entity.Backprop, filters []int) (*SaliencyModel, error) {
	sal, err := m.Compile(idx, mod, filters, true)
	if err != nil {
		return nil, err
	}
	pred, err := m.Compile(idx, mod, nil, false)
	if err != nil {
		_ = sal.Close()
		return nil, err
	}
	return &SaliencyModel{model: m, layer: idx, saliency: sal, predict: pred}, nil
}

// Model возвращает подготовленную модель.
func (s *SaliencyModel) Model() *Model { return s.model }

// OutputLayer возвращает имя выходного слоя.
func (s *SaliencyModel) OutputLayer() string {
	return s.saliency.Layer()
}

// Saliency считает карту значимости кадра.
func (s *SaliencyModel) Saliency(ctx context.Context, frame *entity.Frame) (*entity.SaliencyMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	input, err := s.input(frame)
	if err != nil {
		return nil, err
	}
	res, err := s.saliency.Run(input)
	if err != nil {
		return nil, err
	}
	return &entity.SaliencyMap{Width: frame.Width, Height: frame.Height, Values: res.Saliency}, nil
}

// Predict возвращает выход слоя без активации.
func (s *SaliencyModel) Predict(ctx context.Context, frame *entity.Frame) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	input, err := s.input(frame)
	if err != nil {
		return nil, err
	}
	res, err := s.predict.Run(input)
	if err != nil {
		return nil, err
	}
	return res.Output, nil
}

// Close освобождает машины обоих графов.
func (s *SaliencyModel) Close() error {
	err := s.saliency.Close()
	if perr := s.predict.Close(); err == nil {
		err = perr
	}
	return err
}

// input переводит BGR-кадр в тензор [h w c] с каналами RGB, как при обучении.
func (s *SaliencyModel) input(frame *entity.Frame) (*tensor.Dense, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	want := s.model.InputShape
	got := tensor.Shape{frame.Height, frame.Width, frame.Channels}
	if !sameShape(got, want) {
		return nil, fmt.Errorf("frame %v does not match model input %v", got, want)
	}

	c := frame.Channels
	buf := make([]float32, len(frame.Pix))
	for p := 0; p < len(frame.Pix); p += c {
		for ch := 0; ch < c; ch++ {
			src := ch
			if c == 3 {
				src = 2 - ch
			}
			buf[p+ch] = float32(frame.Pix[p+src])
		}
	}
	return NewDense(got, buf)
}
