// Package nn загружает обученную модель вождения, собирает из неё граф
// gorgonia и считает карты значимости обратным распространением градиента
// до входного изображения.
package nn

import (
	"errors"
	"fmt"

	"gorgonia.org/tensor"

	"saliency-viz/internal/domain/entity"
)

var (
	// ErrLayerNotFound — в модели нет слоя с таким именем.
	ErrLayerNotFound = errors.New("layer not found")
	// ErrNotBuilt — модель изменили, но не пересобрали.
	ErrNotBuilt = errors.New("model is not built, call ApplyModifications")
)

// Model — модель из слоёв, где у каждого слоя ровно один вход.
type Model struct {
	Name       string
	InputShape tensor.Shape

	layers  []Layer
	inbound []int // индекс входного слоя, -1 означает вход модели
	shapes  []tensor.Shape
	built   bool
}

// NewModel собирает модель из слоёв. Пустой inbound слоя означает предыдущий слой.
func NewModel(name string, input tensor.Shape, layers ...Layer) (*Model, error) {
	m := &Model{Name: name, InputShape: input.Clone(), layers: layers}
	m.inbound = make([]int, len(layers))
	seen := make(map[string]int, len(layers))
	for i, l := range layers {
		if _, dup := seen[l.Name()]; dup {
			return nil, fmt.Errorf("duplicate layer name %q", l.Name())
		}
		switch from := layerInbound(l); from {
		case "":
			m.inbound[i] = i - 1
		case "input":
			m.inbound[i] = -1
		default:
			idx, ok := seen[from]
			if !ok {
				return nil, fmt.Errorf("layer %s: inbound layer %q must be declared before it", l.Name(), from)
			}
			m.inbound[i] = idx
		}
		seen[l.Name()] = i
	}
	if err := m.ApplyModifications(); err != nil {
		return nil, err
	}
	return m, nil
}

func layerInbound(l Layer) string {
	if b, ok := l.(interface{ inboundName() string }); ok {
		return b.inboundName()
	}
	return ""
}

func (b *base) inboundName() string { return b.inbound }

// Layers возвращает слои в порядке объявления.
func (m *Model) Layers() []Layer {
	return m.layers
}

// LayerIndex ищет слой по имени.
func (m *Model) LayerIndex(name string) (int, error) {
	for i, l := range m.layers {
		if l.Name() == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrLayerNotFound, name)
}

// OutputShape возвращает выходную форму слоя idx.
func (m *Model) OutputShape(idx int) tensor.Shape {
	return m.shapes[idx].Clone()
}

// SetActivation заменяет активацию слоя. После изменения модель нужно
// пересобрать через ApplyModifications.
func (m *Model) SetActivation(idx int, a Activation) error {
	if idx < 0 || idx >= len(m.layers) {
		return fmt.Errorf("layer index %d out of range", idx)
	}
	l, ok := m.layers[idx].(Activated)
	if !ok {
		return fmt.Errorf("layer %s (%s) has no activation", m.layers[idx].Name(), m.layers[idx].Kind())
	}
	l.SetActivation(a)
	m.built = false
	return nil
}

// ApplyModifications заново выводит формы всех слоёв. Графы, собранные
// после этого, используют текущие активации.
func (m *Model) ApplyModifications() error {
	if len(m.InputShape) != 3 || m.InputShape.TotalSize() <= 0 {
		return fmt.Errorf("model %q: input shape must be [h w c], got %v", m.Name, m.InputShape)
	}
	if len(m.layers) == 0 {
		return fmt.Errorf("model %q has no layers", m.Name)
	}
	shapes := make([]tensor.Shape, len(m.layers))
	for i, l := range m.layers {
		in := m.InputShape
		if m.inbound[i] >= 0 {
			in = shapes[m.inbound[i]]
		}
		out, err := l.build(in)
		if err != nil {
			return fmt.Errorf("model %q: %w", m.Name, err)
		}
		shapes[i] = out
	}
	m.shapes = shapes
	m.built = true
	return nil
}

// path возвращает цепочку слоёв от входа до idx.
func (m *Model) path(idx int) []int {
	var chain []int
	for i := idx; i >= 0; i = m.inbound[i] {
		chain = append(chain, i)
	}
	for l, r := 0, len(chain)-1; l < r; l, r = l+1, r-1 {
		chain[l], chain[r] = chain[r], chain[l]
	}
	return chain
}

// Predict возвращает выход слоя idx в порядке channels_last.
func (m *Model) Predict(input *tensor.Dense, idx int) ([]float32, error) {
	p, err := m.Compile(idx, entity.BackpropVanilla, nil, false)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	res, err := p.Run(input)
	if err != nil {
		return nil, err
	}
	return res.Output, nil
}

// InputGradient считает градиент функции потерь -mean(out[..., filters]) слоя idx
// по входу. filters == nil означает все выходы слоя.
func (m *Model) InputGradient(input *tensor.Dense, idx int, mod entity.Backprop, filters []int) (*tensor.Dense, error) {
	p, err := m.Compile(idx, mod, filters, true)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	res, err := p.Run(input)
	if err != nil {
		return nil, err
	}
	return NewDense(m.InputShape, res.Gradient)
}

// Saliency строит карту значимости [h w]: максимум модуля градиента по каналам,
// нормированный в [0, 1].
func (m *Model) Saliency(input *tensor.Dense, idx int, mod entity.Backprop, filters []int) (*tensor.Dense, error) {
	p, err := m.Compile(idx, mod, filters, true)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	res, err := p.Run(input)
	if err != nil {
		return nil, err
	}
	return NewDense(tensor.Shape{m.InputShape[0], m.InputShape[1]}, res.Saliency)
}
