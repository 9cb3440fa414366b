package nn

import (
	"fmt"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"saliency-viz/internal/domain/entity"
)

const normalizeEpsilon = 1e-7

// Program — граф gorgonia от входа модели до одного слоя вместе с машиной,
// которая его исполняет. Не предназначен для конкурентного использования.
type Program struct {
	layer   string
	inShape tensor.Shape

	input  *gorgonia.Node
	output *gorgonia.Node
	grad   *gorgonia.Node // nil, если градиент не собирался
	sal    *gorgonia.Node
	vm     gorgonia.VM
}

// Result — значения одного прогона.
type Result struct {
	// Output — выход слоя в порядке channels_last
	Output []float32
	// Gradient — градиент потерь по входу [h w c]
	Gradient []float32
	// Saliency — нормированная карта [h w]
	Saliency []float32
}

// Compile собирает граф до слоя idx. С withGrad к графу добавляются потери
// -mean(out[..., filters]), их градиент по входу и карта значимости.
func (m *Model) Compile(idx int, mod entity.Backprop, filters []int, withGrad bool) (*Program, error) {
	if !m.built {
		return nil, ErrNotBuilt
	}
	if idx < 0 || idx >= len(m.layers) {
		return nil, fmt.Errorf("layer index %d out of range", idx)
	}

	g := gorgonia.NewGraph()
	h, w, c := m.InputShape[0], m.InputShape[1], m.InputShape[2]
	input := gorgonia.NewTensor(g, tensor.Float32, 4,
		gorgonia.WithShape(1, c, h, w),
		gorgonia.WithName("input"))

	nodes := make(map[int]*gorgonia.Node, len(m.layers))
	for _, i := range m.path(idx) {
		from := input
		if m.inbound[i] >= 0 {
			from = nodes[m.inbound[i]]
		}
		y, err := m.layers[i].apply(g, from, mod)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", m.layers[i].Name(), err)
		}
		nodes[i] = y
	}

	p := &Program{
		layer:   m.layers[idx].Name(),
		inShape: m.InputShape.Clone(),
		input:   input,
		output:  nodes[idx],
	}
	if withGrad {
		if err := p.attachSaliency(filters); err != nil {
			return nil, fmt.Errorf("layer %s: %w", p.layer, err)
		}
	}
	p.vm = gorgonia.NewTapeMachine(g)
	return p, nil
}

func (p *Program) attachSaliency(filters []int) error {
	mask, err := lossMask(p.output.Shape(), filters)
	if err != nil {
		return err
	}
	selected, err := gorgonia.HadamardProd(p.output, gorgonia.NewConstant(mask, gorgonia.WithName("loss_mask")))
	if err != nil {
		return err
	}
	sum, err := gorgonia.Sum(selected)
	if err != nil {
		return err
	}
	loss, err := gorgonia.Neg(sum)
	if err != nil {
		return err
	}

	grads, err := gorgonia.Grad(loss, p.input)
	if err != nil {
		return fmt.Errorf("gradient: %w", err)
	}
	p.grad = grads[0]

	abs, err := gorgonia.Abs(p.grad)
	if err != nil {
		return err
	}
	// максимум по каналам: [1 c h w] -> [1 h w]
	p.sal, err = gorgonia.Max(abs, 1)
	return err
}

// lossMask возвращает веса, с которыми -sum(out*mask) равно -mean(out[..., filters]).
// Каналы в графе лежат на оси 1.
func lossMask(shape tensor.Shape, filters []int) (*tensor.Dense, error) {
	if len(shape) < 2 {
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
	mask, err := NewDense(shape, nil)
	if err != nil {
		return nil, err
	}
	v := mask.Data().([]float32)
	if filters == nil {
		for i := range v {
			v[i] = 1 / float32(len(v))
		}
		return mask, nil
	}

	channels := shape[1]
	plane := len(v) / (shape[0] * channels)
	positions := len(v) / channels
	for _, f := range filters {
		if f < 0 || f >= channels {
			return nil, fmt.Errorf("filter index %d out of range [0, %d)", f, channels)
		}
		for b := 0; b < shape[0]; b++ {
			start := (b*channels + f) * plane
			for i := start; i < start+plane; i++ {
				v[i] += 1 / float32(positions)
			}
		}
	}
	return mask, nil
}

// Layer возвращает имя слоя, до которого собран граф.
func (p *Program) Layer() string { return p.layer }

// Run исполняет граф на входе [h w c].
func (p *Program) Run(input *tensor.Dense) (*Result, error) {
	if !sameShape(input.Shape(), p.inShape) {
		return nil, fmt.Errorf("input shape %v does not match model input %v", input.Shape(), p.inShape)
	}
	x, err := toGraphLayout(input)
	if err != nil {
		return nil, err
	}
	if err := gorgonia.Let(p.input, x); err != nil {
		return nil, err
	}

	defer p.vm.Reset()
	if err := p.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("run %s: %w", p.layer, err)
	}

	res := &Result{}
	if res.Output, err = fromGraphLayout(p.output.Value()); err != nil {
		return nil, err
	}
	if p.grad == nil {
		return res, nil
	}
	if res.Gradient, err = fromGraphLayout(p.grad.Value()); err != nil {
		return nil, err
	}
	if res.Saliency, err = float32s(p.sal.Value()); err != nil {
		return nil, err
	}
	normalize(res.Saliency)
	return res, nil
}

// Close освобождает машину.
func (p *Program) Close() error {
	return p.vm.Close()
}

// normalize: (x - min) / (max - min + eps).
func normalize(v []float32) {
	if len(v) == 0 {
		return
	}
	lo, hi := v[0], v[0]
	for _, x := range v {
		lo = min(lo, x)
		hi = max(hi, x)
	}
	span := hi - lo + normalizeEpsilon
	for i, x := range v {
		v[i] = (x - lo) / span
	}
}
