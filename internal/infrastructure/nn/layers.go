package nn

import (
	"fmt"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"saliency-viz/internal/domain/entity"
)

// Layer описывает слой последовательной модели. Формы в build заданы в
// раскладке Keras без оси батча, узлы графа идут в раскладке NCHW.
type Layer interface {
	Name() string
	Kind() string

	// build проверяет входную форму и возвращает выходную
	build(in tensor.Shape) (tensor.Shape, error)
	// apply добавляет слой в граф
	apply(g *gorgonia.ExprGraph, x *gorgonia.Node, mod entity.Backprop) (*gorgonia.Node, error)
}

// Activated реализуют слои со встроенной активацией.
type Activated interface {
	Activation() Activation
	SetActivation(a Activation)
}

type base struct {
	name    string
	inbound string
	out     tensor.Shape
}

func (b *base) Name() string { return b.name }

type activated struct {
	fn Activation
}

func (a *activated) Activation() Activation     { return a.fn }
func (a *activated) SetActivation(f Activation) { a.fn = f }

func sameShape(a, b tensor.Shape) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Rescaling: y = x*scale + offset.
type Rescaling struct {
	base
	Scale  float32
	Offset float32
}

func (l *Rescaling) Kind() string { return "rescaling" }

func (l *Rescaling) build(in tensor.Shape) (tensor.Shape, error) {
	l.out = in.Clone()
	return l.out, nil
}

func (l *Rescaling) apply(_ *gorgonia.ExprGraph, x *gorgonia.Node, _ entity.Backprop) (*gorgonia.Node, error) {
	var err error
	if l.Scale != 1 {
		if x, err = gorgonia.Mul(x, gorgonia.NewConstant(l.Scale)); err != nil {
			return nil, err
		}
	}
	if l.Offset != 0 {
		if x, err = gorgonia.Add(x, gorgonia.NewConstant(l.Offset)); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// Conv2D — свёртка, ядро в раскладке Keras [kh, kw, in, out].
// Padding "same" поддерживается для шага 1 и нечётного ядра.
type Conv2D struct {
	base
	activated
	Filters int
	KernelH int
	KernelW int
	StrideH int
	StrideW int
	Same    bool
	Kernel  *tensor.Dense
	Bias    []float32
}

func (l *Conv2D) Kind() string { return "conv2d" }

func (l *Conv2D) padding() (int, int, error) {
	if !l.Same {
		return 0, 0, nil
	}
	if l.StrideH != 1 || l.StrideW != 1 || l.KernelH%2 == 0 || l.KernelW%2 == 0 {
		return 0, 0, fmt.Errorf("layer %s: same padding needs stride 1 and an odd kernel, got %dx%d stride %dx%d",
			l.name, l.KernelH, l.KernelW, l.StrideH, l.StrideW)
	}
	return l.KernelH / 2, l.KernelW / 2, nil
}

func (l *Conv2D) build(in tensor.Shape) (tensor.Shape, error) {
	if len(in) != 3 {
		return nil, fmt.Errorf("layer %s: conv2d needs [h w c] input, got %v", l.name, in)
	}
	want := tensor.Shape{l.KernelH, l.KernelW, in[2], l.Filters}
	if !sameShape(l.Kernel.Shape(), want) {
		return nil, fmt.Errorf("layer %s: kernel shape %v, want %v", l.name, l.Kernel.Shape(), want)
	}
	if len(l.Bias) != l.Filters {
		return nil, fmt.Errorf("layer %s: bias has %d values, want %d", l.name, len(l.Bias), l.Filters)
	}
	ph, pw, err := l.padding()
	if err != nil {
		return nil, err
	}
	oh := windows(in[0], l.KernelH, l.StrideH, ph)
	ow := windows(in[1], l.KernelW, l.StrideW, pw)
	if oh <= 0 || ow <= 0 {
		return nil, fmt.Errorf("layer %s: input %v is smaller than kernel %dx%d", l.name, in, l.KernelH, l.KernelW)
	}
	l.out = tensor.Shape{oh, ow, l.Filters}
	return l.out, nil
}

func windows(size, kernel, stride, pad int) int {
	if size+2*pad < kernel {
		return 0
	}
	return (size+2*pad-kernel)/stride + 1
}

func (l *Conv2D) apply(g *gorgonia.ExprGraph, x *gorgonia.Node, mod entity.Backprop) (*gorgonia.Node, error) {
	// gorgonia ждёт ядро [out, in, kh, kw]
	kernel, err := permute(l.Kernel, 3, 2, 0, 1)
	if err != nil {
		return nil, err
	}
	w := gorgonia.NewTensor(g, tensor.Float32, 4,
		gorgonia.WithShape(kernel.Shape().Clone()...),
		gorgonia.WithValue(kernel),
		gorgonia.WithName(l.name+"/kernel"))

	ph, pw, err := l.padding()
	if err != nil {
		return nil, err
	}
	y, err := gorgonia.Conv2d(x, w, tensor.Shape{l.KernelH, l.KernelW},
		[]int{ph, pw}, []int{l.StrideH, l.StrideW}, []int{1, 1})
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", l.name, err)
	}

	// смещение заранее растянуто до формы выхода [1 out h w]
	oh, ow := l.out[0], l.out[1]
	bias := make([]float32, l.Filters*oh*ow)
	for f, v := range l.Bias {
		plane := bias[f*oh*ow : (f+1)*oh*ow]
		for i := range plane {
			plane[i] = v
		}
	}
	bv, err := NewDense(tensor.Shape{1, l.Filters, oh, ow}, bias)
	if err != nil {
		return nil, err
	}
	b := gorgonia.NewTensor(g, tensor.Float32, 4,
		gorgonia.WithShape(bv.Shape().Clone()...),
		gorgonia.WithValue(bv),
		gorgonia.WithName(l.name+"/bias"))
	if y, err = gorgonia.Add(y, b); err != nil {
		return nil, err
	}
	return activate(y, l.fn, mod)
}

// MaxPooling2D берёт максимум по окну, без дополнения.
type MaxPooling2D struct {
	base
	PoolH   int
	PoolW   int
	StrideH int
	StrideW int
}

func (l *MaxPooling2D) Kind() string { return "max_pooling2d" }

func (l *MaxPooling2D) build(in tensor.Shape) (tensor.Shape, error) {
	if len(in) != 3 {
		return nil, fmt.Errorf("layer %s: max_pooling2d needs [h w c] input, got %v", l.name, in)
	}
	oh := windows(in[0], l.PoolH, l.StrideH, 0)
	ow := windows(in[1], l.PoolW, l.StrideW, 0)
	if oh <= 0 || ow <= 0 {
		return nil, fmt.Errorf("layer %s: input %v is smaller than pool %dx%d", l.name, in, l.PoolH, l.PoolW)
	}
	l.out = tensor.Shape{oh, ow, in[2]}
	return l.out, nil
}

func (l *MaxPooling2D) apply(_ *gorgonia.ExprGraph, x *gorgonia.Node, _ entity.Backprop) (*gorgonia.Node, error) {
	y, err := gorgonia.MaxPool2D(x, tensor.Shape{l.PoolH, l.PoolW}, []int{0, 0}, []int{l.StrideH, l.StrideW})
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", l.name, err)
	}
	return y, nil
}

// Flatten разворачивает тензор в вектор в порядке channels_last.
type Flatten struct {
	base
}

func (l *Flatten) Kind() string { return "flatten" }

func (l *Flatten) build(in tensor.Shape) (tensor.Shape, error) {
	l.out = tensor.Shape{in.TotalSize()}
	return l.out, nil
}

func (l *Flatten) apply(_ *gorgonia.ExprGraph, x *gorgonia.Node, _ entity.Backprop) (*gorgonia.Node, error) {
	if x.Dims() == 2 {
		return x, nil
	}
	// NCHW -> NHWC, чтобы порядок совпал с весами Keras
	nhwc, err := gorgonia.Transpose(x, 0, 2, 3, 1)
	if err != nil {
		return nil, err
	}
	return gorgonia.Reshape(nhwc, tensor.Shape{1, l.out[0]})
}

// Dense — полносвязный слой, ядро [in, units].
type Dense struct {
	base
	activated
	Units  int
	Kernel *tensor.Dense
	Bias   []float32
}

func (l *Dense) Kind() string { return "dense" }

func (l *Dense) build(in tensor.Shape) (tensor.Shape, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("layer %s: dense needs a flat input, got %v", l.name, in)
	}
	want := tensor.Shape{in[0], l.Units}
	if !sameShape(l.Kernel.Shape(), want) {
		return nil, fmt.Errorf("layer %s: kernel shape %v, want %v", l.name, l.Kernel.Shape(), want)
	}
	if len(l.Bias) != l.Units {
		return nil, fmt.Errorf("layer %s: bias has %d values, want %d", l.name, len(l.Bias), l.Units)
	}
	l.out = tensor.Shape{l.Units}
	return l.out, nil
}

func (l *Dense) apply(g *gorgonia.ExprGraph, x *gorgonia.Node, mod entity.Backprop) (*gorgonia.Node, error) {
	kernel := l.Kernel.Clone().(*tensor.Dense)
	w := gorgonia.NewMatrix(g, tensor.Float32,
		gorgonia.WithShape(kernel.Shape().Clone()...),
		gorgonia.WithValue(kernel),
		gorgonia.WithName(l.name+"/kernel"))
	bv, err := NewDense(tensor.Shape{1, l.Units}, append([]float32(nil), l.Bias...))
	if err != nil {
		return nil, err
	}
	b := gorgonia.NewMatrix(g, tensor.Float32,
		gorgonia.WithShape(1, l.Units),
		gorgonia.WithValue(bv),
		gorgonia.WithName(l.name+"/bias"))

	y, err := gorgonia.Mul(x, w)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", l.name, err)
	}
	if y, err = gorgonia.Add(y, b); err != nil {
		return nil, err
	}
	return activate(y, l.fn, mod)
}

// Dropout на инференсе ничего не делает.
type Dropout struct {
	base
	Rate float64
}

func (l *Dropout) Kind() string { return "dropout" }

func (l *Dropout) build(in tensor.Shape) (tensor.Shape, error) {
	l.out = in.Clone()
	return l.out, nil
}

func (l *Dropout) apply(_ *gorgonia.ExprGraph, x *gorgonia.Node, _ entity.Backprop) (*gorgonia.Node, error) {
	return x, nil
}

// ActivationLayer применяет активацию отдельным слоем.
type ActivationLayer struct {
	base
	activated
}

func (l *ActivationLayer) Kind() string { return "activation" }

func (l *ActivationLayer) build(in tensor.Shape) (tensor.Shape, error) {
	l.out = in.Clone()
	return l.out, nil
}

func (l *ActivationLayer) apply(_ *gorgonia.ExprGraph, x *gorgonia.Node, mod entity.Backprop) (*gorgonia.Node, error) {
	return activate(x, l.fn, mod)
}
