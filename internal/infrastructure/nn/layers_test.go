package nn

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"saliency-viz/internal/domain/entity"
)

func mustDense(t *testing.T, shape tensor.Shape, v []float32) *tensor.Dense {
	t.Helper()
	d, err := NewDense(shape, v)
	require.NoError(t, err)
	return d
}

func ones(n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

func scaled(k float32, v ...float32) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = k * x
	}
	return out
}

func build(t *testing.T, input []int, layers ...LayerSpec) *Model {
	t.Helper()
	m, err := (&Artifact{Name: "test", InputShape: input, Layers: layers}).Build()
	require.NoError(t, err)
	return m
}

func TestConv2DValid(t *testing.T) {
	m := build(t, []int{3, 3, 1},
		LayerSpec{Name: "conv", Type: "conv2d", Filters: 1, KernelSize: []int{2, 2}, Kernel: ones(4), Bias: []float32{0}})
	require.Equal(t, []int{2, 2, 1}, []int(m.OutputShape(0)))

	in := mustDense(t, tensor.Shape{3, 3, 1}, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9})
	y, err := m.Predict(in, 0)
	require.NoError(t, err)
	require.Equal(t, []float32{12, 16, 24, 28}, y)

	// d(-mean)/dout = -1/4 для каждого из четырёх выходов
	g, err := m.InputGradient(in, 0, entity.BackpropVanilla, nil)
	require.NoError(t, err)
	require.Equal(t, scaled(-0.25, 1, 2, 1, 2, 4, 2, 1, 2, 1), g.Data())
}

func TestConv2DSamePadding(t *testing.T) {
	m := build(t, []int{3, 3, 1},
		LayerSpec{Name: "conv", Type: "conv2d", Filters: 1, KernelSize: []int{3, 3}, Padding: "same", Kernel: ones(9), Bias: []float32{1}})
	require.Equal(t, []int{3, 3, 1}, []int(m.OutputShape(0)))

	y, err := m.Predict(mustDense(t, tensor.Shape{3, 3, 1}, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}), 0)
	require.NoError(t, err)
	require.Equal(t, float32(13), y[0])
	require.Equal(t, float32(46), y[4])
}

func TestConv2DChannelsLast(t *testing.T) {
	// два фильтра: первый суммирует каналы, второй берёт только второй канал
	m := build(t, []int{1, 2, 2},
		LayerSpec{Name: "conv", Type: "conv2d", Filters: 2, KernelSize: []int{1, 1},
			Kernel: []float32{1, 0, 1, 1}, Bias: []float32{0, 10}})

	y, err := m.Predict(mustDense(t, tensor.Shape{1, 2, 2}, []float32{1, 2, 3, 4}), 0)
	require.NoError(t, err)
	require.Equal(t, []float32{3, 12, 7, 14}, y)
}

func TestConv2DRejectsAsymmetricSame(t *testing.T) {
	_, err := (&Artifact{InputShape: []int{4, 4, 1}, Layers: []LayerSpec{
		{Type: "conv2d", Filters: 1, KernelSize: []int{2, 2}, Padding: "same", Kernel: ones(4)},
	}}).Build()
	require.Error(t, err)
}

func TestConv2DKernelMismatch(t *testing.T) {
	_, err := (&Artifact{InputShape: []int{3, 3, 3}, Layers: []LayerSpec{
		{Type: "conv2d", Filters: 2, KernelSize: []int{2, 2}, Kernel: ones(8)},
	}}).Build()
	require.Error(t, err)
}

func TestMaxPooling2D(t *testing.T) {
	m := build(t, []int{2, 2, 1}, LayerSpec{Name: "pool", Type: "max_pooling2d", PoolSize: []int{2, 2}})
	require.Equal(t, []int{1, 1, 1}, []int(m.OutputShape(0)))

	in := mustDense(t, tensor.Shape{2, 2, 1}, []float32{1, 5, 3, 2})
	y, err := m.Predict(in, 0)
	require.NoError(t, err)
	require.Equal(t, []float32{5}, y)

	g, err := m.InputGradient(in, 0, entity.BackpropGuided, nil)
	require.NoError(t, err)
	require.Equal(t, []float32{0, -1, 0, 0}, g.Data())
}

func TestDenseForwardBackward(t *testing.T) {
	m := build(t, []int{1, 1, 3},
		LayerSpec{Name: "flat", Type: "flatten"},
		LayerSpec{Name: "fc", Type: "dense", Units: 2, Kernel: []float32{1, 0, 0, 1, 1, 1}, Bias: []float32{0.5, -0.5}})

	in := mustDense(t, tensor.Shape{1, 1, 3}, []float32{1, 2, 3})
	y, err := m.Predict(in, 1)
	require.NoError(t, err)
	require.Equal(t, []float32{4.5, 4.5}, y)

	g, err := m.InputGradient(in, 1, entity.BackpropVanilla, nil)
	require.NoError(t, err)
	require.Equal(t, []float32{-0.5, -0.5, -1}, g.Data())
}

func TestReluModifiers(t *testing.T) {
	// hidden = relu([2, -2]); градиент, пришедший в hidden, равен [-1, 5]
	m := build(t, []int{1, 1, 1},
		LayerSpec{Name: "flat", Type: "flatten"},
		LayerSpec{Name: "hidden", Type: "dense", Units: 2, Activation: "relu", Kernel: []float32{1, -1}},
		LayerSpec{Name: "out", Type: "dense", Units: 1, Kernel: []float32{1, -5}})
	in := mustDense(t, tensor.Shape{1, 1, 1}, []float32{2})

	cases := map[entity.Backprop]float32{
		// первый нейрон активен, но градиент отрицательный; второй неактивен
		entity.BackpropGuided:    0,
		entity.BackpropRectified: -5,
		entity.BackpropVanilla:   -1,
	}
	for mod, want := range cases {
		g, err := m.InputGradient(in, 2, mod, nil)
		require.NoError(t, err)
		require.Equal(t, []float32{want}, g.Data(), "%s", mod)
	}
}

func TestFlattenKeepsChannelsLastOrder(t *testing.T) {
	m := build(t, []int{2, 2, 3}, LayerSpec{Name: "flat", Type: "flatten"})
	require.Equal(t, []int{12}, []int(m.OutputShape(0)))

	v := make([]float32, 12)
	for i := range v {
		v[i] = float32(i)
	}
	y, err := m.Predict(mustDense(t, tensor.Shape{2, 2, 3}, v), 0)
	require.NoError(t, err)
	require.Equal(t, v, y)
}

func TestRescaling(t *testing.T) {
	scale := float32(0.5)
	m := build(t, []int{1, 2, 1},
		LayerSpec{Name: "scale", Type: "rescaling", Scale: &scale, Offset: 1},
		LayerSpec{Name: "flat", Type: "flatten"})

	in := mustDense(t, tensor.Shape{1, 2, 1}, []float32{2, 4})
	y, err := m.Predict(in, 1)
	require.NoError(t, err)
	require.Equal(t, []float32{2, 3}, y)

	g, err := m.InputGradient(in, 1, entity.BackpropVanilla, nil)
	require.NoError(t, err)
	require.Equal(t, []float32{-0.25, -0.25}, g.Data())
}
