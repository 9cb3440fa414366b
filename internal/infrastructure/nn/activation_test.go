package nn

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"saliency-viz/internal/domain/entity"
)

func TestReluGradModifiers(t *testing.T) {
	cases := []struct {
		mod  entity.Backprop
		x, g float32
		want float32
	}{
		{entity.BackpropVanilla, 1, -2, -2},
		{entity.BackpropVanilla, -1, 2, 0},
		{entity.BackpropGuided, 1, -2, 0},
		{entity.BackpropGuided, 1, 2, 2},
		{entity.BackpropGuided, -1, 2, 0},
		{entity.BackpropRectified, -1, 2, 2},
		{entity.BackpropRectified, 1, -2, 0},
	}
	for _, c := range cases {
		require.Equal(t, c.want, reluGrad(c.x, c.g, c.mod), "%s x=%v g=%v", c.mod, c.x, c.g)
	}
}

func TestReluOpDo(t *testing.T) {
	x := mustDense(t, tensor.Shape{1, 4}, []float32{-1, 0, 2, -3})
	out, err := reluOp{mod: entity.BackpropGuided}.Do(x)
	require.NoError(t, err)
	require.Equal(t, []int{1, 4}, []int(out.Shape()))
	require.Equal(t, []float32{0, 0, 2, 0}, out.Data())

	g := mustDense(t, tensor.Shape{1, 4}, []float32{1, 1, -1, 1})
	dx, err := reluGradOp{mod: entity.BackpropGuided}.Do(x, g)
	require.NoError(t, err)
	require.Equal(t, []float32{0, 0, 0, 0}, dx.Data())

	dx, err = reluGradOp{mod: entity.BackpropVanilla}.Do(x, g)
	require.NoError(t, err)
	require.Equal(t, []float32{0, 0, -1, 0}, dx.Data())
}

func TestReluOpHashDependsOnModifier(t *testing.T) {
	require.NotEqual(t, reluOp{mod: entity.BackpropGuided}.Hashcode(), reluOp{mod: entity.BackpropVanilla}.Hashcode())
	require.Equal(t, reluOp{mod: entity.BackpropGuided}.Hashcode(), reluOp{mod: entity.BackpropGuided}.Hashcode())
}

func TestSoftmaxSumIsConstant(t *testing.T) {
	m := build(t, []int{1, 1, 3},
		LayerSpec{Name: "flat", Type: "flatten"},
		LayerSpec{Name: "probs", Type: "activation", Activation: "softmax"})
	in := mustDense(t, tensor.Shape{1, 1, 3}, []float32{1, 2, 3})

	out, err := m.Predict(in, 1)
	require.NoError(t, err)
	require.InDelta(t, 1, out[0]+out[1]+out[2], 1e-6)
	require.Greater(t, out[2], out[1])

	// градиент среднего по softmax равен нулю
	g, err := m.InputGradient(in, 1, entity.BackpropVanilla, nil)
	require.NoError(t, err)
	for _, v := range g.Data().([]float32) {
		require.InDelta(t, 0, v, 1e-6)
	}
}

func TestParseActivation(t *testing.T) {
	a, err := ParseActivation("")
	require.NoError(t, err)
	require.Equal(t, Linear, a)

	_, err = ParseActivation("swish")
	require.Error(t, err)
}
