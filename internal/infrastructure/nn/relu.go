package nn

import (
	"errors"
	"fmt"
	"hash"
	"hash/fnv"

	"github.com/chewxy/hm"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"saliency-viz/internal/domain/entity"
)

// reluOp — ReLU с настраиваемым обратным проходом. Прямой проход обычный,
// градиент считает reluGradOp с модификатором mod.
type reluOp struct {
	mod entity.Backprop
}

func relu(x *gorgonia.Node, mod entity.Backprop) (*gorgonia.Node, error) {
	return gorgonia.ApplyOp(reluOp{mod: mod}, x)
}

func (op reluOp) Arity() int { return 1 }

func (op reluOp) Type() hm.Type {
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a)
}

func (op reluOp) InferShape(inputs ...gorgonia.DimSizer) (tensor.Shape, error) {
	return firstShape(inputs)
}

func (op reluOp) Do(inputs ...gorgonia.Value) (gorgonia.Value, error) {
	args, err := operands(inputs, 1)
	if err != nil {
		return nil, err
	}
	x := args[0]
	out := make([]float32, len(x))
	for i, v := range x {
		if v > 0 {
			out[i] = v
		}
	}
	return NewDense(inputs[0].Shape(), out)
}

func (op reluOp) ReturnsPtr() bool     { return false }
func (op reluOp) CallsExtern() bool    { return false }
func (op reluOp) OverwritesInput() int { return -1 }
func (op reluOp) String() string       { return fmt.Sprintf("ReLU{%s}", op.mod) }

func (op reluOp) WriteHash(h hash.Hash) { fmt.Fprint(h, op.String()) }

func (op reluOp) Hashcode() uint32 { return hashOf(op) }

func (op reluOp) DiffWRT(inputs int) []bool { return []bool{true} }

func (op reluOp) SymDiff(inputs gorgonia.Nodes, output, grad *gorgonia.Node) (gorgonia.Nodes, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("%v: expected 1 input, got %d", op, len(inputs))
	}
	dx, err := gorgonia.ApplyOp(reluGradOp(op), inputs[0], grad)
	if err != nil {
		return nil, err
	}
	return gorgonia.Nodes{dx}, nil
}

// reluGradOp(x, g) — градиент по входу ReLU.
type reluGradOp struct {
	mod entity.Backprop
}

func (op reluGradOp) Arity() int { return 2 }

func (op reluGradOp) Type() hm.Type {
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a, a)
}

func (op reluGradOp) InferShape(inputs ...gorgonia.DimSizer) (tensor.Shape, error) {
	return firstShape(inputs)
}

func (op reluGradOp) Do(inputs ...gorgonia.Value) (gorgonia.Value, error) {
	args, err := operands(inputs, 2)
	if err != nil {
		return nil, err
	}
	x, g := args[0], args[1]
	if len(x) != len(g) {
		return nil, fmt.Errorf("%v: input has %d values, gradient %d", op, len(x), len(g))
	}
	out := make([]float32, len(x))
	for i := range x {
		out[i] = reluGrad(x[i], g[i], op.mod)
	}
	return NewDense(inputs[0].Shape(), out)
}

func (op reluGradOp) ReturnsPtr() bool     { return false }
func (op reluGradOp) CallsExtern() bool    { return false }
func (op reluGradOp) OverwritesInput() int { return -1 }
func (op reluGradOp) String() string       { return fmt.Sprintf("ReLUGrad{%s}", op.mod) }

func (op reluGradOp) WriteHash(h hash.Hash) { fmt.Fprint(h, op.String()) }

func (op reluGradOp) Hashcode() uint32 { return hashOf(op) }

// reluGrad считает производную ReLU с учётом модификатора обратного прохода:
// guided пропускает только положительный градиент через активные нейроны,
// rectified только положительный градиент, vanilla обычная производная.
func reluGrad(x, g float32, mod entity.Backprop) float32 {
	switch mod {
	case entity.BackpropGuided:
		if x > 0 && g > 0 {
			return g
		}
		return 0
	case entity.BackpropRectified:
		if g > 0 {
			return g
		}
		return 0
	default:
		if x > 0 {
			return g
		}
		return 0
	}
}

func hashOf(op gorgonia.Op) uint32 {
	h := fnv.New32a()
	op.WriteHash(h)
	return h.Sum32()
}

func firstShape(inputs []gorgonia.DimSizer) (tensor.Shape, error) {
	if len(inputs) == 0 {
		return nil, errors.New("no input shapes")
	}
	s, ok := inputs[0].(tensor.Shape)
	if !ok {
		return nil, fmt.Errorf("expected tensor.Shape, got %T", inputs[0])
	}
	return s.Clone(), nil
}

func operands(inputs []gorgonia.Value, n int) ([][]float32, error) {
	if len(inputs) != n {
		return nil, fmt.Errorf("expected %d inputs, got %d", n, len(inputs))
	}
	out := make([][]float32, n)
	for i, v := range inputs {
		data, err := float32s(v)
		if err != nil {
			return nil, err
		}
		out[i] = data
	}
	return out, nil
}
