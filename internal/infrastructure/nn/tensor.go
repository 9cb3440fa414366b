package nn

import (
	"errors"
	"fmt"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NewDense создаёт float32 тензор формы shape поверх buf; при buf == nil тензор нулевой.
func NewDense(shape tensor.Shape, buf []float32) (*tensor.Dense, error) {
	size := shape.TotalSize()
	if len(shape) == 0 || size <= 0 {
		return nil, fmt.Errorf("invalid tensor shape %v", shape)
	}
	if buf == nil {
		buf = make([]float32, size)
	}
	if len(buf) != size {
		return nil, fmt.Errorf("tensor shape %v needs %d values, got %d", shape, size, len(buf))
	}
	return tensor.New(tensor.WithShape(shape.Clone()...), tensor.WithBacking(buf)), nil
}

// permute переставляет оси с копированием данных.
func permute(d *tensor.Dense, axes ...int) (*tensor.Dense, error) {
	t, err := tensor.T(d, axes...)
	if err != nil {
		return nil, err
	}
	out, ok := t.(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("transpose returned %T", t)
	}
	return out, nil
}

// float32s копирует значения тензора в новый срез.
func float32s(v gorgonia.Value) ([]float32, error) {
	if v == nil {
		return nil, errors.New("value is not computed")
	}
	if d, ok := v.(*tensor.Dense); ok && d.IsMaterializable() {
		v = d.Materialize().(*tensor.Dense)
	}
	switch data := v.Data().(type) {
	case []float32:
		return append([]float32(nil), data...), nil
	case float32:
		return []float32{data}, nil
	}
	return nil, fmt.Errorf("unexpected value of type %T", v.Data())
}

// toGraphLayout переводит [h w c] в NCHW [1 c h w] для свёрток gorgonia.
func toGraphLayout(hwc *tensor.Dense) (*tensor.Dense, error) {
	s := hwc.Shape()
	if len(s) != 3 {
		return nil, fmt.Errorf("expected [h w c] tensor, got %v", s)
	}
	chw, err := permute(hwc, 2, 0, 1)
	if err != nil {
		return nil, err
	}
	if err := chw.Reshape(1, s[2], s[0], s[1]); err != nil {
		return nil, err
	}
	return chw, nil
}

// fromGraphLayout возвращает значения узла в порядке channels_last без оси батча.
func fromGraphLayout(v gorgonia.Value) ([]float32, error) {
	d, ok := v.(*tensor.Dense)
	if !ok || d.Dims() != 4 {
		return float32s(v)
	}
	nhwc, err := permute(d, 0, 2, 3, 1)
	if err != nil {
		return nil, err
	}
	return float32s(nhwc)
}
