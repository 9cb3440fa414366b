package nn

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
	"gorgonia.org/tensor"
)

// Artifact — сериализованная модель: архитектура и веса в раскладке Keras.
type Artifact struct {
	Name       string      `json:"name" yaml:"name"`
	InputShape []int       `json:"input_shape" yaml:"input_shape"`
	Layers     []LayerSpec `json:"layers" yaml:"layers"`
}

// LayerSpec описывает один слой артефакта.
type LayerSpec struct {
	Name       string    `json:"name" yaml:"name"`
	Type       string    `json:"type" yaml:"type"`
	Inbound    string    `json:"inbound,omitempty" yaml:"inbound,omitempty"`
	Activation string    `json:"activation,omitempty" yaml:"activation,omitempty"`
	Filters    int       `json:"filters,omitempty" yaml:"filters,omitempty"`
	Units      int       `json:"units,omitempty" yaml:"units,omitempty"`
	KernelSize []int     `json:"kernel_size,omitempty" yaml:"kernel_size,omitempty"`
	PoolSize   []int     `json:"pool_size,omitempty" yaml:"pool_size,omitempty"`
	Strides    []int     `json:"strides,omitempty" yaml:"strides,omitempty"`
	Padding    string    `json:"padding,omitempty" yaml:"padding,omitempty"`
	Rate       float64   `json:"rate,omitempty" yaml:"rate,omitempty"`
	Scale      *float32  `json:"scale,omitempty" yaml:"scale,omitempty"`
	Offset     float32   `json:"offset,omitempty" yaml:"offset,omitempty"`
	Kernel     []float32 `json:"kernel,omitempty" yaml:"kernel,omitempty"`
	Bias       []float32 `json:"bias,omitempty" yaml:"bias,omitempty"`
}

// Load читает артефакт модели. Формат выбирается по расширению:
// .yaml/.yml — YAML, всё остальное — JSON.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}

	var art Artifact
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &art)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&art)
	}
	if err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}

	m, err := art.Build()
	if err != nil {
		return nil, fmt.Errorf("build model %s: %w", path, err)
	}
	return m, nil
}

// Build превращает описание в модель.
func (a *Artifact) Build() (*Model, error) {
	if len(a.InputShape) != 3 {
		return nil, fmt.Errorf("input_shape must be [height width channels], got %v", a.InputShape)
	}
	layers := make([]Layer, 0, len(a.Layers))
	for i, spec := range a.Layers {
		if spec.Name == "" {
			spec.Name = fmt.Sprintf("%s_%d", spec.Type, i)
		}
		l, err := spec.layer()
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", spec.Name, err)
		}
		layers = append(layers, l)
	}
	return NewModel(a.Name, tensor.Shape(a.InputShape), layers...)
}

func pair(v []int, def int) (int, int, error) {
	switch len(v) {
	case 0:
		return def, def, nil
	case 1:
		return v[0], v[0], nil
	case 2:
		return v[0], v[1], nil
	}
	return 0, 0, fmt.Errorf("expected 1 or 2 values, got %v", v)
}

func (s LayerSpec) layer() (Layer, error) {
	b := base{name: s.Name, inbound: s.Inbound}
	act, err := ParseActivation(s.Activation)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(s.Type) {
	case "rescaling":
		scale := float32(1)
		if s.Scale != nil {
			scale = *s.Scale
		}
		return &Rescaling{base: b, Scale: scale, Offset: s.Offset}, nil

	case "conv2d":
		kh, kw, err := pair(s.KernelSize, 0)
		if err != nil || kh <= 0 || kw <= 0 {
			return nil, fmt.Errorf("invalid kernel_size %v", s.KernelSize)
		}
		sh, sw, err := pair(s.Strides, 1)
		if err != nil || sh <= 0 || sw <= 0 {
			return nil, fmt.Errorf("invalid strides %v", s.Strides)
		}
		same, err := parsePadding(s.Padding)
		if err != nil {
			return nil, err
		}
		if s.Filters <= 0 {
			return nil, fmt.Errorf("filters must be positive, got %d", s.Filters)
		}
		if len(s.Kernel)%(kh*kw*s.Filters) != 0 || len(s.Kernel) == 0 {
			return nil, fmt.Errorf("kernel has %d values, not a multiple of %dx%dx%d", len(s.Kernel), kh, kw, s.Filters)
		}
		inC := len(s.Kernel) / (kh * kw * s.Filters)
		kernel, err := NewDense(tensor.Shape{kh, kw, inC, s.Filters}, s.Kernel)
		if err != nil {
			return nil, err
		}
		l := &Conv2D{
			base:    b,
			Filters: s.Filters,
			KernelH: kh,
			KernelW: kw,
			StrideH: sh,
			StrideW: sw,
			Same:    same,
			Kernel:  kernel,
			Bias:    biasOrZeros(s.Bias, s.Filters),
		}
		l.SetActivation(act)
		return l, nil

	case "max_pooling2d", "maxpooling2d":
		ph, pw, err := pair(s.PoolSize, 2)
		if err != nil || ph <= 0 || pw <= 0 {
			return nil, fmt.Errorf("invalid pool_size %v", s.PoolSize)
		}
		sh, sw, err := pair(s.Strides, 0)
		if err != nil {
			return nil, fmt.Errorf("invalid strides %v", s.Strides)
		}
		if sh <= 0 {
			sh = ph
		}
		if sw <= 0 {
			sw = pw
		}
		return &MaxPooling2D{base: b, PoolH: ph, PoolW: pw, StrideH: sh, StrideW: sw}, nil

	case "flatten":
		return &Flatten{base: b}, nil

	case "dense":
		if s.Units <= 0 {
			return nil, fmt.Errorf("units must be positive, got %d", s.Units)
		}
		if len(s.Kernel) == 0 || len(s.Kernel)%s.Units != 0 {
			return nil, fmt.Errorf("kernel has %d values, not a multiple of %d units", len(s.Kernel), s.Units)
		}
		kernel, err := NewDense(tensor.Shape{len(s.Kernel) / s.Units, s.Units}, s.Kernel)
		if err != nil {
			return nil, err
		}
		l := &Dense{base: b, Units: s.Units, Kernel: kernel, Bias: biasOrZeros(s.Bias, s.Units)}
		l.SetActivation(act)
		return l, nil

	case "dropout":
		return &Dropout{base: b, Rate: s.Rate}, nil

	case "activation":
		l := &ActivationLayer{base: b}
		l.SetActivation(act)
		return l, nil
	}
	return nil, fmt.Errorf("unsupported layer type %q", s.Type)
}

func parsePadding(p string) (bool, error) {
	switch strings.ToLower(p) {
	case "", "valid":
		return false, nil
	case "same":
		return true, nil
	}
	return false, fmt.Errorf("unsupported padding %q", p)
}

func biasOrZeros(bias []float32, n int) []float32 {
	if len(bias) == 0 {
		return make([]float32, n)
	}
	return bias
}
