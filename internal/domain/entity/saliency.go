package entity

import "fmt"

// SaliencyMap — карта значимости пикселей, значения в диапазоне [0, 1].
type SaliencyMap struct {
	Width  int
	Height int
	Values []float32
}

// NewSaliencyMap создаёт нулевую карту.
func NewSaliencyMap(width, height int) *SaliencyMap {
	return &SaliencyMap{
		Width:  width,
		Height: height,
		Values: make([]float32, width*height),
	}
}

// Validate проверяет геометрию карты.
func (m *SaliencyMap) Validate() error {
	if m == nil {
		return fmt.Errorf("saliency map is nil")
	}
	if len(m.Values) != m.Width*m.Height {
		return fmt.Errorf("saliency map has %d values, want %d", len(m.Values), m.Width*m.Height)
	}
	return nil
}

// Quantize переводит карту в 8 бит: uint8(v*255) с отсечением по краям диапазона.
func (m *SaliencyMap) Quantize() []uint8 {
	out := make([]uint8, len(m.Values))
	for i, v := range m.Values {
		scaled := v * 255
		switch {
		case scaled != scaled || scaled <= 0: // NaN тоже сюда
			out[i] = 0
		case scaled >= 255:
			out[i] = 255
		default:
			out[i] = uint8(scaled)
		}
	}
	return out
}

// Backprop — модификатор обратного прохода через ReLU.
type Backprop string

const (
	BackpropGuided    Backprop = "guided"    // g*(x>0)*(g>0)
	BackpropRectified Backprop = "rectified" // g*(g>0), deconvnet
	BackpropVanilla   Backprop = "vanilla"   // обычный градиент
)

// ParseBackprop разбирает имя модификатора.
func ParseBackprop(s string) (Backprop, error) {
	switch Backprop(s) {
	case BackpropGuided, BackpropRectified, BackpropVanilla:
		return Backprop(s), nil
	case "":
		return BackpropGuided, nil
	}
	return "", fmt.Errorf("unknown backprop modifier %q", s)
}
