package nn

import (
	"fmt"

	"gorgonia.org/gorgonia"

	"saliency-viz/internal/domain/entity"
)

// Activation — функция активации слоя.
type Activation string

const (
	Linear  Activation = "linear"
	ReLU    Activation = "relu"
	Sigmoid Activation = "sigmoid"
	Tanh    Activation = "tanh"
	Softmax Activation = "softmax"
)

// ParseActivation разбирает имя активации в терминах Keras.
func ParseActivation(name string) (Activation, error) {
	switch Activation(name) {
	case "", Linear:
		return Linear, nil
	case ReLU, Sigmoid, Tanh, Softmax:
		return Activation(name), nil
	}
	return "", fmt.Errorf("unsupported activation %q", name)
}

// activate добавляет активацию в граф. Каналы у узлов графа всегда на оси 1.
func activate(x *gorgonia.Node, a Activation, mod entity.Backprop) (*gorgonia.Node, error) {
	switch a {
	case Linear, "":
		return x, nil
	case ReLU:
		return relu(x, mod)
	case Sigmoid:
		return gorgonia.Sigmoid(x)
	case Tanh:
		return gorgonia.Tanh(x)
	case Softmax:
		return gorgonia.SoftMax(x, 1)
	}
	return nil, fmt.Errorf("unsupported activation %q", a)
}
