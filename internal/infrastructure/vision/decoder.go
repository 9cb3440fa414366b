//go:build gocv
// +build gocv

package vision

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"saliency-viz/internal/domain/entity"
)

// Decoder читает кадры с диска в исходном размере: модель получает кадр
// таким, каким он записан в тюбе.
type Decoder struct{}

// NewDecoder создаёт декодер кадров.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode читает изображение в BGR.
func (d *Decoder) Decode(ctx context.Context, path string) (*entity.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat := gocv.IMRead(path, gocv.IMReadColor)
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("failed to decode image %s", path)
	}
	return matToFrame(mat)
}
