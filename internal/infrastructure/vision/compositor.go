//go:build gocv
// +build gocv

package vision

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"saliency-viz/internal/domain/entity"
)

// Compositor раскрашивает карту значимости палитрой jet и смешивает её с кадром.
type Compositor struct {
	// Blend задаёт вес исходного кадра, карта получает 1-Blend
	Blend float64
}

// NewCompositor создаёт компоновщик с весом кадра blend.
func NewCompositor(blend float64) *Compositor {
	return &Compositor{Blend: blend}
}

// Compose возвращает blend*frame + (1-blend)*jet(saliency) с насыщением до 8 бит.
func (c *Compositor) Compose(frame *entity.Frame, saliency *entity.SaliencyMap) (*entity.Frame, error) {
	if err := saliency.Validate(); err != nil {
		return nil, err
	}
	if frame.Width != saliency.Width || frame.Height != saliency.Height {
		return nil, fmt.Errorf("saliency map %dx%d does not match frame %dx%d",
			saliency.Width, saliency.Height, frame.Width, frame.Height)
	}
	if frame.Channels != 3 {
		return nil, fmt.Errorf("blending needs a 3-channel frame, got %d", frame.Channels)
	}

	src, err := frameToMat(frame)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	gray, err := frameToMat(&entity.Frame{
		Width:    saliency.Width,
		Height:   saliency.Height,
		Channels: 1,
		Pix:      saliency.Quantize(),
	})
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	heat := gocv.NewMat()
	defer heat.Close()
	gocv.ApplyColorMap(gray, &heat, gocv.ColormapJet)

	blended := gocv.NewMat()
	defer blended.Close()
	gocv.AddWeighted(src, c.Blend, heat, 1-c.Blend, 0, &blended)

	return matToFrame(blended)
}

// Annotate печатает текст в левом верхнем углу кадра.
func (c *Compositor) Annotate(frame *entity.Frame, text string) (*entity.Frame, error) {
	mat, err := frameToMat(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	blue := color.RGBA{B: 255, A: 255}
	gocv.PutText(&mat, text, image.Pt(20, 40), gocv.FontHersheySimplex, 0.8, blue, 2)

	return matToFrame(mat)
}
