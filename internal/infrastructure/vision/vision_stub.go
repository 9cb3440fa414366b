//go:build !gocv
// +build !gocv

package vision

import (
	"context"
	"errors"
	"time"

	"saliency-viz/internal/domain/entity"
	"saliency-viz/internal/domain/port"
)

var errNoGoCV = errors.New("gocv build tag is not enabled")

// Decoder без OpenCV всегда возвращает ошибку.
type Decoder struct{}

// NewDecoder создаёт декодер-заглушку.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode возвращает ошибку, если сборка без тега gocv.
func (d *Decoder) Decode(ctx context.Context, path string) (*entity.Frame, error) {
	_ = ctx
	_ = path
	return nil, errNoGoCV
}

// Compositor без OpenCV.
type Compositor struct {
	Blend float64
}

// NewCompositor создаёт компоновщик-заглушку.
func NewCompositor(blend float64) *Compositor {
	return &Compositor{Blend: blend}
}

// Compose возвращает ошибку, если сборка без тега gocv.
func (c *Compositor) Compose(frame *entity.Frame, saliency *entity.SaliencyMap) (*entity.Frame, error) {
	_ = frame
	_ = saliency
	return nil, errNoGoCV
}

// Annotate возвращает ошибку, если сборка без тега gocv.
func (c *Compositor) Annotate(frame *entity.Frame, text string) (*entity.Frame, error) {
	_ = frame
	_ = text
	return nil, errNoGoCV
}

// VideoWriterFactory без OpenCV.
type VideoWriterFactory struct {
	Codec string
}

// NewVideoWriterFactory создаёт фабрику-заглушку.
func NewVideoWriterFactory(codec string) *VideoWriterFactory {
	return &VideoWriterFactory{Codec: codec}
}

// Open возвращает ошибку, если сборка без тега gocv.
func (f *VideoWriterFactory) Open(path string, fps float64, width, height int) (port.VideoSink, error) {
	_, _, _, _ = path, fps, width, height
	return nil, errNoGoCV
}

// Window без OpenCV.
type Window struct {
	Title string
	Delay time.Duration
}

// NewWindow создаёт окно-заглушку.
func NewWindow(title string, delay time.Duration) *Window {
	return &Window{Title: title, Delay: delay}
}

// Show возвращает ошибку, если сборка без тега gocv.
func (w *Window) Show(frame *entity.Frame) (bool, error) {
	_ = frame
	return false, errNoGoCV
}

// Close ничего не делает.
func (w *Window) Close() error {
	return nil
}
