//go:build gocv
// +build gocv

package vision

import (
	"time"

	"gocv.io/x/gocv"

	"saliency-viz/internal/domain/entity"
)

const (
	keyEsc = 27
	keyQ   = 'q'
)

// Window показывает кадры в окне OpenCV.
type Window struct {
	Title string
	Delay time.Duration

	win *gocv.Window
}

// NewWindow создаёт окно предпросмотра; само окно открывается на первом кадре.
func NewWindow(title string, delay time.Duration) *Window {
	return &Window{Title: title, Delay: delay}
}

// Show выводит кадр и ждёт нажатия клавиши не дольше Delay.
// Esc или q означают просьбу остановиться.
func (w *Window) Show(frame *entity.Frame) (bool, error) {
	mat, err := frameToMat(frame)
	if err != nil {
		return false, err
	}
	defer mat.Close()

	if w.win == nil {
		w.win = gocv.NewWindow(w.Title)
	}
	w.win.IMShow(mat)

	delay := int(w.Delay / time.Millisecond)
	if delay < 1 {
		delay = 1
	}
	key := w.win.WaitKey(delay)
	return key == keyEsc || key == keyQ, nil
}

// Close закрывает окно, если оно было открыто.
func (w *Window) Close() error {
	if w.win == nil {
		return nil
	}
	err := w.win.Close()
	w.win = nil
	return err
}
