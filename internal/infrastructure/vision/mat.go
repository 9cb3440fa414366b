//go:build gocv
// +build gocv

package vision

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"saliency-viz/internal/domain/entity"
)

// frameToMat копирует кадр в новый gocv.Mat, которым владеет вызывающий.
func frameToMat(frame *entity.Frame) (gocv.Mat, error) {
	if err := frame.Validate(); err != nil {
		return gocv.NewMat(), err
	}

	var typ gocv.MatType
	switch frame.Channels {
	case 1:
		typ = gocv.MatTypeCV8UC1
	case 3:
		typ = gocv.MatTypeCV8UC3
	default:
		return gocv.NewMat(), fmt.Errorf("unsupported channel count %d", frame.Channels)
	}

	view, err := gocv.NewMatFromBytes(frame.Height, frame.Width, typ, frame.Pix)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("wrap frame: %w", err)
	}
	defer view.Close()

	// NewMatFromBytes не копирует буфер, поэтому отдаём копию.
	return view.Clone(), nil
}

// matToFrame копирует пиксели Mat в кадр.
func matToFrame(mat gocv.Mat) (*entity.Frame, error) {
	if mat.Empty() {
		return nil, errors.New("empty image")
	}
	frame := &entity.Frame{
		Width:    mat.Cols(),
		Height:   mat.Rows(),
		Channels: mat.Channels(),
		Pix:      mat.ToBytes(),
	}
	return frame, frame.Validate()
}

// fitSize приводит Mat к размеру width x height. Возвращает исходный Mat, если
// размер уже совпадает.
func fitSize(mat gocv.Mat, width, height int) (gocv.Mat, bool) {
	if width <= 0 || height <= 0 || (mat.Cols() == width && mat.Rows() == height) {
		return mat, false
	}
	resized := gocv.NewMat()
	gocv.Resize(mat, &resized, image.Pt(width, height), 0, 0, gocv.InterpolationArea)
	return resized, true
}
