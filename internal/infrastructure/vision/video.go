//go:build gocv
// +build gocv

package vision

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"

	"saliency-viz/internal/domain/entity"
	"saliency-viz/internal/domain/port"
)

// VideoWriterFactory открывает видеофайлы через OpenCV.
type VideoWriterFactory struct {
	Codec string
}

// NewVideoWriterFactory создаёт фабрику для кодека с fourcc codec.
func NewVideoWriterFactory(codec string) *VideoWriterFactory {
	return &VideoWriterFactory{Codec: codec}
}

// Open открывает цветное видео размера width x height.
func (f *VideoWriterFactory) Open(path string, fps float64, width, height int) (port.VideoSink, error) {
	vw, err := gocv.VideoWriterFile(path, f.Codec, fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("open video writer %s: %w", path, err)
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("open video writer %s: codec %s is not available", path, f.Codec)
	}
	return &VideoSink{vw: vw, width: width, height: height}, nil
}

// VideoSink пишет кадры в открытый VideoWriter.
type VideoSink struct {
	vw     *gocv.VideoWriter
	width  int
	height int
}

// Write добавляет кадр; кадры другого размера масштабируются.
func (s *VideoSink) Write(frame *entity.Frame) error {
	if s.vw == nil {
		return errors.New("video writer is closed")
	}
	mat, err := frameToMat(frame)
	if err != nil {
		return err
	}
	defer mat.Close()

	fitted, resized := fitSize(mat, s.width, s.height)
	if resized {
		defer fitted.Close()
	}
	return s.vw.Write(fitted)
}

// Close закрывает файл. Повторный вызов ничего не делает.
func (s *VideoSink) Close() error {
	if s.vw == nil {
		return nil
	}
	err := s.vw.Close()
	s.vw = nil
	return err
}
