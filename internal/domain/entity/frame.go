package entity

import (
	"bytes"
	"fmt"
)

// Frame — декодированный кадр камеры в порядке каналов BGR.
type Frame struct {
	Width    int     // ширина в пикселях
	Height   int     // высота в пикселях
	Channels int     // число каналов (3 для цветного кадра)
	Pix      []uint8 // пиксели построчно, каналы чередуются
}

// NewFrame создаёт чёрный кадр заданного размера.
func NewFrame(width, height, channels int) *Frame {
	return &Frame{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}
}

// NewUniformFrame создаёт кадр, все байты которого равны value.
func NewUniformFrame(width, height, channels int, value uint8) *Frame {
	f := NewFrame(width, height, channels)
	for i := range f.Pix {
		f.Pix[i] = value
	}
	return f
}

// Validate проверяет, что размер буфера совпадает с геометрией кадра.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("frame is nil")
	}
	if f.Width <= 0 || f.Height <= 0 || f.Channels <= 0 {
		return fmt.Errorf("invalid frame geometry %dx%dx%d", f.Width, f.Height, f.Channels)
	}
	if len(f.Pix) != f.Width*f.Height*f.Channels {
		return fmt.Errorf("frame buffer has %d bytes, want %d", len(f.Pix), f.Width*f.Height*f.Channels)
	}
	return nil
}

// At возвращает значение канала c пикселя (x, y).
func (f *Frame) At(x, y, c int) uint8 {
	return f.Pix[(y*f.Width+x)*f.Channels+c]
}

// Clone возвращает независимую копию кадра.
func (f *Frame) Clone() *Frame {
	pix := make([]uint8, len(f.Pix))
	copy(pix, f.Pix)
	return &Frame{Width: f.Width, Height: f.Height, Channels: f.Channels, Pix: pix}
}

// Equal сравнивает геометрию и содержимое кадров.
func (f *Frame) Equal(other *Frame) bool {
	if f == nil || other == nil {
		return f == other
	}
	return f.Width == other.Width &&
		f.Height == other.Height &&
		f.Channels == other.Channels &&
		bytes.Equal(f.Pix, other.Pix)
}
