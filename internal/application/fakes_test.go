package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"saliency-viz/internal/domain/entity"
	"saliency-viz/internal/domain/port"
)

type fakeModel struct {
	saliencyCalls int
	failAt        int // индекс записи, на которой Saliency падает
	panicAt       int
	closed        int
}

func (m *fakeModel) Close() error {
	m.closed++
	return nil
}

func (m *fakeModel) Saliency(ctx context.Context, frame *entity.Frame) (*entity.SaliencyMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.saliencyCalls++
	idx := int(frame.Pix[0])
	if m.failAt != 0 && idx == m.failAt {
		return nil, errors.New("gradient exploded")
	}
	if m.panicAt != 0 && idx == m.panicAt {
		var values []float32
		_ = values[idx]
	}
	return entity.NewSaliencyMap(frame.Width, frame.Height), nil
}

func (m *fakeModel) Predict(ctx context.Context, frame *entity.Frame) ([]float32, error) {
	return []float32{0.25}, nil
}

func (m *fakeModel) OutputLayer() string { return "angle_out" }

type fakeLoader struct {
	model *fakeModel
	err   error
	calls int
}

func (l *fakeLoader) Load(ctx context.Context, path string) (port.SaliencyModel, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.model, nil
}

// fakeDecoder кодирует индекс записи из имени файла "<N>.jpg" в первый байт кадра.
type fakeDecoder struct {
	paths []string
	// onDecode вызывается перед декодированием с номером вызова
	onDecode func(n int)
}

func (d *fakeDecoder) Decode(ctx context.Context, path string) (*entity.Frame, error) {
	d.paths = append(d.paths, path)
	if d.onDecode != nil {
		d.onDecode(len(d.paths))
	}
	idx, err := strconv.Atoi(strings.TrimSuffix(filepath.Base(path), ".jpg"))
	if err != nil {
		return nil, err
	}
	return entity.NewUniformFrame(4, 2, 3, uint8(idx)), nil
}

func (d *fakeDecoder) order() []int {
	var out []int
	for _, p := range d.paths {
		idx, _ := strconv.Atoi(strings.TrimSuffix(filepath.Base(p), ".jpg"))
		out = append(out, idx)
	}
	return out
}

type fakeCompositor struct {
	annotations []string
}

func (c *fakeCompositor) Compose(frame *entity.Frame, saliency *entity.SaliencyMap) (*entity.Frame, error) {
	return frame.Clone(), nil
}

func (c *fakeCompositor) Annotate(frame *entity.Frame, text string) (*entity.Frame, error) {
	c.annotations = append(c.annotations, text)
	return frame, nil
}

type fakeSink struct {
	frames []*entity.Frame
	closed int
}

func (s *fakeSink) Write(frame *entity.Frame) error {
	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeSink) Close() error {
	s.closed++
	return nil
}

type fakeSinks struct {
	sink   *fakeSink
	opened int
	path   string
	fps    float64
	w, h   int
}

func (f *fakeSinks) Open(path string, fps float64, width, height int) (port.VideoSink, error) {
	f.opened++
	f.path, f.fps, f.w, f.h = path, fps, width, height
	return f.sink, nil
}

type fakePreview struct {
	shown  int
	stopAt int
	closed int
}

func (p *fakePreview) Show(frame *entity.Frame) (bool, error) {
	p.shown++
	return p.stopAt != 0 && p.shown == p.stopAt, nil
}

func (p *fakePreview) Close() error {
	p.closed++
	return nil
}

type fakePublisher struct {
	published []*entity.RenderResult
}

func (p *fakePublisher) Publish(ctx context.Context, result *entity.RenderResult) error {
	p.published = append(p.published, result)
	return nil
}

type fakeMetrics struct {
	frames   int
	failures int
	runs     int
}

func (m *fakeMetrics) FrameRendered(time.Duration) { m.frames++ }
func (m *fakeMetrics) RecordFailed()               { m.failures++ }
func (m *fakeMetrics) RunFinished(*entity.RenderResult, time.Duration) {
	m.runs++
}

// writeTub создаёт записи record_<i>.json со ссылками на "<i>.jpg".
func writeTub(dir string, indices ...int) error {
	for _, i := range indices {
		body := `{"cam/image_array": "` + strconv.Itoa(i) + `.jpg", "user/angle": 0.0}`
		if err := os.WriteFile(filepath.Join(dir, "record_"+strconv.Itoa(i)+".json"), []byte(body), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func writeModel(dir string) (string, error) {
	path := filepath.Join(dir, "mypilot.json")
	return path, os.WriteFile(path, []byte(`{}`), 0o644)
}

func writeRecordBody(dir string, idx int, body string) error {
	return os.WriteFile(filepath.Join(dir, "record_"+strconv.Itoa(idx)+".json"), []byte(body), 0o644)
}
