package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"saliency-viz/internal/domain/entity"
)

// Recorder собирает метрики рендера в собственный реестр.
type Recorder struct {
	registry *prometheus.Registry

	FramesRendered prometheus.Counter
	RecordFailures prometheus.Counter
	FrameDuration  prometheus.Histogram
	RenderDuration prometheus.Histogram
	RunsTotal      *prometheus.CounterVec
}

// New регистрирует метрики в новом реестре.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		FramesRendered: factory.NewCounter(prometheus.CounterOpts{
			Name: "saliency_frames_rendered_total",
			Help: "Total number of blended frames written to the output video",
		}),
		RecordFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "saliency_record_failures_total",
			Help: "Total number of records that failed to render",
		}),
		FrameDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "saliency_frame_duration_seconds",
			Help:    "Time spent computing and writing one frame",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		RenderDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "saliency_render_duration_seconds",
			Help:    "Duration of a whole render run",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "saliency_runs_total",
			Help: "Total number of render runs, by status",
		}, []string{"status"}),
	}
}

// FrameRendered учитывает записанный кадр.
func (r *Recorder) FrameRendered(d time.Duration) {
	r.FramesRendered.Inc()
	r.FrameDuration.Observe(d.Seconds())
}

// RecordFailed учитывает упавшую запись.
func (r *Recorder) RecordFailed() {
	r.RecordFailures.Inc()
}

// RunFinished учитывает завершённый запуск.
func (r *Recorder) RunFinished(result *entity.RenderResult, d time.Duration) {
	r.RenderDuration.Observe(d.Seconds())
	r.RunsTotal.WithLabelValues(Status(result)).Inc()
}

// Status возвращает метку итога запуска.
func Status(result *entity.RenderResult) string {
	switch {
	case result.Err != nil:
		return "failed"
	case result.Interrupted:
		return "interrupted"
	default:
		return "completed"
	}
}

// WriteTextfile сохраняет метрики в формате textfile-коллектора node_exporter.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
