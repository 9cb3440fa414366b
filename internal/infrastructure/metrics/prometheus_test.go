package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"saliency-viz/internal/domain/entity"
)

func TestRecorder_Counts(t *testing.T) {
	r := New()
	r.FrameRendered(10 * time.Millisecond)
	r.FrameRendered(20 * time.Millisecond)
	r.RecordFailed()
	r.RunFinished(&entity.RenderResult{Err: errors.New("boom")}, time.Second)
	r.RunFinished(&entity.RenderResult{Interrupted: true}, time.Second)

	require.Equal(t, 2.0, testutil.ToFloat64(r.FramesRendered))
	require.Equal(t, 1.0, testutil.ToFloat64(r.RecordFailures))
	require.Equal(t, 1.0, testutil.ToFloat64(r.RunsTotal.WithLabelValues("failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.RunsTotal.WithLabelValues("interrupted")))
	require.Equal(t, 0.0, testutil.ToFloat64(r.RunsTotal.WithLabelValues("completed")))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.FrameRendered(time.Millisecond)

	path := filepath.Join(t.TempDir(), "saliency.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), "saliency_frames_rendered_total 1"))
}
