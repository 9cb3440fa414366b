//go:build gocv
// +build gocv

package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"saliency-viz/internal/domain/entity"
	"saliency-viz/internal/domain/port"
	"saliency-viz/internal/infrastructure/nn"
	"saliency-viz/internal/infrastructure/storage"
	"saliency-viz/internal/infrastructure/vision"
)

func TestRender_GrayFramesWithZeroGradient(t *testing.T) {
	const width, height = 240, 100
	dir := t.TempDir()

	gray := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 128, 128, 0), height, width, gocv.MatTypeCV8UC3)
	defer gray.Close()
	for i := 1; i <= 3; i++ {
		name := strconv.Itoa(i) + "_cam-image_array_.png"
		require.True(t, gocv.IMWrite(filepath.Join(dir, name), gray))
		require.NoError(t, writeRecordBody(dir, i, `{"cam/image_array": "`+name+`"}`))
	}

	art := nn.Artifact{
		Name:       "zero",
		InputShape: []int{height, width, 3},
		Layers: []nn.LayerSpec{
			{Name: "flattened", Type: "flatten"},
			{Name: "angle_out", Type: "dense", Units: 1, Activation: "tanh", Kernel: make([]float32, width*height*3)},
		},
	}
	data, err := json.Marshal(art)
	require.NoError(t, err)
	modelPath := filepath.Join(t.TempDir(), "zero.json")
	require.NoError(t, os.WriteFile(modelPath, data, 0o644))

	sink := &fakeSink{}
	svc := NewRenderService(RenderDeps{
		Loader: nn.NewLoader("angle_out", entity.BackpropGuided, nil, nil),
		Tub: func(dir string) port.RecordRepository {
			return storage.NewTubRepository(dir, "", nil)
		},
		Decoder:    vision.NewDecoder(),
		Compositor: vision.NewCompositor(0.5),
		Sinks:      &fakeSinks{sink: sink},
	}, RenderOptions{Width: width, Height: height, FPS: 20}, zap.NewNop())

	res, err := svc.Render(context.Background(), RenderRequest{
		TubPath: dir, ModelPath: modelPath, Output: "output.avi", Headless: true,
	})
	require.NoError(t, err)
	require.NoError(t, res.Err)
	require.Equal(t, 3, res.Rendered)
	require.Len(t, sink.frames, 3)
	require.Equal(t, 1, sink.closed)

	zero := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 1, 1, gocv.MatTypeCV8UC1)
	defer zero.Close()
	heat := gocv.NewMat()
	defer heat.Close()
	gocv.ApplyColorMap(zero, &heat, gocv.ColormapJet)
	jet := heat.ToBytes()
	require.Equal(t, []byte{128, 0, 0}, jet[:3])

	// 0.5*128 + 0.5*jet(0) = (128, 64, 64) в BGR, без погрешности округления
	want := []uint8{128, 64, 64}

	for _, f := range sink.frames {
		require.Equal(t, width, f.Width)
		require.Equal(t, height, f.Height)
		for y := 0; y < height; y += 33 {
			for x := 0; x < width; x += 47 {
				for c := 0; c < 3; c++ {
					require.Equal(t, want[c], f.At(x, y, c))
				}
			}
		}
	}
}
