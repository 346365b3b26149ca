package ai

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"roadstream/internal/config"
	"roadstream/internal/detect"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type fakeNet struct {
	rows   [][]float32
	err    error
	calls  int
	labels []string
}

func (f *fakeNet) Forward(blob gocv.Mat) ([][]float32, error) {
	f.calls++
	return f.rows, f.err
}

func (f *fakeNet) Labels() []string { return f.labels }

func blackFrame(w, h int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), h, w, gocv.MatTypeCV8UC3)
}

func detectionConfig() config.DetectionConfig {
	return config.Default().Detection
}

func TestEngine_DecodesSuppressesAndClamps(t *testing.T) {
	net := &fakeNet{
		labels: []string{"pothole"},
		rows: [][]float32{
			{0.5, 0.5, 0.25, 0.2, 1, 0.9},
			{0.51, 0.5, 0.25, 0.2, 1, 0.6},
			{0.99, 0.99, 0.2, 0.2, 1, 0.8},
			{0.1, 0.1, 0.1, 0.1, 1, 0.1},
		},
	}
	frame := blackFrame(800, 450)
	defer frame.Close()

	res, err := NewEngine(net, detectionConfig()).Detect(frame)

	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, 1, net.calls)
	assert.Equal(t, detect.Box{X: 300, Y: 180, W: 200, H: 90}, res[0].Box)
	assert.Equal(t, "pothole", res[0].Label)
	for _, d := range res {
		assert.LessOrEqual(t, d.Box.X+d.Box.W, 800)
		assert.LessOrEqual(t, d.Box.Y+d.Box.H, 450)
	}
}

func TestEngine_DropsBoxesOutsideFrame(t *testing.T) {
	net := &fakeNet{
		labels: []string{"pothole"},
		rows: [][]float32{
			{1.5, 1.5, 0.1, 0.1, 1, 0.9},
			{0.5, 0.5, 0, 0.2, 1, 0.8},
			{0.25, 0.25, 0.1, 0.1, 1, 0.7},
		},
	}
	frame := blackFrame(800, 450)
	defer frame.Close()

	res, err := NewEngine(net, detectionConfig()).Detect(frame)

	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, detect.Box{X: 160, Y: 89, W: 80, H: 45}, res[0].Box)
}

func TestEngine_ForwardError(t *testing.T) {
	net := &fakeNet{err: ErrModelClosed}
	frame := blackFrame(800, 450)
	defer frame.Close()

	res, err := NewEngine(net, detectionConfig()).Detect(frame)

	assert.ErrorIs(t, err, ErrModelClosed)
	assert.Empty(t, res)
}

func TestEngine_RejectsBadFrames(t *testing.T) {
	net := &fakeNet{}
	e := NewEngine(net, detectionConfig())

	empty := gocv.NewMat()
	defer empty.Close()
	_, err := e.Detect(empty)
	assert.ErrorIs(t, err, ErrInference)

	gray := gocv.NewMatWithSize(450, 800, gocv.MatTypeCV8UC1)
	defer gray.Close()
	_, err = e.Detect(gray)
	assert.True(t, errors.Is(err, ErrInference))

	assert.Zero(t, net.calls)
}

func TestRenderer_DrawsBoxAndStrip(t *testing.T) {
	img := blackFrame(800, 450)
	defer img.Close()
	res := detect.Result{{Box: detect.Box{X: 100, Y: 100, W: 50, H: 50}, Confidence: 0.9, Label: "pothole"}}

	require.NoError(t, NewRenderer().Draw(&img, res))

	outline := img.GetVecbAt(125, 98)
	assert.Equal(t, uint8(255), outline[2])
	assert.Equal(t, uint8(0), outline[1])
	assert.Equal(t, uint8(0), outline[0])

	strip := img.GetVecbAt(90, 215)
	assert.Equal(t, uint8(255), strip[2])

	inside := img.GetVecbAt(125, 125)
	assert.Equal(t, gocv.Vecb{0, 0, 0}, inside)

	assert.Equal(t, detect.Box{X: 100, Y: 100, W: 50, H: 50}, res[0].Box)
}

func TestRenderer_EmptyResultLeavesFrame(t *testing.T) {
	img := blackFrame(320, 240)
	defer img.Close()

	require.NoError(t, NewRenderer().Draw(&img, nil))

	for _, b := range img.ToBytes() {
		require.Zero(t, b)
	}
}

func TestRenderer_DrawFPS(t *testing.T) {
	img := blackFrame(320, 240)
	defer img.Close()

	require.NoError(t, NewRenderer().DrawFPS(&img, 30))

	gray := gocv.NewMat()
	defer gray.Close()
	require.NoError(t, gocv.CvtColor(img, &gray, gocv.ColorBGRToGray))
	assert.Positive(t, gocv.CountNonZero(gray))
}

func TestFPSClock(t *testing.T) {
	var c FPSClock
	t0 := time.Unix(100, 0)

	assert.Equal(t, 20, c.Tick(t0, t0.Add(50*time.Millisecond)))
	assert.Equal(t, 25, c.Tick(t0.Add(40*time.Millisecond), t0.Add(60*time.Millisecond)))
	assert.Equal(t, 3, c.Tick(t0.Add(340*time.Millisecond), t0.Add(400*time.Millisecond)))
	assert.Equal(t, 0, c.Tick(t0.Add(340*time.Millisecond), t0.Add(400*time.Millisecond)))
}

func TestFPSClock_FirstFrameZeroDuration(t *testing.T) {
	var c FPSClock
	now := time.Now()

	assert.Equal(t, 0, c.Tick(now, now))
}

func TestReadLabels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "classes.names")
	require.NoError(t, os.WriteFile(path, []byte("pothole\n\n crack \n"), 0o644))

	labels, err := ReadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"pothole", "crack"}, labels)

	labels, err = ReadLabels(filepath.Join(dir, "missing.names"))
	require.NoError(t, err)
	assert.Equal(t, DefaultLabels, labels)

	labels, err = ReadLabels("")
	require.NoError(t, err)
	assert.Equal(t, DefaultLabels, labels)
}
