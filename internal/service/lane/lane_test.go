package lane

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// roadFrame draws bright lane markings on a dark 800x450 frame.
func roadFrame(t *testing.T) gocv.Mat {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 40, 40, 0), 450, 800, gocv.MatTypeCV8UC3)
	white := color.RGBA{R: 255, G: 255, B: 255}
	require.NoError(t, gocv.Line(&img, image.Pt(400, 240), image.Pt(400, 449), white, 3))
	require.NoError(t, gocv.Line(&img, image.Pt(200, 449), image.Pt(380, 269), white, 3))
	// sky clutter outside the road triangle
	require.NoError(t, gocv.Line(&img, image.Pt(50, 20), image.Pt(750, 20), white, 3))
	return img
}

func TestRegion(t *testing.T) {
	assert.Equal(t, []image.Point{{0, 450}, {400, 225}, {800, 450}}, Region(800, 450))
	assert.Equal(t, []image.Point{{0, 101}, {50, 50}, {101, 101}}, Region(101, 101))
}

func TestMaskRegion_ZeroesOutsideTriangle(t *testing.T) {
	const w, h = 200, 100
	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), h, w, gocv.MatTypeCV8UC1)
	defer src.Close()
	dst := gocv.NewMat()
	defer dst.Close()

	require.NoError(t, MaskRegion(src, &dst, Region(w, h)))

	// inside iff y >= max(h - x*h/w, x*h/w); allow a pixel of rasterisation slack
	const slack = 1.5
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			edge := math.Max(float64(h)-float64(x)*h/w, float64(x)*h/w)
			v := dst.GetUCharAt(y, x)
			switch {
			case float64(y) < edge-slack:
				require.Zerof(t, v, "pixel (%d,%d) outside the triangle survived", x, y)
			case float64(y) > edge+slack:
				require.Equalf(t, uint8(255), v, "pixel (%d,%d) inside the triangle was masked", x, y)
			}
		}
	}
}

func TestProcess_FindsSegmentsInsideRegion(t *testing.T) {
	img := roadFrame(t)
	defer img.Close()
	out := gocv.NewMat()
	defer out.Close()

	segs, err := New(DefaultParams()).Process(img, &out)

	require.NoError(t, err)
	require.NotEmpty(t, segs)
	for _, s := range segs {
		assert.GreaterOrEqual(t, s.Y1, 450/2-2)
		assert.GreaterOrEqual(t, s.Y2, 450/2-2)
	}
	assert.Equal(t, img.Rows(), out.Rows())
	assert.Equal(t, img.Cols(), out.Cols())
	assert.Equal(t, img.Type(), out.Type())
}

func TestProcess_Deterministic(t *testing.T) {
	img := roadFrame(t)
	defer img.Close()
	p := New(DefaultParams())

	first := gocv.NewMat()
	defer first.Close()
	second := gocv.NewMat()
	defer second.Close()

	segs1, err := p.Process(img, &first)
	require.NoError(t, err)
	segs2, err := p.Process(img, &second)
	require.NoError(t, err)

	assert.Equal(t, segs1, segs2)
	assert.Equal(t, first.ToBytes(), second.ToBytes())
}

func TestProcess_BlankFrameDimsOriginal(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(100, 100, 100, 0), 120, 160, gocv.MatTypeCV8UC3)
	defer img.Close()
	out := gocv.NewMat()
	defer out.Close()

	segs, err := New(DefaultParams()).Process(img, &out)

	require.NoError(t, err)
	assert.Empty(t, segs)
	assert.Equal(t, gocv.Vecb{80, 80, 80}, out.GetVecbAt(60, 80))
}

func TestProcess_RejectsBadInput(t *testing.T) {
	p := New(DefaultParams())
	out := gocv.NewMat()
	defer out.Close()

	empty := gocv.NewMat()
	defer empty.Close()
	_, err := p.Process(empty, &out)
	assert.ErrorIs(t, err, ErrProcess)

	gray := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC1)
	defer gray.Close()
	_, err = p.Process(gray, &out)
	assert.ErrorIs(t, err, ErrProcess)
}
