// Package lane finds lane boundary lines with edge detection and a
// probabilistic Hough transform. It keeps no state between frames.
package lane

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"
)

// ErrProcess wraps every failure of a single lane pass.
var ErrProcess = errors.New("lane processing failed")

// Segment is one detected line in frame pixels.
type Segment struct {
	X1, Y1, X2, Y2 int
}

// Params tunes the pipeline.
type Params struct {
	CannyLow      float32
	CannyHigh     float32
	Rho           float32
	Theta         float32
	Threshold     int
	MinLineLength float32
	MaxLineGap    float32
	LineThickness int
	FrameWeight   float64
	LineWeight    float64
	Gamma         float64
}

// DefaultParams returns the tuning used for dash-cam footage.
func DefaultParams() Params {
	return Params{
		CannyLow:      100,
		CannyHigh:     120,
		Rho:           2,
		Theta:         math.Pi / 60,
		Threshold:     160,
		MinLineLength: 40,
		MaxLineGap:    25,
		LineThickness: 5,
		FrameWeight:   0.8,
		LineWeight:    1.0,
		Gamma:         0,
	}
}

var lineColor = color.RGBA{G: 255, A: 0}

// Pipeline runs gray conversion, Canny, region masking, HoughLinesP and
// compositing.
type Pipeline struct {
	params Params
}

// New returns a Pipeline with the given parameters.
func New(p Params) *Pipeline {
	return &Pipeline{params: p}
}

// Process detects lane segments in src and writes src with the segments
// blended on top to dst. src must be a 3-channel BGR frame.
func (p *Pipeline) Process(src gocv.Mat, dst *gocv.Mat) ([]Segment, error) {
	if src.Empty() {
		return nil, fmt.Errorf("%w: empty frame", ErrProcess)
	}
	if src.Channels() != 3 {
		return nil, fmt.Errorf("%w: expected 3 channels, got %d", ErrProcess, src.Channels())
	}

	segments, err := p.Detect(src)
	if err != nil {
		return nil, err
	}

	canvas := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), src.Rows(), src.Cols(), src.Type())
	defer canvas.Close()
	for _, s := range segments {
		if err := gocv.Line(&canvas, image.Pt(s.X1, s.Y1), image.Pt(s.X2, s.Y2), lineColor, p.params.LineThickness); err != nil {
			return nil, fmt.Errorf("%w: draw line: %v", ErrProcess, err)
		}
	}

	if err := gocv.AddWeighted(src, p.params.FrameWeight, canvas, p.params.LineWeight, p.params.Gamma, dst); err != nil {
		return nil, fmt.Errorf("%w: composite: %v", ErrProcess, err)
	}
	return segments, nil
}

// Detect returns the lane segments of src without drawing anything.
func (p *Pipeline) Detect(src gocv.Mat) ([]Segment, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(src, &gray, gocv.ColorBGRToGray); err != nil {
		return nil, fmt.Errorf("%w: grayscale: %v", ErrProcess, err)
	}

	edges := gocv.NewMat()
	defer edges.Close()
	if err := gocv.Canny(gray, &edges, p.params.CannyLow, p.params.CannyHigh); err != nil {
		return nil, fmt.Errorf("%w: canny: %v", ErrProcess, err)
	}

	masked := gocv.NewMat()
	defer masked.Close()
	if err := MaskRegion(edges, &masked, Region(src.Cols(), src.Rows())); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcess, err)
	}

	lines := gocv.NewMat()
	defer lines.Close()
	if err := gocv.HoughLinesPWithParams(masked, &lines, p.params.Rho, p.params.Theta,
		p.params.Threshold, p.params.MinLineLength, p.params.MaxLineGap); err != nil {
		return nil, fmt.Errorf("%w: hough: %v", ErrProcess, err)
	}

	segments := make([]Segment, 0, lines.Rows())
	for i := 0; i < lines.Rows(); i++ {
		v := lines.GetVeciAt(i, 0)
		segments = append(segments, Segment{X1: int(v[0]), Y1: int(v[1]), X2: int(v[2]), Y2: int(v[3])})
	}
	return segments, nil
}
