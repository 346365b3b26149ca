package ai

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"roadstream/internal/detect"

	"gocv.io/x/gocv"
)

// filled is the OpenCV thickness value for a filled shape.
const filled = -1

var (
	boxColor   = color.RGBA{R: 255, A: 0}
	labelColor = color.RGBA{R: 255, G: 255, B: 255, A: 0}
	fpsColor   = color.RGBA{R: 255, G: 255, B: 55, A: 0}
)

// Renderer draws detections and the FPS overlay onto frames.
type Renderer struct {
	font gocv.HersheyFont
}

// NewRenderer returns a Renderer using the small complex Hershey font.
func NewRenderer() *Renderer {
	return &Renderer{font: gocv.FontHersheyComplexSmall}
}

// Draw outlines each detection, adds a filled label strip above it and
// prints "<label> <confidence>" inside the strip. res is not modified.
func (r *Renderer) Draw(img *gocv.Mat, res detect.Result) error {
	for _, d := range res {
		x, y, w, h := d.Box.X, d.Box.Y, d.Box.W, d.Box.H

		if err := gocv.Rectangle(img, image.Rect(x-2, y-2, x+w+2, y+h+2), boxColor, 2); err != nil {
			return fmt.Errorf("failed to draw box: %w", err)
		}
		if err := gocv.Rectangle(img, image.Rect(x-2, y-2, x+120, y-18), boxColor, filled); err != nil {
			return fmt.Errorf("failed to draw label strip: %w", err)
		}
		text := fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
		if err := gocv.PutText(img, text, image.Pt(x, y-7), r.font, 0.6, labelColor, 1); err != nil {
			return fmt.Errorf("failed to draw label: %w", err)
		}
	}
	return nil
}

// DrawFPS prints the frame rate in the top-left corner.
func (r *Renderer) DrawFPS(img *gocv.Mat, fps int) error {
	if err := gocv.PutText(img, fmt.Sprintf("FPS: %d", fps), image.Pt(24, 30), r.font, 1.4, fpsColor, 2); err != nil {
		return fmt.Errorf("failed to draw fps: %w", err)
	}
	return nil
}

// FPSClock turns per-frame start times into an instantaneous frame rate.
// Each stream owns its own clock.
type FPSClock struct {
	prev time.Time
}

// Tick records the start of a frame and returns round(1/(start-prevStart)).
// The first frame has no predecessor and uses its own elapsed processing
// time, start to now. A zero or negative interval yields 0.
func (c *FPSClock) Tick(start, now time.Time) int {
	var delta time.Duration
	if c.prev.IsZero() {
		delta = now.Sub(start)
	} else {
		delta = start.Sub(c.prev)
	}
	c.prev = start

	if delta <= 0 {
		return 0
	}
	return int(math.Round(1 / delta.Seconds()))
}
