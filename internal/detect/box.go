// Package detect holds the model-independent half of object detection:
// decoding raw YOLO output rows into candidates and suppressing overlaps.
package detect

import (
	"image"
	"math"
)

// Box is an axis-aligned rectangle given by its top-left corner and size,
// in pixels of the frame it was decoded against.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Detection is a single candidate or surviving detection.
type Detection struct {
	Box        Box     `json:"box"`
	Confidence float32 `json:"confidence"`
	ClassID    int     `json:"class_id"`
	Label      string  `json:"label"`
}

// Result is the set of detections that survived suppression for one frame.
type Result []Detection

// Has reports whether any detection carries the given label.
func (r Result) Has(label string) bool {
	for _, d := range r {
		if d.Label == label {
			return true
		}
	}
	return false
}

// Area returns the box area, zero for degenerate boxes.
func (b Box) Area() int {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// Rect converts the box into an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// IoU returns intersection over union of a and b.
func IoU(a, b Box) float64 {
	inter := a.Rect().Intersect(b.Rect())
	ia := inter.Dx() * inter.Dy()
	if ia <= 0 {
		return 0
	}
	union := a.Area() + b.Area() - ia
	if union <= 0 {
		return 0
	}
	return float64(ia) / float64(union)
}

// Clamp trims the box to a width x height frame. A box lying entirely
// outside the frame collapses to zero size at the nearest edge.
func (b Box) Clamp(width, height int) Box {
	r := b.Rect().Intersect(image.Rect(0, 0, width, height))
	if r.Empty() {
		x := min(max(b.X, 0), width)
		y := min(max(b.Y, 0), height)
		return Box{X: x, Y: y}
	}
	return Box{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Scale maps the box from a from-sized frame into a to-sized frame,
// rounding to the nearest pixel.
func (b Box) Scale(from, to image.Point) Box {
	if from.X <= 0 || from.Y <= 0 || to.X <= 0 || to.Y <= 0 || from == to {
		return b
	}
	sx := float64(to.X) / float64(from.X)
	sy := float64(to.Y) / float64(from.Y)
	return Box{
		X: int(math.Round(float64(b.X) * sx)),
		Y: int(math.Round(float64(b.Y) * sy)),
		W: int(math.Round(float64(b.W) * sx)),
		H: int(math.Round(float64(b.H) * sy)),
	}
}
