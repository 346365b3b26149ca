package lane

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var maskColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Region returns the road triangle for a width x height frame: the bottom
// corners and the frame centre.
func Region(width, height int) []image.Point {
	return []image.Point{
		image.Pt(0, height),
		image.Pt(width/2, height/2),
		image.Pt(width, height),
	}
}

// MaskRegion zeroes every pixel of src outside the polygon and writes the
// result to dst. src must be single channel.
func MaskRegion(src gocv.Mat, dst *gocv.Mat, polygon []image.Point) error {
	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), src.Rows(), src.Cols(), src.Type())
	defer mask.Close()

	pv := gocv.NewPointsVectorFromPoints([][]image.Point{polygon})
	defer pv.Close()

	if err := gocv.FillPoly(&mask, pv, maskColor); err != nil {
		return fmt.Errorf("failed to fill region: %w", err)
	}
	if err := gocv.BitwiseAnd(src, mask, dst); err != nil {
		return fmt.Errorf("failed to apply region mask: %w", err)
	}
	return nil
}
