package ai

import (
	"fmt"
	"image"

	"roadstream/internal/config"
	"roadstream/internal/detect"

	"gocv.io/x/gocv"
)

// Forwarder runs the network on a prepared blob. *Model implements it.
type Forwarder interface {
	Forward(blob gocv.Mat) ([][]float32, error)
	Labels() []string
}

// Engine maps a working-resolution frame to the detections that survive
// thresholding and non-max suppression.
type Engine struct {
	net       Forwarder
	inputSize int
	threshold float32
	nms       detect.Suppressor
}

// NewEngine builds an Engine over a shared network.
func NewEngine(net Forwarder, cfg config.DetectionConfig) *Engine {
	return &Engine{
		net:       net,
		inputSize: cfg.InputSize,
		threshold: float32(cfg.ConfThreshold),
		nms:       detect.NewSuppressor(float32(cfg.ConfThreshold), cfg.NMSThreshold),
	}
}

// Detect runs one inference pass over working. Returned boxes are in
// working pixels and clamped to its bounds; boxes with nothing left inside
// the frame are dropped.
func (e *Engine) Detect(working gocv.Mat) (detect.Result, error) {
	if working.Empty() {
		return nil, fmt.Errorf("%w: empty frame", ErrInference)
	}
	if working.Channels() != 3 {
		return nil, fmt.Errorf("%w: expected 3 channels, got %d", ErrInference, working.Channels())
	}

	blob := gocv.BlobFromImage(
		working,
		1.0/255.0,
		image.Pt(e.inputSize, e.inputSize),
		gocv.NewScalar(0, 0, 0, 0),
		true,
		false,
	)
	defer blob.Close()

	rows, err := e.net.Forward(blob)
	if err != nil {
		return nil, err
	}

	width, height := working.Cols(), working.Rows()
	candidates := detect.Decode(rows, width, height, e.threshold, e.net.Labels())
	kept := e.nms.Apply(candidates)
	result := kept[:0]
	for _, d := range kept {
		d.Box = d.Box.Clamp(width, height)
		if d.Box.Area() == 0 {
			continue
		}
		result = append(result, d)
	}
	return result, nil
}
