package stream

import (
	"context"

	"roadstream/internal/service/lane"

	"gocv.io/x/gocv"
)

// LaneDetector composites lane lines onto a frame. *lane.Pipeline
// implements it.
type LaneDetector interface {
	Process(src gocv.Mat, dst *gocv.Mat) ([]lane.Segment, error)
}

type laneStage struct {
	pipeline LaneDetector
}

// NewLane returns a processor that runs the lane pipeline on every frame
// at its original resolution.
func NewLane(src FrameSource, pipeline LaneDetector, opts Options) Processor {
	return newRunner(KindLane, src, &laneStage{pipeline: pipeline}, opts)
}

func (s *laneStage) process(_ context.Context, _ int, frame gocv.Mat, out *gocv.Mat) Outcome {
	segments, err := s.pipeline.Process(frame, out)
	if err != nil {
		s.passThrough(frame, out)
		return Outcome{Err: err}
	}
	return Outcome{Annotated: true, Segments: len(segments)}
}

func (s *laneStage) passThrough(frame gocv.Mat, out *gocv.Mat) {
	frame.CopyTo(out)
}

func (s *laneStage) close() {}
