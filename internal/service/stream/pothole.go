package stream

import (
	"context"
	"fmt"
	"image"
	"time"

	"roadstream/internal/detect"
	"roadstream/internal/service/ai"
	"roadstream/internal/service/alert"

	"gocv.io/x/gocv"
)

// Detector finds objects in a working-resolution frame. *ai.Engine
// implements it.
type Detector interface {
	Detect(working gocv.Mat) (detect.Result, error)
}

// Annotator draws detections and the frame rate. *ai.Renderer implements it.
type Annotator interface {
	Draw(img *gocv.Mat, res detect.Result) error
	DrawFPS(img *gocv.Mat, fps int) error
}

// DefaultWorkSize is the resolution frames are processed and emitted at.
var DefaultWorkSize = image.Pt(800, 450)

type potholeStage struct {
	detector  Detector
	annotator Annotator
	signal    *alert.Signal
	work      image.Point
	clock     ai.FPSClock
	now       func() time.Time
	scratch   gocv.Mat
}

// NewPothole returns a processor that resizes every frame to work, runs
// the detector, raises signal for alerting frames and draws the result.
// A zero work size uses DefaultWorkSize; a nil signal disables alerts.
func NewPothole(src FrameSource, det Detector, ann Annotator, signal *alert.Signal, work image.Point, opts Options) Processor {
	if work.X <= 0 || work.Y <= 0 {
		work = DefaultWorkSize
	}
	opts = opts.withDefaults()
	st := &potholeStage{
		detector:  det,
		annotator: ann,
		signal:    signal,
		work:      work,
		now:       opts.Now,
		scratch:   gocv.NewMat(),
	}
	return newRunner(KindPothole, src, st, opts)
}

// passThrough emits the frame at the working size, as a successful pass
// would.
func (s *potholeStage) passThrough(frame gocv.Mat, out *gocv.Mat) {
	if err := gocv.Resize(frame, out, s.work, 0, 0, gocv.InterpolationArea); err != nil {
		frame.CopyTo(out)
	}
}

func (s *potholeStage) close() {
	s.scratch.Close()
}

func (s *potholeStage) process(ctx context.Context, seq int, frame gocv.Mat, out *gocv.Mat) Outcome {
	start := s.now()

	if err := gocv.Resize(frame, out, s.work, 0, 0, gocv.InterpolationArea); err != nil {
		frame.CopyTo(out)
		return Outcome{Err: fmt.Errorf("%w: resize: %v", ErrProcessing, err)}
	}

	res, err := s.detector.Detect(*out)
	if err != nil {
		return Outcome{Err: err}
	}

	alerted := false
	if s.signal != nil {
		source := image.Pt(frame.Cols(), frame.Rows())
		alerted = s.signal.Observe(ctx, seq, res, s.work, source)
	}

	// draw on a copy so a failed draw leaves out clean
	out.CopyTo(&s.scratch)
	if err := s.annotator.Draw(&s.scratch, res); err != nil {
		return Outcome{Detections: len(res), Alerted: alerted, Err: err}
	}
	fps := s.clock.Tick(start, s.now())
	if err := s.annotator.DrawFPS(&s.scratch, fps); err != nil {
		return Outcome{Detections: len(res), Alerted: alerted, Err: err}
	}
	s.scratch.CopyTo(out)

	return Outcome{Annotated: true, Detections: len(res), Alerted: alerted}
}
