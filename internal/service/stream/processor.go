// Package stream turns a video file into a lazily produced sequence of
// encoded, annotated frames.
package stream

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"roadstream/internal/video"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

var (
	// ErrEnded is returned by Next once the source is exhausted or the
	// processor has been closed.
	ErrEnded = errors.New("stream ended")
	// ErrProcessing wraps a recovered failure inside a pipeline stage.
	ErrProcessing = errors.New("frame processing failed")
)

// FrameSource yields decoded frames in order. Next returns
// video.ErrEndOfStream when exhausted. *video.FileSource implements it.
type FrameSource interface {
	Next(dst *gocv.Mat) error
	Close() error
}

// EncodedFrame is one element of the output sequence.
type EncodedFrame struct {
	Seq         int
	Data        []byte
	ContentType string
	Annotated   bool
	Detections  int
	Segments    int
	Alerted     bool
	SourceSize  image.Point
	Size        image.Point
}

// Processor produces encoded frames one at a time. Implementations are not
// safe for concurrent use and cannot be restarted: once Ended, open a new
// one.
type Processor interface {
	ID() string
	Kind() Kind
	State() State
	Next(ctx context.Context) (EncodedFrame, error)
	Close() error
}

// Observer receives per-stream counters. See monitor.Metrics.
type Observer interface {
	StreamOpened(kind string)
	StreamClosed(kind string)
	FrameEmitted(kind string, took time.Duration)
	ProcessingError(kind string)
	EncodeError(kind string)
	Alert(kind string)
}

type nopObserver struct{}

func (nopObserver) StreamOpened(string) {}
func (nopObserver) StreamClosed(string) {}
func (nopObserver) FrameEmitted(string, time.Duration) {}
func (nopObserver) ProcessingError(string) {}
func (nopObserver) EncodeError(string) {}
func (nopObserver) Alert(string) {}

// Options are shared by both pipeline kinds. Zero values pick defaults.
// Source describes the container and is only logged.
type Options struct {
	ID       string
	Video    string
	Source   video.Info
	Encoder  Encoder
	Logger   *zap.Logger
	Observer Observer
	Now      func() time.Time
}

func (o Options) withDefaults() Options {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Encoder == nil {
		o.Encoder = JPEGEncoder{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Outcome is the explicit result of one stage pass. On error the stage
// leaves the pass-through frame in its output.
type Outcome struct {
	Annotated  bool
	Detections int
	Segments   int
	Alerted    bool
	Err        error
}

// stage is the kind-specific part of the frame loop. passThrough writes
// the unannotated frame a failed pass emits.
type stage interface {
	process(ctx context.Context, seq int, frame gocv.Mat, out *gocv.Mat) Outcome
	passThrough(frame gocv.Mat, out *gocv.Mat)
	close()
}

// runner owns the source, the frame buffers and the state machine; both
// kinds share it.
type runner struct {
	kind  Kind
	opts  Options
	src   FrameSource
	stage stage
	log   *zap.Logger

	frame gocv.Mat
	out   gocv.Mat
	state State
	seq   int

	closeOnce sync.Once
	closeErr  error
}

func newRunner(kind Kind, src FrameSource, st stage, opts Options) *runner {
	opts = opts.withDefaults()
	r := &runner{
		kind:  kind,
		opts:  opts,
		src:   src,
		stage: st,
		log:   opts.Logger.With(zap.String("stream", opts.ID), zap.String("kind", string(kind)), zap.String("video", opts.Video)),
		frame: gocv.NewMat(),
		out:   gocv.NewMat(),
		state: Idle,
	}
	opts.Observer.StreamOpened(string(kind))
	r.log.Info("stream opened",
		zap.Int("width", opts.Source.Width),
		zap.Int("height", opts.Source.Height),
		zap.Float64("fps", opts.Source.FPS),
		zap.Int("frame_count", opts.Source.FrameCount))
	return r
}

func (r *runner) ID() string { return r.opts.ID }
func (r *runner) Kind() Kind { return r.kind }
func (r *runner) State() State { return r.state }

// Next performs read, process, encode and emit for one frame. Frames that
// fail to encode are skipped. It returns ErrEnded when the source is
// exhausted and ctx.Err() when the consumer has gone away.
func (r *runner) Next(ctx context.Context) (EncodedFrame, error) {
	for {
		if r.state == Ended {
			return EncodedFrame{}, ErrEnded
		}
		if err := ctx.Err(); err != nil {
			r.log.Info("stream cancelled", zap.Int("frames", r.seq), zap.Error(err))
			r.Close()
			return EncodedFrame{}, err
		}

		r.state = Reading
		if err := r.src.Next(&r.frame); err != nil {
			if errors.Is(err, video.ErrEndOfStream) {
				r.log.Info("stream exhausted", zap.Int("frames", r.seq))
				r.Close()
				return EncodedFrame{}, ErrEnded
			}
			r.log.Error("frame read failed", zap.Int("frame", r.seq+1), zap.Error(err))
			r.Close()
			return EncodedFrame{}, fmt.Errorf("read frame %d: %w", r.seq+1, err)
		}
		r.seq++
		start := r.opts.Now()

		r.state = Processing
		outcome := r.process(ctx)
		if outcome.Err != nil {
			r.opts.Observer.ProcessingError(string(r.kind))
			r.log.Warn("frame passed through unannotated", zap.Int("frame", r.seq), zap.Error(outcome.Err))
		}
		if outcome.Alerted {
			r.opts.Observer.Alert(string(r.kind))
		}

		r.state = Encoding
		data, err := r.opts.Encoder.Encode(r.out)
		if err != nil {
			r.opts.Observer.EncodeError(string(r.kind))
			r.log.Error("frame skipped", zap.Int("frame", r.seq), zap.Error(err))
			continue
		}

		r.state = Emitted
		r.opts.Observer.FrameEmitted(string(r.kind), r.opts.Now().Sub(start))
		return EncodedFrame{
			Seq:         r.seq,
			Data:        data,
			ContentType: "image/jpeg",
			Annotated:   outcome.Err == nil && outcome.Annotated,
			Detections:  outcome.Detections,
			Segments:    outcome.Segments,
			Alerted:     outcome.Alerted,
			SourceSize:  image.Pt(r.frame.Cols(), r.frame.Rows()),
			Size:        image.Pt(r.out.Cols(), r.out.Rows()),
		}, nil
	}
}

// process runs the stage and turns a panic into a pass-through outcome.
func (r *runner) process(ctx context.Context) (outcome Outcome) {
	defer func() {
		if p := recover(); p != nil {
			r.stage.passThrough(r.frame, &r.out)
			outcome = Outcome{Err: fmt.Errorf("%w: panic: %v", ErrProcessing, p)}
		}
	}()
	outcome = r.stage.process(ctx, r.seq, r.frame, &r.out)
	if outcome.Err != nil && r.out.Empty() {
		r.stage.passThrough(r.frame, &r.out)
	}
	return outcome
}

// Close releases the source and frame buffers. Only the first call has any
// effect; the processor is Ended afterwards.
func (r *runner) Close() error {
	r.closeOnce.Do(func() {
		r.state = Ended
		r.closeErr = r.src.Close()
		r.frame.Close()
		r.out.Close()
		r.stage.close()
		r.opts.Observer.StreamClosed(string(r.kind))
		r.log.Info("stream closed", zap.Int("frames", r.seq))
	})
	return r.closeErr
}
