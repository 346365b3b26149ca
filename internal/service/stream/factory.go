package stream

import (
	"errors"
	"fmt"
	"image"

	"roadstream/internal/service/alert"
	"roadstream/internal/video"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrModelUnavailable is returned when a pothole stream is requested but no
// detection model was loaded.
var ErrModelUnavailable = errors.New("detection model unavailable")

// Factory opens processors for stored videos. The detector is shared by
// every pothole stream; everything else is created per stream.
type Factory struct {
	Detector   Detector
	Annotator  Annotator
	Lane       LaneDetector
	Notifier   alert.Notifier
	AlertLabel string
	Encoder    Encoder
	WorkSize   image.Point
	Logger     *zap.Logger
	Observer   Observer

	// OpenSource replaces video.Open when set.
	OpenSource func(path string) (FrameSource, error)
}

// Open starts a processor of kind over the video at path. name identifies
// the video in logs and alerts. Nothing is decoded until the first Next.
func (f *Factory) Open(kind Kind, path, name string) (Processor, error) {
	switch kind {
	case KindPothole:
		if f.Detector == nil || f.Annotator == nil {
			return nil, ErrModelUnavailable
		}
	case KindLane:
		if f.Lane == nil {
			return nil, errors.New("lane pipeline not configured")
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	src, err := f.open(path)
	if err != nil {
		return nil, err
	}

	opts := Options{
		ID:       uuid.NewString(),
		Video:    name,
		Source:   describe(src),
		Encoder:  f.Encoder,
		Logger:   f.Logger,
		Observer: f.Observer,
	}
	if kind == KindLane {
		return NewLane(src, f.Lane, opts), nil
	}

	var signal *alert.Signal
	if f.Notifier != nil && f.AlertLabel != "" {
		signal = alert.NewSignal(f.AlertLabel, opts.ID, name, f.Notifier)
	}
	return NewPothole(src, f.Detector, f.Annotator, signal, f.WorkSize, opts), nil
}

func (f *Factory) open(path string) (FrameSource, error) {
	if f.OpenSource != nil {
		return f.OpenSource(path)
	}
	src, err := video.Open(path)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// describe returns the container properties of sources that report them.
func describe(src FrameSource) video.Info {
	if d, ok := src.(interface{ Info() video.Info }); ok {
		return d.Info()
	}
	return video.Info{}
}
