// Package alert raises out-of-band notifications when a frame contains a
// detection of the alerting class.
package alert

import (
	"context"
	"encoding/json"
	"image"
	"time"

	"roadstream/internal/detect"

	"github.com/google/uuid"
)

// Event describes one alerting frame. Boxes are in pixels of the source
// video frame, which is Width x Height.
type Event struct {
	ID         string       `json:"id"`
	Stream     string       `json:"stream"`
	Video      string       `json:"video"`
	Frame      int          `json:"frame"`
	Label      string       `json:"label"`
	Count      int          `json:"count"`
	Confidence float32      `json:"confidence"`
	Boxes      []detect.Box `json:"boxes"`
	Width      int          `json:"frame_width"`
	Height     int          `json:"frame_height"`
	Time       time.Time    `json:"time"`
}

// JSON encodes the event for the wire sinks.
func (e Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Notifier delivers events. Implementations must return quickly and do any
// slow I/O on their own goroutines.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, ev Event) { f(ctx, ev) }

// Multi fans an event out to every notifier in order.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, ev Event) {
	for _, n := range m {
		n.Notify(ctx, ev)
	}
}

// Signal decides, per frame, whether to raise an alert. One Signal belongs
// to one stream.
type Signal struct {
	label    string
	stream   string
	video    string
	notifier Notifier
}

// NewSignal returns a Signal that alerts on detections labelled label.
func NewSignal(label, stream, video string, n Notifier) *Signal {
	return &Signal{label: label, stream: stream, video: video, notifier: n}
}

// Observe inspects the detections of frame and notifies at most once. It
// reports whether an alert was raised. res is in work pixels; the event
// carries its boxes mapped onto the source frame. A zero source size means
// the frame was not resized.
func (s *Signal) Observe(ctx context.Context, frame int, res detect.Result, work, source image.Point) bool {
	if source.X <= 0 || source.Y <= 0 {
		source = work
	}
	var (
		boxes []detect.Box
		best  float32
	)
	for _, d := range res {
		if d.Label != s.label {
			continue
		}
		b := d.Box.Scale(work, source)
		if source.X > 0 && source.Y > 0 {
			b = b.Clamp(source.X, source.Y)
		}
		boxes = append(boxes, b)
		best = max(best, d.Confidence)
	}
	if len(boxes) == 0 {
		return false
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, Event{
			ID:         uuid.NewString(),
			Stream:     s.stream,
			Video:      s.video,
			Frame:      frame,
			Label:      s.label,
			Count:      len(boxes),
			Confidence: best,
			Boxes:      boxes,
			Width:      source.X,
			Height:     source.Y,
			Time:       time.Now(),
		})
	}
	return true
}
