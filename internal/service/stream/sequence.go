package stream

import (
	"context"
	"errors"
	"io"
	"iter"

	"roadstream/internal/mjpeg"
)

// Frames exposes p as a pull-driven sequence. Each iteration step computes
// exactly one frame. The processor is closed when the loop ends, however it
// ends, so the sequence can be consumed only once.
func Frames(ctx context.Context, p Processor) iter.Seq2[EncodedFrame, error] {
	return func(yield func(EncodedFrame, error) bool) {
		defer p.Close()
		for {
			f, err := p.Next(ctx)
			if errors.Is(err, ErrEnded) {
				return
			}
			if err != nil {
				yield(EncodedFrame{}, err)
				return
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

// WriteTo streams every frame of p to w in multipart MJPEG framing and
// returns the number of parts written. A cancelled ctx ends the stream
// with ctx.Err().
func WriteTo(ctx context.Context, w io.Writer, p Processor) (int, error) {
	mw := mjpeg.NewWriter(w)
	for f, err := range Frames(ctx, p) {
		if err != nil {
			return mw.Parts(), err
		}
		if err := mw.WritePart(f.Data); err != nil {
			return mw.Parts(), err
		}
	}
	return mw.Parts(), nil
}
