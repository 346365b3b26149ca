// Package video reads decoded frames from video files.
package video

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

var (
	// ErrSourceOpen means the path is missing, unreadable or not a video.
	ErrSourceOpen = errors.New("video source open failed")
	// ErrEndOfStream signals that every frame has been read.
	ErrEndOfStream = errors.New("end of stream")
)

// Info describes the container as reported by the decoder. Values the
// backend cannot determine are zero.
type Info struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int
}

// FileSource reads a video file front to back. It is not safe for
// concurrent use; each stream opens its own.
type FileSource struct {
	capture   *gocv.VideoCapture
	closeOnce sync.Once
	closeErr  error
	closed    bool
}

// Open opens path for sequential reading.
func Open(path string) (*FileSource, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceOpen, path, err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrSourceOpen, path)
	}

	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceOpen, path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: %s: decoder refused file", ErrSourceOpen, path)
	}

	return &FileSource{capture: capture}, nil
}

// Next decodes the next frame into dst. It returns ErrEndOfStream once the
// file is exhausted or the source has been closed.
func (s *FileSource) Next(dst *gocv.Mat) error {
	if s.closed {
		return ErrEndOfStream
	}
	if ok := s.capture.Read(dst); !ok || dst.Empty() {
		return ErrEndOfStream
	}
	return nil
}

// Info queries the container properties.
func (s *FileSource) Info() Info {
	if s.closed {
		return Info{}
	}
	return Info{
		Width:      int(s.capture.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(s.capture.Get(gocv.VideoCaptureFrameHeight)),
		FPS:        s.capture.Get(gocv.VideoCaptureFPS),
		FrameCount: int(s.capture.Get(gocv.VideoCaptureFrameCount)),
	}
}

// Close releases the capture handle. Only the first call has any effect.
func (s *FileSource) Close() error {
	s.closeOnce.Do(func() {
		s.closed = true
		s.closeErr = s.capture.Close()
	})
	return s.closeErr
}
