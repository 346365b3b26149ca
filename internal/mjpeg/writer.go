// Package mjpeg writes motion-JPEG streams in multipart/x-mixed-replace
// framing, one part per frame.
package mjpeg

import (
	"io"
	"net/http"
)

const (
	// Boundary separates parts in the stream.
	Boundary = "frame"
	// ContentType is the response header value announcing the stream.
	ContentType = "multipart/x-mixed-replace; boundary=" + Boundary
	// PartContentType is the content type of every part.
	PartContentType = "image/jpeg"
)

var (
	partHeader  = []byte("--" + Boundary + "\r\nContent-Type: " + PartContentType + "\r\n\r\n")
	partTrailer = []byte("\r\n\r\n")
)

// Writer emits parts to an underlying writer and flushes after each one
// when the writer supports it.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
	parts   int
	bytes   int64
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	mw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		mw.flusher = f
	}
	return mw
}

// SetHeaders sets the stream headers on an HTTP response. It must be called
// before the first WritePart.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", ContentType)
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Connection", "close")
}

// WritePart writes one framed JPEG.
func (m *Writer) WritePart(jpeg []byte) error {
	for _, chunk := range [][]byte{partHeader, jpeg, partTrailer} {
		n, err := m.w.Write(chunk)
		m.bytes += int64(n)
		if err != nil {
			return err
		}
	}
	m.parts++
	if m.flusher != nil {
		m.flusher.Flush()
	}
	return nil
}

// Parts returns how many parts have been written.
func (m *Writer) Parts() int { return m.parts }

// BytesWritten returns the total bytes written, framing included.
func (m *Writer) BytesWritten() int64 { return m.bytes }
