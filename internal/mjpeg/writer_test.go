package mjpeg

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePart_ExactFraming(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WritePart([]byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9}))
	require.NoError(t, w.WritePart([]byte("second")))

	want := "--frame\r\nContent-Type: image/jpeg\r\n\r\n\xff\xd8\x01\xff\xd9\r\n\r\n" +
		"--frame\r\nContent-Type: image/jpeg\r\n\r\nsecond\r\n\r\n"
	assert.Equal(t, want, buf.String())
	assert.Equal(t, 2, w.Parts())
	assert.Equal(t, int64(len(want)), w.BytesWritten())
}

func TestWritePart_FlushesResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	SetHeaders(rec.Header())
	w := NewWriter(rec)

	require.NoError(t, w.WritePart([]byte("x")))

	assert.True(t, rec.Flushed)
	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", rec.Header().Get("Content-Type"))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWritePart_PropagatesWriteError(t *testing.T) {
	w := NewWriter(failingWriter{})

	err := w.WritePart([]byte("x"))

	assert.Error(t, err)
	assert.Zero(t, w.Parts())
}
