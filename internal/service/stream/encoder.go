package stream

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// ErrEncode wraps every frame serialization failure.
var ErrEncode = errors.New("frame encode failed")

// Encoder serializes a finished frame.
type Encoder interface {
	Encode(img gocv.Mat) ([]byte, error)
}

// JPEGEncoder encodes frames as JPEG. A zero Quality uses the codec default.
type JPEGEncoder struct {
	Quality int
}

// Encode implements Encoder. The returned bytes are owned by the caller.
func (e JPEGEncoder) Encode(img gocv.Mat) ([]byte, error) {
	if img.Empty() {
		return nil, fmt.Errorf("%w: empty frame", ErrEncode)
	}

	var (
		buf *gocv.NativeByteBuffer
		err error
	)
	if e.Quality > 0 {
		buf, err = gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, e.Quality})
	} else {
		buf, err = gocv.IMEncode(gocv.JPEGFileExt, img)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	defer buf.Close()

	data := buf.GetBytes()
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: codec produced no data", ErrEncode)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
