package stream

import (
	"errors"
	"fmt"
	"strings"
)

// Kind selects the per-frame pipeline of a stream.
type Kind string

const (
	KindPothole Kind = "pothole"
	KindLane    Kind = "lane"
)

// Kinds lists every supported pipeline.
var Kinds = []Kind{KindPothole, KindLane}

// ErrUnknownKind is returned for an unsupported pipeline name.
var ErrUnknownKind = errors.New("unknown pipeline kind")

// ParseKind maps a pipeline name to its Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindPothole, KindLane:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// State is the position of a processor in its frame loop.
type State int

const (
	Idle State = iota
	Reading
	Processing
	Encoding
	Emitted
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Reading:
		return "reading"
	case Processing:
		return "processing"
	case Encoding:
		return "encoding"
	case Emitted:
		return "emitted"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
