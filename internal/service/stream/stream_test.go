package stream

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"
	"time"

	"roadstream/internal/detect"
	"roadstream/internal/mjpeg"
	"roadstream/internal/service/alert"
	"roadstream/internal/service/lane"
	"roadstream/internal/video"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gocv.io/x/gocv"
)

type fakeSource struct {
	frames int
	size   image.Point
	read   int
	closes int
	err    error
}

func newFakeSource(frames int) *fakeSource {
	return &fakeSource{frames: frames, size: image.Pt(640, 360)}
}

func (s *fakeSource) Next(dst *gocv.Mat) error {
	if s.closes > 0 || s.read >= s.frames {
		return video.ErrEndOfStream
	}
	if s.err != nil {
		return s.err
	}
	s.read++
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 60, 80, 0), s.size.Y, s.size.X, gocv.MatTypeCV8UC3)
	defer m.Close()
	m.CopyTo(dst)
	return nil
}

func (s *fakeSource) Close() error {
	s.closes++
	return nil
}

type scriptedDetector struct {
	script []detect.Result
	errAt  map[int]bool
	calls  int
	sizes  []image.Point
}

func (d *scriptedDetector) Detect(working gocv.Mat) (detect.Result, error) {
	d.calls++
	d.sizes = append(d.sizes, image.Pt(working.Cols(), working.Rows()))
	if d.errAt[d.calls] {
		return nil, errors.New("inference blew up")
	}
	if d.calls <= len(d.script) {
		return d.script[d.calls-1], nil
	}
	return nil, nil
}

type spyAnnotator struct {
	drawn []int
	fps   []int
}

func (a *spyAnnotator) Draw(img *gocv.Mat, res detect.Result) error {
	a.drawn = append(a.drawn, len(res))
	for _, d := range res {
		if err := gocv.Rectangle(img, d.Box.Rect(), color.RGBA{R: 255, A: 255}, 2); err != nil {
			return err
		}
	}
	return nil
}

func (a *spyAnnotator) DrawFPS(_ *gocv.Mat, fps int) error {
	a.fps = append(a.fps, fps)
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []alert.Event
}

func (r *recorder) Notify(_ context.Context, ev alert.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) frames() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, ev := range r.events {
		out = append(out, ev.Frame)
	}
	return out
}

type flakyEncoder struct {
	failAt map[int]bool
	calls  int
}

func (e *flakyEncoder) Encode(img gocv.Mat) ([]byte, error) {
	e.calls++
	if e.failAt[e.calls] {
		return nil, ErrEncode
	}
	return JPEGEncoder{}.Encode(img)
}

type countingObserver struct {
	opened, closed, emitted, procErrs, encErrs, alerts int
}

func (o *countingObserver) StreamOpened(string) { o.opened++ }
func (o *countingObserver) StreamClosed(string) { o.closed++ }
func (o *countingObserver) FrameEmitted(string, _ time.Duration) { o.emitted++ }
func (o *countingObserver) ProcessingError(string) { o.procErrs++ }
func (o *countingObserver) EncodeError(string) { o.encErrs++ }
func (o *countingObserver) Alert(string) { o.alerts++ }

func pothole() detect.Detection {
	return detect.Detection{Box: detect.Box{X: 10, Y: 10, W: 50, H: 50}, Confidence: 0.9, Label: "pothole"}
}

func isJPEG(b []byte) bool {
	return len(b) > 4 && b[0] == 0xFF && b[1] == 0xD8 && b[len(b)-2] == 0xFF && b[len(b)-1] == 0xD9
}

func collect(t *testing.T, p Processor) []EncodedFrame {
	t.Helper()
	var out []EncodedFrame
	for f, err := range Frames(context.Background(), p) {
		require.NoError(t, err)
		out = append(out, f)
	}
	return out
}

func TestPothole_FiveFrameScenario(t *testing.T) {
	src := newFakeSource(5)
	det := &scriptedDetector{script: []detect.Result{
		{},
		{pothole()},
		{pothole()},
		{},
		{},
	}}
	ann := &spyAnnotator{}
	rec := &recorder{}
	signal := alert.NewSignal("pothole", "s1", "clip.mp4", rec)

	p := NewPothole(src, det, ann, signal, image.Point{}, Options{})
	frames := collect(t, p)

	require.Len(t, frames, 5)
	for i, f := range frames {
		assert.Equal(t, i+1, f.Seq)
		assert.True(t, isJPEG(f.Data), "frame %d", f.Seq)
		assert.Equal(t, "image/jpeg", f.ContentType)
		assert.Equal(t, DefaultWorkSize, f.Size)
		assert.Equal(t, image.Pt(640, 360), f.SourceSize)
		assert.True(t, f.Annotated)
	}
	assert.Equal(t, []int{0, 1, 1, 0, 0}, ann.drawn)
	assert.Len(t, ann.fps, 5)
	assert.Equal(t, []int{2, 3}, rec.frames())
	assert.False(t, frames[0].Alerted)
	assert.True(t, frames[1].Alerted)
	assert.True(t, frames[2].Alerted)
	assert.Equal(t, 1, frames[1].Detections)

	for _, sz := range det.sizes {
		assert.Equal(t, DefaultWorkSize, sz)
	}
	assert.Equal(t, Ended, p.State())
	assert.Equal(t, 1, src.closes)
}

func TestPothole_EndsAfterLastFrame(t *testing.T) {
	src := newFakeSource(3)
	p := NewPothole(src, &scriptedDetector{}, &spyAnnotator{}, nil, image.Pt(320, 180), Options{})
	ctx := context.Background()

	assert.Equal(t, Idle, p.State())
	for i := 1; i <= 3; i++ {
		f, err := p.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, f.Seq)
		assert.Equal(t, image.Pt(320, 180), f.Size)
		assert.Equal(t, Emitted, p.State())
	}

	_, err := p.Next(ctx)
	assert.ErrorIs(t, err, ErrEnded)
	_, err = p.Next(ctx)
	assert.ErrorIs(t, err, ErrEnded)
	assert.Equal(t, Ended, p.State())
	assert.Equal(t, 1, src.closes)
	assert.Equal(t, 3, src.read)
}

func TestPothole_DetectorErrorPassesFrameThrough(t *testing.T) {
	src := newFakeSource(3)
	det := &scriptedDetector{errAt: map[int]bool{2: true}}
	ann := &spyAnnotator{}
	obs := &countingObserver{}

	frames := collect(t, NewPothole(src, det, ann, nil, image.Point{}, Options{Observer: obs}))

	require.Len(t, frames, 3)
	assert.True(t, frames[0].Annotated)
	assert.False(t, frames[1].Annotated)
	assert.True(t, isJPEG(frames[1].Data))
	assert.Equal(t, DefaultWorkSize, frames[1].Size)
	assert.True(t, frames[2].Annotated)
	assert.Len(t, ann.drawn, 2)
	assert.Equal(t, 1, obs.procErrs)
	assert.Equal(t, 3, obs.emitted)
}

type panickyDetector struct{}

func (panickyDetector) Detect(gocv.Mat) (detect.Result, error) { panic("boom") }

func TestPothole_PanicIsRecovered(t *testing.T) {
	frames := collect(t, NewPothole(newFakeSource(2), panickyDetector{}, &spyAnnotator{}, nil, image.Point{}, Options{}))

	require.Len(t, frames, 2)
	for _, f := range frames {
		assert.False(t, f.Annotated)
		assert.True(t, isJPEG(f.Data))
		assert.Equal(t, DefaultWorkSize, f.Size)
	}
}

func TestPothole_AlertBoxesUseSourcePixels(t *testing.T) {
	src := newFakeSource(1)
	src.size = image.Pt(1600, 900)
	det := &scriptedDetector{script: []detect.Result{{
		{Box: detect.Box{X: 100, Y: 100, W: 50, H: 50}, Confidence: 0.8, Label: "pothole"},
	}}}
	rec := &recorder{}
	signal := alert.NewSignal("pothole", "s1", "wide.mp4", rec)

	frames := collect(t, NewPothole(src, det, &spyAnnotator{}, signal, image.Point{}, Options{}))

	require.Len(t, frames, 1)
	assert.Equal(t, DefaultWorkSize, frames[0].Size)
	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, []detect.Box{{X: 200, Y: 200, W: 100, H: 100}}, ev.Boxes)
	assert.Equal(t, 1600, ev.Width)
	assert.Equal(t, 900, ev.Height)
}

func TestRunner_SkipsFramesThatFailToEncode(t *testing.T) {
	enc := &flakyEncoder{failAt: map[int]bool{2: true}}
	obs := &countingObserver{}
	p := NewPothole(newFakeSource(4), &scriptedDetector{}, &spyAnnotator{}, nil, image.Point{}, Options{Encoder: enc, Observer: obs})

	frames := collect(t, p)

	require.Len(t, frames, 3)
	assert.Equal(t, []int{1, 3, 4}, []int{frames[0].Seq, frames[1].Seq, frames[2].Seq})
	assert.Equal(t, 1, obs.encErrs)
	assert.Equal(t, 1, obs.opened)
	assert.Equal(t, 1, obs.closed)
}

func TestRunner_CancellationClosesSourceOnce(t *testing.T) {
	src := newFakeSource(100)
	p := NewPothole(src, &scriptedDetector{}, &spyAnnotator{}, nil, image.Point{}, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	_, err := p.Next(ctx)
	require.NoError(t, err)
	cancel()

	_, err = p.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Ended, p.State())
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, src.closes)
	assert.Equal(t, 1, src.read)
}

func TestRunner_EarlyBreakClosesProcessor(t *testing.T) {
	src := newFakeSource(10)
	p := NewPothole(src, &scriptedDetector{}, &spyAnnotator{}, nil, image.Point{}, Options{})

	n := 0
	for _, err := range Frames(context.Background(), p) {
		require.NoError(t, err)
		n++
		if n == 2 {
			break
		}
	}

	assert.Equal(t, 2, n)
	assert.Equal(t, 1, src.closes)
	_, err := p.Next(context.Background())
	assert.ErrorIs(t, err, ErrEnded)
}

func TestRunner_ReadErrorEndsStream(t *testing.T) {
	src := newFakeSource(5)
	src.err = errors.New("corrupt packet")
	p := NewLane(src, lane.New(lane.DefaultParams()), Options{})

	_, err := p.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt packet")
	assert.Equal(t, Ended, p.State())
	assert.Equal(t, 1, src.closes)
}

func TestLane_KeepsSourceResolution(t *testing.T) {
	src := newFakeSource(3)
	frames := collect(t, NewLane(src, lane.New(lane.DefaultParams()), Options{}))

	require.Len(t, frames, 3)
	for _, f := range frames {
		assert.Equal(t, image.Pt(640, 360), f.Size)
		assert.True(t, f.Annotated)
		assert.Zero(t, f.Segments)
		assert.True(t, isJPEG(f.Data))
	}
}

type brokenLane struct{}

func (brokenLane) Process(gocv.Mat, *gocv.Mat) ([]lane.Segment, error) {
	return nil, lane.ErrProcess
}

func TestLane_ErrorPassesFrameThrough(t *testing.T) {
	frames := collect(t, NewLane(newFakeSource(2), brokenLane{}, Options{}))

	require.Len(t, frames, 2)
	for _, f := range frames {
		assert.False(t, f.Annotated)
		assert.Equal(t, image.Pt(640, 360), f.Size)
	}
}

func TestWriteTo_FramesEveryPart(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteTo(context.Background(), &buf, NewLane(newFakeSource(4), lane.New(lane.DefaultParams()), Options{}))

	require.NoError(t, err)
	assert.Equal(t, 4, n)
	header := "--" + mjpeg.Boundary + "\r\nContent-Type: image/jpeg\r\n\r\n"
	assert.Equal(t, 4, strings.Count(buf.String(), header))
	assert.True(t, strings.HasPrefix(buf.String(), header))
	assert.True(t, strings.HasSuffix(buf.String(), "\xff\xd9\r\n\r\n"))
}

func TestWriteTo_ZeroFrames(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteTo(context.Background(), &buf, NewLane(newFakeSource(0), brokenLane{}, Options{}))

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, buf.Len())
}

func TestFactory(t *testing.T) {
	t.Run("invalid path", func(t *testing.T) {
		f := &Factory{Lane: lane.New(lane.DefaultParams())}
		_, err := f.Open(KindLane, "/nonexistent/clip.mp4", "clip.mp4")
		assert.ErrorIs(t, err, video.ErrSourceOpen)
	})

	t.Run("pothole without model", func(t *testing.T) {
		f := &Factory{Lane: lane.New(lane.DefaultParams())}
		_, err := f.Open(KindPothole, "clip.mp4", "clip.mp4")
		assert.ErrorIs(t, err, ErrModelUnavailable)
	})

	t.Run("unknown kind", func(t *testing.T) {
		f := &Factory{}
		_, err := f.Open(Kind("traffic"), "clip.mp4", "clip.mp4")
		assert.ErrorIs(t, err, ErrUnknownKind)
	})

	t.Run("pothole alerts through notifier", func(t *testing.T) {
		rec := &recorder{}
		src := newFakeSource(2)
		f := &Factory{
			Detector:   &scriptedDetector{script: []detect.Result{{pothole()}, {}}},
			Annotator:  &spyAnnotator{},
			Notifier:   rec,
			AlertLabel: "pothole",
			OpenSource: func(string) (FrameSource, error) { return src, nil },
		}
		p, err := f.Open(KindPothole, "uploads/x.mp4", "x.mp4")
		require.NoError(t, err)
		assert.Equal(t, KindPothole, p.Kind())
		assert.NotEmpty(t, p.ID())

		frames := collect(t, p)
		require.Len(t, frames, 2)
		assert.Equal(t, []int{1}, rec.frames())
		rec.mu.Lock()
		assert.Equal(t, "x.mp4", rec.events[0].Video)
		assert.Equal(t, p.ID(), rec.events[0].Stream)
		rec.mu.Unlock()
	})

	t.Run("logs container info", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		src := &describedSource{fakeSource: newFakeSource(1), info: video.Info{Width: 1920, Height: 1080, FPS: 30, FrameCount: 1}}
		f := &Factory{
			Lane:       lane.New(lane.DefaultParams()),
			Logger:     zap.New(core),
			OpenSource: func(string) (FrameSource, error) { return src, nil },
		}
		p, err := f.Open(KindLane, "uploads/y.mp4", "y.mp4")
		require.NoError(t, err)
		defer p.Close()

		opened := logs.FilterMessage("stream opened").All()
		require.Len(t, opened, 1)
		fields := opened[0].ContextMap()
		assert.Equal(t, int64(1920), fields["width"])
		assert.Equal(t, int64(1080), fields["height"])
		assert.Equal(t, float64(30), fields["fps"])
		assert.Equal(t, "y.mp4", fields["video"])
	})
}

type describedSource struct {
	*fakeSource
	info video.Info
}

func (s *describedSource) Info() video.Info { return s.info }

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Lane ")
	require.NoError(t, err)
	assert.Equal(t, KindLane, k)

	_, err = ParseKind("traffic")
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Equal(t, "ended", Ended.String())
}
