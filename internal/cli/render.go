package cli

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"roadstream/internal/mjpeg"
	"roadstream/internal/service/ai"
	"roadstream/internal/service/alert"
	"roadstream/internal/service/lane"
	"roadstream/internal/service/stream"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// RenderOptions holds command options
type RenderOptions struct {
	Kind      string
	Input     string
	Output    string
	FramesDir string
	Quality   int
}

// NewRenderCommand creates the render command
func NewRenderCommand() *cobra.Command {
	opts := &RenderOptions{}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Run a pipeline over a video file",
		Long:  `Run the pothole or lane pipeline over a local video and write the annotated frames either as one multipart MJPEG file (--out) or as numbered JPEG files (--frames-dir).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", string(stream.KindLane), "Pipeline to run: pothole or lane")
	cmd.Flags().StringVarP(&opts.Input, "in", "i", "", "Input video file")
	cmd.Flags().StringVarP(&opts.Output, "out", "o", "", "Output MJPEG file")
	cmd.Flags().StringVar(&opts.FramesDir, "frames-dir", "", "Directory for numbered JPEG frames")
	cmd.Flags().IntVar(&opts.Quality, "quality", 0, "JPEG quality (defaults to JPEG_QUALITY)")
	cmd.MarkFlagRequired("in")
	cmd.MarkFlagsOneRequired("out", "frames-dir")
	cmd.MarkFlagsMutuallyExclusive("out", "frames-dir")

	return cmd
}

func runRender(ctx context.Context, opts *RenderOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	kind, err := stream.ParseKind(opts.Kind)
	if err != nil {
		return err
	}

	cfg, log, err := loadEnv()
	if err != nil {
		return err
	}
	quality := cfg.JPEGQuality
	if opts.Quality > 0 {
		quality = opts.Quality
	}

	var alerts atomic.Int64
	factory := &stream.Factory{
		Lane:       lane.New(lane.DefaultParams()),
		AlertLabel: cfg.Alert.Label,
		Notifier:   alert.NotifierFunc(func(context.Context, alert.Event) { alerts.Add(1) }),
		Encoder:    stream.JPEGEncoder{Quality: quality},
		WorkSize:   image.Pt(cfg.Detection.WorkWidth, cfg.Detection.WorkHeight),
	}
	if kind == stream.KindPothole {
		model, err := ai.LoadModel(cfg.Model, log)
		if err != nil {
			return err
		}
		defer model.Close()
		factory.Detector = ai.NewEngine(model, cfg.Detection)
		factory.Annotator = ai.NewRenderer()
	}

	p, err := factory.Open(kind, opts.Input, filepath.Base(opts.Input))
	if err != nil {
		return err
	}

	sink, err := newSink(opts)
	if err != nil {
		p.Close()
		return err
	}

	start := time.Now()
	sum, err := render(ctx, p, sink)
	if cerr := sink.Close(); err == nil {
		err = cerr
	}
	sum.Alerts = int(alerts.Load())
	sum.Took = time.Since(start)
	sum.print(out, kind)
	return err
}

// summary describes a finished render.
type summary struct {
	Frames      int
	Unannotated int
	Detections  int
	Segments    int
	Alerts      int
	Bytes       int64
	Took        time.Duration
}

func (s summary) print(w io.Writer, kind stream.Kind) {
	fmt.Fprintf(w, "%s %s frames in %s\n", color.GreenString("Rendered"), color.CyanString("%d", s.Frames), s.Took.Round(time.Millisecond))
	switch kind {
	case stream.KindPothole:
		fmt.Fprintf(w, "  detections: %d, alerting frames: %s\n", s.Detections, color.YellowString("%d", s.Alerts))
	case stream.KindLane:
		fmt.Fprintf(w, "  lane segments: %d\n", s.Segments)
	}
	if s.Unannotated > 0 {
		fmt.Fprintf(w, "  %s\n", color.YellowString("%d frames passed through unannotated", s.Unannotated))
	}
	fmt.Fprintf(w, "  written: %d bytes\n", s.Bytes)
}

// frameSink receives encoded frames in order.
type frameSink interface {
	Write(f stream.EncodedFrame) error
	Written() int64
	Close() error
}

func render(ctx context.Context, p stream.Processor, sink frameSink) (summary, error) {
	var sum summary
	for f, err := range stream.Frames(ctx, p) {
		if err != nil {
			return sum, err
		}
		if err := sink.Write(f); err != nil {
			return sum, err
		}
		sum.Frames++
		sum.Detections += f.Detections
		sum.Segments += f.Segments
		if !f.Annotated {
			sum.Unannotated++
		}
	}
	sum.Bytes = sink.Written()
	return sum, nil
}

func newSink(opts *RenderOptions) (frameSink, error) {
	if opts.FramesDir != "" {
		if err := os.MkdirAll(opts.FramesDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create frames directory: %w", err)
		}
		return &dirSink{dir: opts.FramesDir}, nil
	}
	if opts.Output == "" {
		return nil, errors.New("either --out or --frames-dir is required")
	}
	f, err := os.Create(opts.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to create output: %w", err)
	}
	return &mjpegSink{file: f, w: mjpeg.NewWriter(f)}, nil
}

type mjpegSink struct {
	file io.WriteCloser
	w    *mjpeg.Writer
}

func (s *mjpegSink) Write(f stream.EncodedFrame) error { return s.w.WritePart(f.Data) }
func (s *mjpegSink) Written() int64 { return s.w.BytesWritten() }
func (s *mjpegSink) Close() error { return s.file.Close() }

type dirSink struct {
	dir     string
	written int64
}

func (s *dirSink) Write(f stream.EncodedFrame) error {
	name := filepath.Join(s.dir, fmt.Sprintf("frame_%05d.jpg", f.Seq))
	if err := os.WriteFile(name, f.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	s.written += int64(len(f.Data))
	return nil
}

func (s *dirSink) Written() int64 { return s.written }
func (s *dirSink) Close() error { return nil }
