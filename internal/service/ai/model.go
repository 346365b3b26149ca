package ai

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"roadstream/internal/config"
	"roadstream/internal/logger"

	"gocv.io/x/gocv"
)

var (
	// ErrInference wraps every failure of a single detection pass.
	ErrInference = errors.New("inference failed")
	// ErrModelClosed is returned by Forward after Close.
	ErrModelClosed = errors.New("model closed")
)

// DefaultLabels is used when no names file is configured.
var DefaultLabels = []string{"pothole"}

// Model is the process-wide detector network. Loading is expensive, so one
// Model is created at start-up and shared by every stream. Forward holds a
// mutex for the SetInput/Forward pair because a gocv.Net keeps its input as
// internal state.
type Model struct {
	net     gocv.Net
	outputs []string
	labels  []string
	mu      sync.Mutex
	closed  bool
}

// LoadModel reads the Darknet cfg and weights named in cfg.
func LoadModel(cfg config.ModelConfig, log *logger.Logger) (*Model, error) {
	if _, err := os.Stat(cfg.WeightsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model weights not found: %s", cfg.WeightsPath)
	}
	if _, err := os.Stat(cfg.ConfigPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model config not found: %s", cfg.ConfigPath)
	}

	net := gocv.ReadNet(cfg.WeightsPath, cfg.ConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", cfg.WeightsPath)
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	labels, err := ReadLabels(cfg.NamesPath)
	if err != nil {
		net.Close()
		return nil, err
	}

	m := &Model{
		net:     net,
		outputs: outputLayerNames(net),
		labels:  labels,
	}
	log.Info("Detection network loaded: %s (outputs %v, classes %v)", cfg.WeightsPath, m.outputs, labels)
	return m, nil
}

// ReadLabels reads one class name per line; the line index is the class id.
// An empty path or a missing file yields DefaultLabels.
func ReadLabels(path string) ([]string, error) {
	if path == "" {
		return DefaultLabels, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return DefaultLabels, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open names file: %w", err)
	}
	defer f.Close()

	var labels []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if name := strings.TrimSpace(sc.Text()); name != "" {
			labels = append(labels, name)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read names file: %w", err)
	}
	if len(labels) == 0 {
		return DefaultLabels, nil
	}
	return labels, nil
}

// Labels returns the class names, indexed by class id.
func (m *Model) Labels() []string { return m.labels }

// Forward runs one pass over every output layer and returns the output rows.
func (m *Model) Forward(blob gocv.Mat) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrModelClosed
	}

	m.net.SetInput(blob, "")
	outputs := m.net.ForwardLayers(m.outputs)
	defer func() {
		for i := range outputs {
			outputs[i].Close()
		}
	}()

	var rows [][]float32
	for _, out := range outputs {
		size := out.Size()
		if len(size) != 2 {
			return nil, fmt.Errorf("%w: unexpected output shape %v", ErrInference, size)
		}
		data, err := out.DataPtrFloat32()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInference, err)
		}
		n, cols := size[0], size[1]
		if len(data) < n*cols {
			return nil, fmt.Errorf("%w: output holds %d values, want %d", ErrInference, len(data), n*cols)
		}
		for i := 0; i < n; i++ {
			row := make([]float32, cols)
			copy(row, data[i*cols:(i+1)*cols])
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// Close releases the network. It is safe to call more than once.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.net.Close()
}

func outputLayerNames(net gocv.Net) []string {
	layerNames := net.GetLayerNames()
	unconnected := net.GetUnconnectedOutLayers()

	names := make([]string, 0, len(unconnected))
	for _, i := range unconnected {
		if i-1 >= 0 && i-1 < len(layerNames) {
			names = append(names, layerNames[i-1])
		}
	}
	return names
}
