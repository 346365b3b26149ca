package alert

import (
	"context"
	"fmt"
	"os/exec"
	"sync/atomic"
	"time"

	"roadstream/internal/logger"
)

// playTimeout bounds one playback.
const playTimeout = 10 * time.Second

// players lists the command lines tried in order when the player is "auto".
var players = [][]string{
	{"paplay"},
	{"aplay", "-q"},
	{"afplay"},
	{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"},
}

// SoundNotifier plays a fixed sound file through an external player. A cue
// that arrives while the previous one is still playing is dropped.
type SoundNotifier struct {
	path    string
	command []string
	playing atomic.Bool
	run     func(ctx context.Context, name string, args ...string) error
	logger  *logger.Logger
}

// NewSoundNotifier resolves player ("auto" or a binary name) and returns a
// notifier for the sound at path.
func NewSoundNotifier(path, player string, log *logger.Logger) (*SoundNotifier, error) {
	command, err := resolvePlayer(player)
	if err != nil {
		return nil, err
	}
	log.Info("Alert sound %s via %s", path, command[0])
	return &SoundNotifier{path: path, command: command, run: runCommand, logger: log}, nil
}

func resolvePlayer(player string) ([]string, error) {
	if player != "" && player != "auto" {
		if _, err := exec.LookPath(player); err != nil {
			return nil, fmt.Errorf("%s command not found in PATH: %w", player, err)
		}
		return []string{player}, nil
	}
	for _, p := range players {
		if _, err := exec.LookPath(p[0]); err == nil {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no audio player found in PATH")
}

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Notify starts playback in the background and returns immediately.
func (s *SoundNotifier) Notify(_ context.Context, ev Event) {
	if !s.playing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.playing.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
		defer cancel()

		args := append(append([]string{}, s.command[1:]...), s.path)
		if err := s.run(ctx, s.command[0], args...); err != nil {
			s.logger.Warning("Alert sound for frame %d failed: %v", ev.Frame, err)
		}
	}()
}
