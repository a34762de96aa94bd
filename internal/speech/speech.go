// Package speech adapts external programs to the speech collaborators.
//
// The speaker runs a text-to-speech command with the utterance as its last
// argument. The recognizer runs a capture command and reads one transcript
// line from its standard output.
package speech

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// ErrNoTranscript is returned when the capture command printed nothing.
var ErrNoTranscript = errors.New("no transcript captured")

// Speaker runs a text-to-speech command per utterance without waiting for it.
type Speaker struct {
	argv []string
	log  *slog.Logger
	wg   sync.WaitGroup
}

// NewSpeaker creates a Speaker for command, e.g. "espeak -v es". An empty
// command logs utterances instead of playing them.
func NewSpeaker(command string, log *slog.Logger) *Speaker {
	return &Speaker{argv: strings.Fields(command), log: log.With("component", "speaker")}
}

// Speak starts playback and returns immediately.
func (s *Speaker) Speak(utterance string) {
	if len(s.argv) == 0 {
		s.log.Info("speak", "utterance", utterance)
		return
	}

	args := append(append([]string{}, s.argv[1:]...), utterance)
	cmd := exec.Command(s.argv[0], args...)
	if err := cmd.Start(); err != nil {
		s.log.Warn("speech output failed to start", "command", s.argv[0], "error", err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := cmd.Wait(); err != nil {
			s.log.Debug("speech output exited with error", "error", err)
		}
	}()
}

// Wait blocks until every started utterance has finished.
func (s *Speaker) Wait() {
	s.wg.Wait()
}

// Recognizer captures speech through an external command.
type Recognizer struct {
	argv     []string
	lookPath func(string) (string, error)
}

// NewRecognizer creates a Recognizer for command. An empty command, or one
// that is not installed, is reported as unsupported.
func NewRecognizer(command string) *Recognizer {
	return &Recognizer{argv: strings.Fields(command), lookPath: exec.LookPath}
}

// Supported reports whether the capture command can be run.
func (r *Recognizer) Supported() bool {
	if len(r.argv) == 0 {
		return false
	}
	_, err := r.lookPath(r.argv[0])
	return err == nil
}

// Listen runs the capture command and returns the first non-empty line it prints.
func (r *Recognizer) Listen(ctx context.Context) (string, error) {
	if !r.Supported() {
		return "", errors.New("speech capture command not available")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.argv[0], r.argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("run %s: %w (%s)", r.argv[0], err, strings.TrimSpace(stderr.String()))
	}

	sc := bufio.NewScanner(&stdout)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line, nil
		}
	}
	return "", ErrNoTranscript
}
