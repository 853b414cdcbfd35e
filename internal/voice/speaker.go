package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Speaker delivers an announcement to the operator.
type Speaker interface {
	Announce(ctx context.Context, text string) error
}

var announceStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

// ConsoleSpeaker prints announcements to a terminal.
type ConsoleSpeaker struct {
	mu    sync.Mutex
	w     io.Writer
	style lipgloss.Style
}

// NewConsoleSpeaker writes styled announcements to w.
func NewConsoleSpeaker(w io.Writer) *ConsoleSpeaker {
	return &ConsoleSpeaker{w: w, style: announceStyle}
}

// Announce prints text on its own line.
func (s *ConsoleSpeaker) Announce(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.w, s.style.Render("🔊 "+text))
	return err
}

// ExecSpeaker speaks through an external TTS program such as espeak. The
// text is passed as the last argument.
type ExecSpeaker struct {
	command string
	args    []string
}

// NewExecSpeaker creates a speaker running command with args.
func NewExecSpeaker(command string, args ...string) *ExecSpeaker {
	return &ExecSpeaker{command: command, args: args}
}

// Announce runs the TTS program and waits for it to finish.
func (s *ExecSpeaker) Announce(ctx context.Context, text string) error {
	args := append(append([]string{}, s.args...), text)
	cmd := exec.CommandContext(ctx, s.command, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w (%s)", s.command, err, out)
	}
	return nil
}

// MultiSpeaker fans an announcement out to several speakers. Every speaker
// is tried even if an earlier one fails.
type MultiSpeaker []Speaker

// Announce calls every speaker and joins their errors.
func (m MultiSpeaker) Announce(ctx context.Context, text string) error {
	var errs []error
	for _, s := range m {
		if err := s.Announce(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FuncSpeaker adapts a function to Speaker.
type FuncSpeaker func(ctx context.Context, text string) error

// Announce calls f.
func (f FuncSpeaker) Announce(ctx context.Context, text string) error {
	return f(ctx, text)
}

