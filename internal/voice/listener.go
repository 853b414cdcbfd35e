// Package voice holds the speech collaborators of the control loop: where
// utterances come from and where announcements go.
package voice

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// Listener delivers complete utterances as text. AwaitUtterance blocks
// until one is available; io.EOF means no more will come.
type Listener interface {
	AwaitUtterance(ctx context.Context) (string, error)
}

// ErrClosed is returned when submitting to a closed listener.
var ErrClosed = errors.New("listener closed")

// ConsoleListener reads one utterance per line, typically from stdin. Blank
// lines are skipped.
type ConsoleListener struct {
	lines chan string
	err   error // set before lines is closed
	done  chan struct{}
	once  sync.Once
}

// NewConsoleListener starts reading r in the background.
func NewConsoleListener(r io.Reader) *ConsoleListener {
	l := &ConsoleListener{
		lines: make(chan string),
		done:  make(chan struct{}),
	}
	go l.read(r)
	return l
}

func (l *ConsoleListener) read(r io.Reader) {
	defer close(l.lines)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		select {
		case <-l.done:
			return
		default:
		}
		select {
		case l.lines <- line:
		case <-l.done:
			return
		}
	}
	l.err = sc.Err()
}

// AwaitUtterance returns the next non-blank line, or io.EOF once the input
// ends or the listener is closed.
func (l *ConsoleListener) AwaitUtterance(ctx context.Context) (string, error) {
	select {
	case <-l.done:
		return "", io.EOF
	default:
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-l.done:
		return "", io.EOF
	case line, ok := <-l.lines:
		if !ok {
			if l.err != nil {
				return "", l.err
			}
			return "", io.EOF
		}
		return line, nil
	}
}

// Close releases a reader blocked on an unconsumed line. A reader blocked
// inside r.Read only returns once r does. It is safe to call more than once.
func (l *ConsoleListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

// ChanListener is fed programmatically, by the web surface or tests.
type ChanListener struct {
	ch   chan string
	done chan struct{}
	once sync.Once
}

// NewChanListener creates a listener buffering up to size utterances.
func NewChanListener(size int) *ChanListener {
	return &ChanListener{
		ch:   make(chan string, size),
		done: make(chan struct{}),
	}
}

// Submit queues an utterance. It blocks while the buffer is full.
func (l *ChanListener) Submit(ctx context.Context, text string) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	select {
	case l.ch <- text:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AwaitUtterance returns the next submitted utterance. Once the listener is
// closed, queued utterances are still delivered before io.EOF.
func (l *ChanListener) AwaitUtterance(ctx context.Context) (string, error) {
	select {
	case text := <-l.ch:
		return text, nil
	default:
	}
	select {
	case text := <-l.ch:
		return text, nil
	case <-l.done:
		return "", io.EOF
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close stops the listener. It is safe to call more than once.
func (l *ChanListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}
