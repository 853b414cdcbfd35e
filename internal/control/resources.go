package control

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/cjeanneret/VoxArm/internal/debug"
)

// Resources owns every device and connection opened at startup and
// releases them once, in reverse order of registration.
type Resources struct {
	mu      sync.Mutex
	closers []namedCloser
	once    sync.Once
	err     error
}

type namedCloser struct {
	name string
	c    io.Closer
}

// Add registers c for release under name.
func (r *Resources) Add(name string, c io.Closer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closers = append(r.closers, namedCloser{name, c})
}

// AddFunc registers a close function.
func (r *Resources) AddFunc(name string, fn func() error) {
	r.Add(name, closerFunc(fn))
}

// Close releases every resource. Later calls return the first result.
func (r *Resources) Close() error {
	r.once.Do(func() {
		r.mu.Lock()
		closers := r.closers
		r.mu.Unlock()

		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			nc := closers[i]
			debug.Verbose("Releasing %s", nc.name)
			if err := nc.c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing %s: %w", nc.name, err))
			}
		}
		r.err = errors.Join(errs...)
	})
	return r.err
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
