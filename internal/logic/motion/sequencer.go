// Package motion sequences whole-arm programs. It is the layer between the
// control loop (what gesture to perform) and the actuator (one servo
// command at a time).
package motion

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/VoxArm/internal/arm"
	"github.com/cjeanneret/VoxArm/internal/debug"
	"github.com/cjeanneret/VoxArm/internal/logic/trajectory"
)

// Config holds the sweep parameters shared by every joint.
type Config struct {
	StepDeg   int           // degrees per servo command, default 1
	StepDelay time.Duration // pause after each servo command
}

// Event reports that a waypoint of a program was reached.
type Event struct {
	Program  string
	Waypoint int // 1-based
	Total    int
	Commands int // servo commands issued to reach this waypoint
}

// Observer is notified after each waypoint.
type Observer func(Event)

// Sequencer drives the arm through programs. Joints move one after the
// other, never concurrently, to bound peak current draw.
type Sequencer struct {
	actuator arm.Actuator
	limits   arm.Limits
	cfg      Config
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewSequencer creates a sequencer driving act within limits.
func NewSequencer(act arm.Actuator, limits arm.Limits, cfg Config) *Sequencer {
	if cfg.StepDeg <= 0 {
		cfg.StepDeg = trajectory.DefaultStep
	}
	return &Sequencer{
		actuator: act,
		limits:   limits,
		cfg:      cfg,
		sleep:    sleepContext,
	}
}

// Limits returns the joint bounds every target is checked against.
func (s *Sequencer) Limits() arm.Limits {
	return s.limits
}

// SetObserver registers a waypoint observer. Not safe to call while a
// program is running.
func (s *Sequencer) SetObserver(o Observer) {
	s.observer = o
}

// Execute runs every waypoint of p in order, holding between waypoints.
// Cancellation of ctx is honoured before every servo command and at every
// waypoint boundary. On any error the program stops where it is: joints
// keep their last successfully commanded angle.
func (s *Sequencer) Execute(ctx context.Context, p *Program) error {
	debug.Section("Program " + p.Name())
	total := p.Len()
	for i, w := range p.waypoints {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("program %s aborted before waypoint %d/%d: %w", p.Name(), i+1, total, err)
		}

		n, err := s.moveTo(ctx, w)
		if err != nil {
			return fmt.Errorf("program %s waypoint %d/%d: %w", p.Name(), i+1, total, err)
		}
		debug.Waypoint(p.Name(), i+1, total)
		if s.observer != nil {
			s.observer(Event{Program: p.Name(), Waypoint: i + 1, Total: total, Commands: n})
		}

		if i < total-1 && p.Hold() > 0 {
			if err := s.sleep(ctx, p.Hold()); err != nil {
				return fmt.Errorf("program %s aborted after waypoint %d/%d: %w", p.Name(), i+1, total, err)
			}
		}
	}
	return nil
}

// MoveTo drives the arm to a single pose.
func (s *Sequencer) MoveTo(ctx context.Context, w arm.Waypoint) error {
	p, _ := NewProgram("move", 0, "", w)
	return s.Execute(ctx, p)
}

// moveTo sweeps each joint to its target in motion order and returns the
// number of servo commands issued.
func (s *Sequencer) moveTo(ctx context.Context, w arm.Waypoint) (int, error) {
	commands := 0
	for _, j := range arm.MotionOrder() {
		current := arm.CurrentAngle(s.actuator, j)
		tr, err := trajectory.Generate(s.limits, j, current, w.Angle(j),
			trajectory.WithStep(s.cfg.StepDeg),
			trajectory.WithDelay(s.cfg.StepDelay),
		)
		if err != nil {
			return commands, err
		}
		debug.Sweep(j.String(), tr.From(), tr.Target(), tr.Len())

		for angle := range tr.All() {
			if err := ctx.Err(); err != nil {
				return commands, err
			}
			if err := s.actuator.SetAngle(j, angle); err != nil {
				return commands, err
			}
			commands++
			if err := s.sleep(ctx, tr.Delay()); err != nil {
				return commands, err
			}
		}
	}
	return commands, nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
