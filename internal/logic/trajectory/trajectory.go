// Package trajectory turns a joint move into the ordered angle commands
// that sweep the joint from its current angle to a target.
package trajectory

import (
	"fmt"
	"iter"
	"time"

	"github.com/cjeanneret/VoxArm/internal/arm"
)

// DefaultStep is the angular increment between two commands, in degrees.
const DefaultStep = 1

// Trajectory is a lazy, finite sweep of one joint. It never sleeps: the
// consumer waits Delay() between two commands to bound angular velocity.
type Trajectory struct {
	joint arm.Joint
	from  int
	to    int
	step  int
	delay time.Duration
}

// Option configures a trajectory.
type Option func(*Trajectory)

// WithStep sets the increment in degrees between two commands.
func WithStep(deg int) Option {
	return func(t *Trajectory) {
		t.step = deg
	}
}

// WithDelay sets the pause the consumer applies after each command.
func WithDelay(d time.Duration) Option {
	return func(t *Trajectory) {
		t.delay = d
	}
}

// Generate plans the sweep of joint from current to target. A target
// outside the joint's limits fails with *arm.OutOfRangeError. A current
// angle outside the limits (an unknown start pose) is clamped into them.
func Generate(limits arm.Limits, joint arm.Joint, current, target int, opts ...Option) (*Trajectory, error) {
	if err := limits.Check(joint, target); err != nil {
		return nil, err
	}
	t := &Trajectory{
		joint: joint,
		from:  clamp(current, limits[joint]),
		to:    target,
		step:  DefaultStep,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.step <= 0 {
		return nil, fmt.Errorf("trajectory: step must be > 0, got %d", t.step)
	}
	return t, nil
}

// Joint returns the joint being moved.
func (t *Trajectory) Joint() arm.Joint { return t.joint }

// From returns the starting angle.
func (t *Trajectory) From() int { return t.from }

// Target returns the final angle.
func (t *Trajectory) Target() int { return t.to }

// Delay returns the pause to apply after each command.
func (t *Trajectory) Delay() time.Duration { return t.delay }

// Len returns the number of commands All yields.
func (t *Trajectory) Len() int {
	dist := t.to - t.from
	if dist < 0 {
		dist = -dist
	}
	return (dist+t.step-1)/t.step + 1
}

// All yields every angle from the start to the target, both inclusive.
// A joint already at its target yields the target once so observers of
// the last commanded angle always fire.
func (t *Trajectory) All() iter.Seq[int] {
	return func(yield func(int) bool) {
		a := t.from
		for {
			if !yield(a) {
				return
			}
			if a == t.to {
				return
			}
			if t.to > a {
				a = min(a+t.step, t.to)
			} else {
				a = max(a-t.step, t.to)
			}
		}
	}
}

// Angles collects All into a slice.
func (t *Trajectory) Angles() []int {
	out := make([]int, 0, t.Len())
	for a := range t.All() {
		out = append(out, a)
	}
	return out
}

func clamp(angle int, l arm.Limit) int {
	return max(l.Min, min(angle, l.Max))
}
