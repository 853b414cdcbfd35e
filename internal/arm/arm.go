package arm

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/VoxArm/internal/debug"
)

// Actuator is the narrow view of the arm used by the motion sequencer.
type Actuator interface {
	// SetAngle commands joint j to angle. It fails with *OutOfRangeError
	// outside the joint's bounds.
	SetAngle(j Joint, angle int) error
	// Angle returns the last angle successfully commanded to j, or false
	// if the joint was never commanded.
	Angle(j Joint) (int, bool)
}

// Driver writes angles to servo channels. Implementations live in
// internal/hw/servo.
type Driver interface {
	SetAngle(channel int, angle int) error
	Close() error
}

// Arm is the actuator abstraction over a servo driver. It owns the
// last-known angle of every joint; the hardware is open loop so nothing is
// ever read back from the servos.
type Arm struct {
	driver   Driver
	channels [NumJoints]int
	limits   Limits

	mu    sync.RWMutex
	known [NumJoints]int
	set   [NumJoints]bool

	closeOnce sync.Once
	closeErr  error
}

// Option configures an Arm.
type Option func(*Arm)

// WithLimits overrides the default [0, 180] joint bounds.
func WithLimits(l Limits) Option {
	return func(a *Arm) {
		a.limits = l
	}
}

// WithChannel maps joint j to a servo channel other than its index.
func WithChannel(j Joint, channel int) Option {
	return func(a *Arm) {
		a.channels[j] = channel
	}
}

// New creates an arm on top of driver.
func New(driver Driver, opts ...Option) *Arm {
	a := &Arm{
		driver: driver,
		limits: DefaultLimits(),
	}
	for _, j := range AllJoints() {
		a.channels[j] = int(j)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetAngle implements Actuator.
func (a *Arm) SetAngle(j Joint, angle int) error {
	if err := a.limits.Check(j, angle); err != nil {
		return err
	}
	debug.Servo(a.channels[j], angle)
	if err := a.driver.SetAngle(a.channels[j], angle); err != nil {
		return fmt.Errorf("set %s to %d: %w", j, angle, err)
	}

	a.mu.Lock()
	a.known[j] = angle
	a.set[j] = true
	a.mu.Unlock()
	return nil
}

// Angle implements Actuator.
func (a *Arm) Angle(j Joint) (int, bool) {
	if !j.Valid() {
		return 0, false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.known[j], a.set[j]
}

// Current returns the last-known angle of j, or HomeAngle if unknown.
func (a *Arm) Current(j Joint) int {
	return CurrentAngle(a, j)
}

// Snapshot returns the current pose of the arm.
func (a *Arm) Snapshot() Waypoint {
	return SnapshotOf(a)
}

// Limits returns the configured joint bounds.
func (a *Arm) Limits() Limits {
	return a.limits
}

// Close releases the servo driver. It is safe to call more than once.
func (a *Arm) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.driver.Close()
	})
	return a.closeErr
}

// CurrentAngle returns the last-known angle of j on act, defaulting to
// HomeAngle when the joint was never commanded.
func CurrentAngle(act Actuator, j Joint) int {
	if angle, ok := act.Angle(j); ok {
		return angle
	}
	return HomeAngle
}

// SnapshotOf captures the last-known pose of act.
func SnapshotOf(act Actuator) Waypoint {
	var w Waypoint
	for _, j := range AllJoints() {
		w.angles[j] = CurrentAngle(act, j)
	}
	return w
}
