// Package arm models the robotic arm: its joints, poses (waypoints) and the
// actuator that moves them.
package arm

import "fmt"

// Joint identifies one actuated rotational degree of freedom.
// The integer value is stable and matches the default servo channel.
type Joint int

const (
	Base Joint = iota
	Lift
	Gripper
	Wrist
	WristRotate

	// NumJoints is the number of joints on the arm.
	NumJoints = 5
)

// Angle limits shared by every joint unless configured otherwise.
const (
	MinAngle  = 0
	MaxAngle  = 180
	HomeAngle = 90 // assumed position of a joint that was never commanded
)

var jointNames = [NumJoints]string{
	Base:        "base",
	Lift:        "lift",
	Gripper:     "gripper",
	Wrist:       "wrist",
	WristRotate: "wrist_rotate",
}

// AllJoints returns all joints in index order.
func AllJoints() []Joint {
	return []Joint{Base, Lift, Gripper, Wrist, WristRotate}
}

// MotionOrder returns the order in which joints are driven toward a
// waypoint. The gripper moves last so the arm is in place before it
// opens or closes.
func MotionOrder() []Joint {
	return []Joint{Base, Lift, Wrist, WristRotate, Gripper}
}

// String returns the joint name used in config and preset files.
func (j Joint) String() string {
	if j.Valid() {
		return jointNames[j]
	}
	return fmt.Sprintf("joint(%d)", int(j))
}

// Valid reports whether j is one of the arm's joints.
func (j Joint) Valid() bool {
	return j >= 0 && int(j) < NumJoints
}

// ParseJoint returns the joint with the given name.
func ParseJoint(name string) (Joint, bool) {
	for i, n := range jointNames {
		if n == name {
			return Joint(i), true
		}
	}
	return 0, false
}

// Limit is the inclusive angle range of a joint, in degrees.
type Limit struct {
	Min int
	Max int
}

// Contains reports whether angle lies within the limit.
func (l Limit) Contains(angle int) bool {
	return angle >= l.Min && angle <= l.Max
}

// Limits holds the angle range of every joint.
type Limits [NumJoints]Limit

// DefaultLimits returns [0, 180] for every joint.
func DefaultLimits() Limits {
	var l Limits
	for i := range l {
		l[i] = Limit{Min: MinAngle, Max: MaxAngle}
	}
	return l
}

// Check returns an *OutOfRangeError if angle is outside the joint's range.
func (l Limits) Check(j Joint, angle int) error {
	if !j.Valid() {
		return fmt.Errorf("unknown joint %d", int(j))
	}
	if !l[j].Contains(angle) {
		return &OutOfRangeError{Joint: j, Angle: angle, Min: l[j].Min, Max: l[j].Max}
	}
	return nil
}

// CheckWaypoint validates every target of w.
func (l Limits) CheckWaypoint(w Waypoint) error {
	for _, j := range AllJoints() {
		if err := l.Check(j, w.Angle(j)); err != nil {
			return err
		}
	}
	return nil
}

// OutOfRangeError reports a requested angle outside a joint's bounds.
type OutOfRangeError struct {
	Joint Joint
	Angle int
	Min   int
	Max   int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("joint %s: angle %d out of range [%d, %d]", e.Joint, e.Angle, e.Min, e.Max)
}
