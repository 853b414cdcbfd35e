package arm

import (
	"fmt"
	"strings"
)

// Waypoint is a full arm pose: a target angle for every joint.
// The zero value targets 0° everywhere; use Pose, Home or FromNamed.
type Waypoint struct {
	angles [NumJoints]int
}

// Pose builds a waypoint from angles given in motion order.
func Pose(base, lift, wrist, wristRotate, gripper int) Waypoint {
	var w Waypoint
	w.angles[Base] = base
	w.angles[Lift] = lift
	w.angles[Wrist] = wrist
	w.angles[WristRotate] = wristRotate
	w.angles[Gripper] = gripper
	return w
}

// Home returns the pose with every joint at HomeAngle.
func Home() Waypoint {
	return Pose(HomeAngle, HomeAngle, HomeAngle, HomeAngle, HomeAngle)
}

// Angle returns the target for joint j.
func (w Waypoint) Angle(j Joint) int {
	return w.angles[j]
}

// With returns a copy of w with joint j set to angle.
func (w Waypoint) With(j Joint, angle int) Waypoint {
	w.angles[j] = angle
	return w
}

// Named returns the waypoint keyed by joint name, as stored on disk.
func (w Waypoint) Named() map[string]int {
	m := make(map[string]int, NumJoints)
	for _, j := range AllJoints() {
		m[j.String()] = w.angles[j]
	}
	return m
}

// FromNamed builds a waypoint from joint names. Joints absent from the
// map default to HomeAngle and unknown names are ignored, so files written
// for an arm with fewer joints still load.
func FromNamed(named map[string]int) Waypoint {
	w := Home()
	for name, a := range named {
		if j, ok := ParseJoint(name); ok {
			w.angles[j] = a
		}
	}
	return w
}

func (w Waypoint) String() string {
	parts := make([]string, 0, NumJoints)
	for _, j := range MotionOrder() {
		parts = append(parts, fmt.Sprintf("%s=%d", j, w.angles[j]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}
