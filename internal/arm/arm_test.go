package arm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingDriver records servo writes for verification.
type recordingDriver struct {
	writes []servoWrite
	fail   error
	closed int
}

type servoWrite struct {
	channel int
	angle   int
}

func (d *recordingDriver) SetAngle(channel, angle int) error {
	if d.fail != nil {
		return d.fail
	}
	d.writes = append(d.writes, servoWrite{channel, angle})
	return nil
}

func (d *recordingDriver) Close() error {
	d.closed++
	return nil
}

func TestArm_UnknownAngleDefaultsToHome(t *testing.T) {
	a := New(&recordingDriver{})

	_, ok := a.Angle(Lift)
	assert.False(t, ok)
	assert.Equal(t, HomeAngle, a.Current(Lift))
	assert.Equal(t, Home(), a.Snapshot())
}

func TestArm_SetAngleRecordsLastKnown(t *testing.T) {
	drv := &recordingDriver{}
	a := New(drv)

	require.NoError(t, a.SetAngle(Wrist, 42))

	angle, ok := a.Angle(Wrist)
	assert.True(t, ok)
	assert.Equal(t, 42, angle)
	assert.Equal(t, []servoWrite{{channel: 3, angle: 42}}, drv.writes)
}

func TestArm_SetAngleOutOfRange(t *testing.T) {
	drv := &recordingDriver{}
	a := New(drv)

	err := a.SetAngle(Base, 181)

	var oor *OutOfRangeError
	require.True(t, errors.As(err, &oor))
	assert.Equal(t, Base, oor.Joint)
	assert.Equal(t, 181, oor.Angle)
	assert.Empty(t, drv.writes, "out-of-range angles must never reach the driver")
	_, ok := a.Angle(Base)
	assert.False(t, ok)
}

func TestArm_DriverErrorKeepsLastKnown(t *testing.T) {
	drv := &recordingDriver{}
	a := New(drv)
	require.NoError(t, a.SetAngle(Gripper, 10))

	drv.fail = errors.New("bus timeout")
	err := a.SetAngle(Gripper, 30)

	require.Error(t, err)
	assert.Equal(t, 10, a.Current(Gripper))
}

func TestArm_CustomChannelAndLimits(t *testing.T) {
	drv := &recordingDriver{}
	limits := DefaultLimits()
	limits[Gripper] = Limit{Min: 0, Max: 60}
	a := New(drv, WithChannel(Gripper, 7), WithLimits(limits))

	require.NoError(t, a.SetAngle(Gripper, 60))
	assert.Equal(t, servoWrite{channel: 7, angle: 60}, drv.writes[0])

	var oor *OutOfRangeError
	assert.ErrorAs(t, a.SetAngle(Gripper, 61), &oor)
}

func TestArm_CloseIsIdempotent(t *testing.T) {
	drv := &recordingDriver{}
	a := New(drv)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Equal(t, 1, drv.closed)
}

func TestJoint_ParseAndString(t *testing.T) {
	for _, j := range AllJoints() {
		got, ok := ParseJoint(j.String())
		assert.True(t, ok, j.String())
		assert.Equal(t, j, got)
	}
	_, ok := ParseJoint("elbow")
	assert.False(t, ok)
	assert.Equal(t, "joint(9)", Joint(9).String())
}

func TestMotionOrder_CoversEveryJointOnce(t *testing.T) {
	seen := map[Joint]bool{}
	for _, j := range MotionOrder() {
		assert.False(t, seen[j], "joint %s repeated", j)
		seen[j] = true
	}
	assert.Len(t, seen, NumJoints)
	assert.Equal(t, Gripper, MotionOrder()[NumJoints-1])
}

func TestFromNamed_DefaultsMissingJoints(t *testing.T) {
	w := FromNamed(map[string]int{"base": 120, "elbow": 5})

	assert.Equal(t, 120, w.Angle(Base))
	for _, j := range []Joint{Lift, Gripper, Wrist, WristRotate} {
		assert.Equal(t, HomeAngle, w.Angle(j), j.String())
	}
}

func TestLimits_CheckWaypoint(t *testing.T) {
	l := DefaultLimits()
	assert.NoError(t, l.CheckWaypoint(Pose(0, 180, 90, 0, 30)))

	var oor *OutOfRangeError
	require.ErrorAs(t, l.CheckWaypoint(Pose(90, 90, -1, 90, 90)), &oor)
	assert.Equal(t, Wrist, oor.Joint)
}
