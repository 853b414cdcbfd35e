package control

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/VoxArm/internal/arm"
	"github.com/cjeanneret/VoxArm/internal/logic/command"
	"github.com/cjeanneret/VoxArm/internal/logic/motion"
	"github.com/cjeanneret/VoxArm/internal/metrics"
	"github.com/cjeanneret/VoxArm/internal/preset"
	"github.com/cjeanneret/VoxArm/internal/vision"
	"github.com/cjeanneret/VoxArm/internal/voice"
)

type nopDriver struct{}

func (nopDriver) SetAngle(channel, angle int) error { return nil }
func (nopDriver) Close() error                      { return nil }

type recordingSpeaker struct {
	mu    sync.Mutex
	heard []string
	err   error
}

func (s *recordingSpeaker) Announce(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heard = append(s.heard, text)
	return s.err
}

func (s *recordingSpeaker) Heard() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.heard...)
}

type countingDetector struct {
	calls int
	err   error
}

func (d *countingDetector) Detect(context.Context) ([]vision.DetectedObject, error) {
	d.calls++
	return []vision.DetectedObject{{Label: "red", X: 10, Y: 20}}, d.err
}

type fixture struct {
	loop     *Loop
	arm      *arm.Arm
	seq      *motion.Sequencer
	speaker  *recordingSpeaker
	listener *voice.ChanListener
	detector *countingDetector
	states   []State
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	f := &fixture{
		arm:      arm.New(nopDriver{}),
		speaker:  &recordingSpeaker{},
		listener: voice.NewChanListener(8),
		detector: &countingDetector{},
		metrics:  metrics.New(),
	}
	f.seq = motion.NewSequencer(f.arm, f.arm.Limits(), motion.Config{StepDeg: 1})

	deps := Deps{
		Listener:  f.listener,
		Speaker:   f.speaker,
		Actuator:  f.arm,
		Sequencer: f.seq,
		Store:     preset.OpenFile(filepath.Join(t.TempDir(), "presets.yaml")),
		Library:   motion.DefaultLibrary(0),
		Detector:  f.detector,
		Metrics:   f.metrics,
	}
	if mutate != nil {
		mutate(&deps)
	}

	loop, err := New(deps)
	require.NoError(t, err)
	loop.OnTransition(func(tr Transition) { f.states = append(f.states, tr.To) })
	f.loop = loop
	return f
}

func TestStep_MotionAction(t *testing.T) {
	f := newFixture(t, nil)

	res := f.loop.Step(context.Background(), "pick up red and put over blue")

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"Executing pick_place for red and blue", "Task Completed"}, f.speaker.Heard())
	assert.Equal(t, res.Announcements, f.speaker.Heard())
	assert.Equal(t, []State{Interpreting, Dispatching, Executing, Announcing, Idle}, f.states)
	assert.Equal(t, 1, f.detector.calls)
	assert.Equal(t, arm.Pose(120, 30, 0, 0, 0), f.arm.Snapshot())
	assert.Equal(t, Idle, f.loop.State())
	assert.NotEmpty(t, res.ID)
}

func TestStep_DetectorFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.detector.err = errors.New("camera unplugged")

	res := f.loop.Step(context.Background(), "rotate blue 90 degrees")

	require.NoError(t, res.Err)
	assert.Equal(t, "Rotation complete", res.Announcements[len(res.Announcements)-1])
}

func TestUnseen(t *testing.T) {
	objects := []vision.DetectedObject{{Label: "red"}, {Label: "green"}}

	assert.Empty(t, unseen(objects, command.Params{Color1: command.Red, Color2: "green"}))
	assert.Equal(t, []command.Color{command.Blue},
		unseen(objects, command.Params{Color1: command.Red, Color2: command.Blue}))
	assert.Equal(t, []command.Color{command.Blue}, unseen(nil, command.Params{Color: command.Blue}))
	assert.Empty(t, unseen(nil, command.Params{Name: "home"}))
}

func TestStep_SaveThenLoadPreset(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	pose := arm.Pose(100, 40, 20, 10, 5)
	require.NoError(t, f.seq.MoveTo(ctx, pose))

	res := f.loop.Step(ctx, "save preset home")
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"Preset home saved"}, res.Announcements)
	assert.Equal(t, []State{Interpreting, Dispatching, Announcing, Idle}, f.states)

	require.NoError(t, f.seq.MoveTo(ctx, arm.Home()))
	f.states = nil

	res = f.loop.Step(ctx, "load preset home")
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"Preset home loaded"}, res.Announcements)
	assert.Equal(t, []State{Interpreting, Dispatching, Executing, Announcing, Idle}, f.states)
	assert.Equal(t, pose, f.arm.Snapshot())
	assert.Equal(t, 0, f.detector.calls)
}

func TestStep_LoadOutOfRangePresetDoesNotMove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bad:\n  base: 150\n  lift: 250\n"), 0o644))
	f := newFixture(t, func(d *Deps) {
		d.Store = preset.OpenFile(path)
	})

	res := f.loop.Step(context.Background(), "load preset bad")

	var oor *arm.OutOfRangeError
	require.ErrorAs(t, res.Err, &oor)
	assert.Equal(t, arm.Lift, oor.Joint)
	assert.Equal(t, []string{"Cannot move lift to 250 degrees"}, res.Announcements)
	assert.Equal(t, []State{Interpreting, Dispatching, Announcing, Idle}, f.states)
	for _, j := range arm.AllJoints() {
		_, moved := f.arm.Angle(j)
		assert.False(t, moved, "joint %s moved", j)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Errors.WithLabelValues("out_of_range")))
}

func TestStep_PresetProgramsShareOneMetricLabel(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for _, name := range []string{"home", "rest", "wave"} {
		require.NoError(t, f.loop.Step(ctx, "save preset "+name).Err)
		require.NoError(t, f.loop.Step(ctx, "load preset "+name).Err)
	}

	assert.Equal(t, 1, testutil.CollectAndCount(f.metrics.ProgramDuration))
	f.metrics.ProgramDuration.WithLabelValues(motion.PresetKind, "ok")
	assert.Equal(t, 1, testutil.CollectAndCount(f.metrics.ProgramDuration), "series labelled %q", motion.PresetKind)
}

func TestStep_LoadUnknownPresetStaysIdle(t *testing.T) {
	f := newFixture(t, nil)

	res := f.loop.Step(context.Background(), "load preset unknown")

	assert.True(t, preset.IsNotFound(res.Err))
	assert.Equal(t, []string{"Preset unknown not found"}, f.speaker.Heard())
	assert.Equal(t, Idle, f.loop.State())
	assert.False(t, res.Exit)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Errors.WithLabelValues("preset_not_found")))
}

func TestStep_EmptyPresetNameRejected(t *testing.T) {
	f := newFixture(t, nil)

	res := f.loop.Step(context.Background(), "save preset")

	assert.ErrorIs(t, res.Err, preset.ErrEmptyName)
	assert.Equal(t, []string{MsgNameMissing}, res.Announcements)
	names, err := f.loop.deps.Store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestStep_Unrecognized(t *testing.T) {
	f := newFixture(t, nil)

	res := f.loop.Step(context.Background(), "make me a sandwich")

	assert.NoError(t, res.Err)
	assert.Equal(t, []string{MsgNotUnderstood}, f.speaker.Heard())
	assert.Equal(t, []State{Interpreting, Dispatching, Announcing, Idle}, f.states)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Utterances.WithLabelValues("unrecognized")))
}

func TestStep_OutOfRangeAbortsProgram(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		limits := arm.DefaultLimits()
		limits[arm.Lift] = arm.Limit{Min: 0, Max: 50}
		d.Sequencer = motion.NewSequencer(d.Actuator, limits, motion.Config{StepDeg: 1})
	})

	res := f.loop.Step(context.Background(), "rotate red 90 degrees")

	var oor *arm.OutOfRangeError
	require.ErrorAs(t, res.Err, &oor)
	assert.Equal(t, "Cannot move lift to 60 degrees", res.Announcements[len(res.Announcements)-1])
	assert.Equal(t, Idle, f.loop.State())
	// Base already reached 90 before lift failed.
	assert.Equal(t, 90, f.arm.Current(arm.Base))
	_, moved := f.arm.Angle(arm.Wrist)
	assert.False(t, moved)
}

func TestStep_ExitShutsDown(t *testing.T) {
	var closed []string
	res := &Resources{}
	res.AddFunc("servo", func() error { closed = append(closed, "servo"); return nil })
	f := newFixture(t, func(d *Deps) { d.Resources = res })

	r := f.loop.Step(context.Background(), "exit")

	assert.True(t, r.Exit)
	assert.Equal(t, []string{MsgShuttingDown}, f.speaker.Heard())
	assert.Equal(t, ShuttingDown, f.loop.State())
	assert.Equal(t, []State{Interpreting, Dispatching, ShuttingDown}, f.states)
	assert.Equal(t, []string{"servo"}, closed)

	// Terminal: further utterances are ignored.
	r = f.loop.Step(context.Background(), "rotate red 90 degrees")
	assert.True(t, r.Exit)
	assert.Len(t, f.speaker.Heard(), 1)
	assert.Equal(t, []string{"servo"}, closed)
}

func TestStep_SpeakerFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.speaker.err = errors.New("no audio")

	res := f.loop.Step(context.Background(), "rotate blue 90 degrees")

	assert.NoError(t, res.Err)
	assert.Equal(t, Idle, f.loop.State())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Errors.WithLabelValues("speaker")))
}

func TestRun_ProcessesUntilExit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.listener.Submit(ctx, "rotate blue 90 degrees"))
	require.NoError(t, f.listener.Submit(ctx, "exit"))
	require.NoError(t, f.listener.Submit(ctx, "pick up red and put over blue"))

	require.NoError(t, f.loop.Run(ctx))

	heard := f.speaker.Heard()
	assert.Equal(t, []string{"Executing rotate for blue", "Rotation complete", MsgShuttingDown}, heard)
	assert.Equal(t, ShuttingDown, f.loop.State())
	assert.Equal(t, Listening, f.states[0])
}

func TestRun_ListenerClosed(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.listener.Close())

	require.NoError(t, f.loop.Run(context.Background()))
	assert.Equal(t, ShuttingDown, f.loop.State())
	assert.Equal(t, []string{MsgShuttingDown}, f.speaker.Heard())
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, ShuttingDown, f.loop.State())
}

func TestOnAnnouncement(t *testing.T) {
	f := newFixture(t, nil)
	var got []Announcement
	f.loop.OnAnnouncement(func(a Announcement) { got = append(got, a) })

	res := f.loop.Step(context.Background(), "hello")

	require.Len(t, got, 1)
	assert.Equal(t, MsgNotUnderstood, got[0].Text)
	assert.Equal(t, res.ID, got[0].UtteranceID)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "shutting_down", ShuttingDown.String())
	assert.Equal(t, "unknown", State(99).String())
}
