// Package control runs the voice control loop: wait for an utterance,
// interpret it, dispatch it to the sequencer or the preset store, and
// announce the outcome.
package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/VoxArm/internal/arm"
	"github.com/cjeanneret/VoxArm/internal/debug"
	"github.com/cjeanneret/VoxArm/internal/logic/command"
	"github.com/cjeanneret/VoxArm/internal/logic/motion"
	"github.com/cjeanneret/VoxArm/internal/metrics"
	"github.com/cjeanneret/VoxArm/internal/preset"
	"github.com/cjeanneret/VoxArm/internal/vision"
	"github.com/cjeanneret/VoxArm/internal/voice"
)

// Fixed announcements.
const (
	MsgNotUnderstood = "Sorry, I didn't understand."
	MsgShuttingDown  = "Shutting down"
	MsgNameMissing   = "Please say a preset name"
	MsgMotionAborted = "Motion aborted"
)

const announceTimeout = 15 * time.Second

// Deps are the collaborators of a Loop. Listener, Speaker, Actuator,
// Sequencer and Store are required.
type Deps struct {
	Listener  voice.Listener
	Speaker   voice.Speaker
	Actuator  arm.Actuator
	Sequencer *motion.Sequencer
	Store     preset.Store
	Library   *motion.Library  // defaults to motion.DefaultLibrary
	Detector  vision.Detector  // defaults to vision.NopDetector
	Metrics   *metrics.Metrics // optional
	Resources *Resources       // released on shutdown, optional
}

// Result describes one pass through the loop.
type Result struct {
	ID            string
	Text          string
	Action        command.Action
	Params        command.Params
	Announcements []string
	Err           error // the failure behind an error announcement, if any
	Exit          bool
}

// Loop is the control state machine. Steps are serialized; State may be
// read from any goroutine.
type Loop struct {
	deps  Deps
	state atomic.Int32

	stepMu sync.Mutex

	hooksMu       sync.RWMutex
	transitionFns []func(Transition)
	announceFns   []func(Announcement)

	newID func() string
}

// New validates deps and creates a loop in the Idle state.
func New(deps Deps) (*Loop, error) {
	switch {
	case deps.Listener == nil:
		return nil, errors.New("control: listener is required")
	case deps.Speaker == nil:
		return nil, errors.New("control: speaker is required")
	case deps.Actuator == nil:
		return nil, errors.New("control: actuator is required")
	case deps.Sequencer == nil:
		return nil, errors.New("control: sequencer is required")
	case deps.Store == nil:
		return nil, errors.New("control: preset store is required")
	}
	if deps.Library == nil {
		deps.Library = motion.DefaultLibrary(motion.DefaultHold)
	}
	if deps.Detector == nil {
		deps.Detector = vision.NopDetector{}
	}

	l := &Loop{deps: deps, newID: uuid.NewString}
	if m := deps.Metrics; m != nil {
		deps.Sequencer.SetObserver(func(e motion.Event) {
			m.ServoCommands.Add(float64(e.Commands))
		})
		m.ObserveTransition("", Idle.String())
	}
	return l, nil
}

// State returns the current state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// OnTransition registers fn to be called on every state change, from the
// goroutine running the loop.
func (l *Loop) OnTransition(fn func(Transition)) {
	l.hooksMu.Lock()
	defer l.hooksMu.Unlock()
	l.transitionFns = append(l.transitionFns, fn)
}

// OnAnnouncement registers fn to be called for every announcement.
func (l *Loop) OnAnnouncement(fn func(Announcement)) {
	l.hooksMu.Lock()
	defer l.hooksMu.Unlock()
	l.announceFns = append(l.announceFns, fn)
}

// Run processes utterances until an Exit action, the listener reporting
// io.EOF, or ctx being cancelled. Exit and EOF return nil; cancellation
// returns ctx.Err(). Every path ends in ShuttingDown.
func (l *Loop) Run(ctx context.Context) error {
	debug.Section("Control loop")
	for {
		if l.State() == ShuttingDown {
			return nil
		}
		l.transition(Listening, "")
		text, err := l.deps.Listener.AwaitUtterance(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				l.shutdown(ctx, "")
				return ctx.Err()
			case errors.Is(err, io.EOF):
				debug.Info("Listener closed")
				l.shutdown(ctx, "")
				return nil
			default:
				l.shutdown(ctx, "")
				return fmt.Errorf("awaiting utterance: %w", err)
			}
		}
		debug.Live("Heard: %q", text)

		if res := l.Step(ctx, text); res.Exit {
			return nil
		}
	}
}

// Step interprets and dispatches one utterance, announces the outcome and
// returns to Idle, or to ShuttingDown on Exit. Errors never escape: they
// become announcements and are reported in Result.Err.
func (l *Loop) Step(ctx context.Context, text string) Result {
	l.stepMu.Lock()
	defer l.stepMu.Unlock()

	res := Result{ID: l.newID(), Text: text}
	if l.State() == ShuttingDown {
		res.Exit = true
		return res
	}

	l.transition(Interpreting, res.ID)
	res.Action, res.Params = command.Interpret(text)
	debug.Action(res.Action.String(), res.Params)
	if m := l.deps.Metrics; m != nil {
		m.Utterances.WithLabelValues(res.Action.String()).Inc()
	}

	l.transition(Dispatching, res.ID)
	var msg string
	switch {
	case res.Action == command.SavePreset:
		msg, res.Err = l.savePreset(ctx, res.Params.Name)
	case res.Action == command.LoadPreset:
		msg, res.Err = l.loadPreset(ctx, res.ID, res.Params.Name)
	case res.Action.IsMotion():
		intro := fmt.Sprintf("Executing %s for %s", res.Action, res.Params)
		l.announce(ctx, res.ID, intro)
		res.Announcements = append(res.Announcements, intro)
		msg, res.Err = l.runProgram(ctx, res.ID, res.Action.String(), res.Params)
	case res.Action == command.Exit:
		res.Exit = true
	default:
		msg = MsgNotUnderstood
	}

	if res.Exit {
		l.shutdown(ctx, res.ID)
		res.Announcements = append(res.Announcements, MsgShuttingDown)
		return res
	}

	if res.Err != nil {
		debug.Error(res.Err)
		if m := l.deps.Metrics; m != nil {
			m.Errors.WithLabelValues(errorKind(res.Err)).Inc()
		}
	}
	l.transition(Announcing, res.ID)
	l.announce(ctx, res.ID, msg)
	res.Announcements = append(res.Announcements, msg)
	l.transition(Idle, res.ID)
	return res
}

func (l *Loop) savePreset(ctx context.Context, name string) (string, error) {
	if name == "" {
		return MsgNameMissing, preset.ErrEmptyName
	}
	w := arm.SnapshotOf(l.deps.Actuator)
	if err := l.deps.Store.Save(ctx, name, w); err != nil {
		return fmt.Sprintf("Could not save preset %s", name), err
	}
	debug.Info("Preset %q saved: %s", name, w)
	return fmt.Sprintf("Preset %s saved", name), nil
}

func (l *Loop) loadPreset(ctx context.Context, id, name string) (string, error) {
	if name == "" {
		return MsgNameMissing, preset.ErrEmptyName
	}
	w, err := l.deps.Store.Load(ctx, name)
	if err != nil {
		if preset.IsNotFound(err) {
			return fmt.Sprintf("Preset %s not found", name), err
		}
		return fmt.Sprintf("Could not load preset %s", name), err
	}
	// Presets come from disk or redis and may have been edited by hand.
	// Reject the whole pose before any joint moves.
	if err := l.deps.Sequencer.Limits().CheckWaypoint(w); err != nil {
		return outOfRangeMessage(err), fmt.Errorf("preset %s: %w", name, err)
	}
	return l.execute(ctx, id, motion.FromPreset(name, w))
}

func (l *Loop) runProgram(ctx context.Context, id, name string, params command.Params) (string, error) {
	p, ok := l.deps.Library.Lookup(name)
	if !ok {
		return MsgNotUnderstood, fmt.Errorf("no program for action %s", name)
	}

	// Detection is advisory: programs are fixed, so a failed detection
	// only gets logged.
	objects, err := l.deps.Detector.Detect(ctx)
	if err != nil {
		debug.Error(fmt.Errorf("detection: %w", err))
	} else {
		debug.Info("Detected objects: %v", objects)
		if missing := unseen(objects, params); len(missing) > 0 {
			debug.Info("Not in view: %v", missing)
		}
	}

	return l.execute(ctx, id, p)
}

// unseen lists the colors named in params that no detected object carries.
func unseen(objects []vision.DetectedObject, params command.Params) []command.Color {
	var missing []command.Color
	for _, c := range []command.Color{params.Color1, params.Color2, params.Color} {
		if c == "" {
			continue
		}
		if _, ok := vision.Find(objects, string(c)); !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

func (l *Loop) execute(ctx context.Context, id string, p *motion.Program) (string, error) {
	l.transition(Executing, id)
	start := time.Now()
	err := l.deps.Sequencer.Execute(ctx, p)
	if m := l.deps.Metrics; m != nil {
		m.ObserveProgram(p.Kind(), time.Since(start), err)
	}
	if err == nil {
		return p.Completion(), nil
	}

	var oor *arm.OutOfRangeError
	switch {
	case errors.As(err, &oor):
		return outOfRangeMessage(oor), err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return MsgMotionAborted, err
	default:
		return "Motion failed", err
	}
}

// shutdown announces the shutdown, enters the terminal state and releases
// resources.
func (l *Loop) shutdown(ctx context.Context, id string) {
	if l.State() == ShuttingDown {
		return
	}
	l.announce(ctx, id, MsgShuttingDown)
	l.transition(ShuttingDown, id)
	if r := l.deps.Resources; r != nil {
		if err := r.Close(); err != nil {
			debug.Error(err)
		}
	}
}

// announce speaks text. Speaker failures are logged and never fail the
// step. The announcement outlives ctx cancellation so an aborted motion
// is still reported.
func (l *Loop) announce(ctx context.Context, id, text string) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), announceTimeout)
	defer cancel()

	debug.Announce(text)
	err := l.deps.Speaker.Announce(actx, text)
	if err != nil {
		debug.Error(fmt.Errorf("announce %q: %w", text, err))
	}
	if m := l.deps.Metrics; m != nil {
		m.Announcements.Inc()
		if err != nil {
			m.Errors.WithLabelValues("speaker").Inc()
		}
	}

	a := Announcement{UtteranceID: id, Text: text, At: time.Now()}
	l.hooksMu.RLock()
	defer l.hooksMu.RUnlock()
	for _, fn := range l.announceFns {
		fn(a)
	}
}

func (l *Loop) transition(to State, id string) {
	from := State(l.state.Swap(int32(to)))
	if from == to {
		return
	}
	debug.Transition(from.String(), to.String())
	if m := l.deps.Metrics; m != nil {
		m.ObserveTransition(from.String(), to.String())
	}

	t := Transition{From: from, To: to, UtteranceID: id, At: time.Now()}
	l.hooksMu.RLock()
	defer l.hooksMu.RUnlock()
	for _, fn := range l.transitionFns {
		fn(t)
	}
}

func outOfRangeMessage(err error) string {
	var oor *arm.OutOfRangeError
	if errors.As(err, &oor) {
		return fmt.Sprintf("Cannot move %s to %d degrees", oor.Joint, oor.Angle)
	}
	return "Motion failed"
}

func errorKind(err error) string {
	var oor *arm.OutOfRangeError
	switch {
	case errors.As(err, &oor):
		return "out_of_range"
	case preset.IsNotFound(err):
		return "preset_not_found"
	case errors.Is(err, preset.ErrEmptyName):
		return "preset_name_missing"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "aborted"
	}
	return "io"
}
