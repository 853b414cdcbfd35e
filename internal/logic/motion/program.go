package motion

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/cjeanneret/VoxArm/internal/arm"
)

// Built-in program names. They match the action names produced by the
// command interpreter.
const (
	PickPlace = "pick_place"
	Rotate    = "rotate"
	Parallel  = "parallel"
)

// PresetKind is the Kind of every program built from a preset.
const PresetKind = "preset"

// DefaultHold is the pause between two waypoints of a built-in program.
const DefaultHold = time.Second

// Program is an immutable, named sequence of waypoints with a hold between
// consecutive waypoints.
type Program struct {
	name       string
	kind       string
	waypoints  []arm.Waypoint
	hold       time.Duration
	completion string
}

// NewProgram builds a program. It fails if no waypoint is given.
func NewProgram(name string, hold time.Duration, completion string, waypoints ...arm.Waypoint) (*Program, error) {
	if len(waypoints) == 0 {
		return nil, fmt.Errorf("program %q has no waypoints", name)
	}
	return &Program{
		name:       name,
		kind:       name,
		waypoints:  slices.Clone(waypoints),
		hold:       hold,
		completion: completion,
	}, nil
}

// FromPreset builds the single-waypoint program that restores a preset.
func FromPreset(name string, w arm.Waypoint) *Program {
	return &Program{
		name:       PresetKind + ":" + name,
		kind:       PresetKind,
		waypoints:  []arm.Waypoint{w},
		completion: fmt.Sprintf("Preset %s loaded", name),
	}
}

// Name returns the program name.
func (p *Program) Name() string { return p.name }

// Kind groups programs for reporting: the name of a built-in program, or
// PresetKind for any preset.
func (p *Program) Kind() string { return p.kind }

// Hold returns the pause between two waypoints.
func (p *Program) Hold() time.Duration { return p.hold }

// Completion returns the message announced after a successful run.
func (p *Program) Completion() string { return p.completion }

// Len returns the number of waypoints.
func (p *Program) Len() int { return len(p.waypoints) }

// Waypoints returns a copy of the program's waypoints.
func (p *Program) Waypoints() []arm.Waypoint { return slices.Clone(p.waypoints) }

// Final returns the last waypoint.
func (p *Program) Final() arm.Waypoint { return p.waypoints[len(p.waypoints)-1] }

// Library is the fixed set of built-in programs, looked up by name.
type Library struct {
	programs map[string]*Program
}

// DefaultLibrary returns the built-in gestures. Poses are given as
// (base, lift, wrist, wrist_rotate, gripper); gripper 30 is closed.
func DefaultLibrary(hold time.Duration) *Library {
	must := func(p *Program, err error) *Program {
		if err != nil {
			panic(err)
		}
		return p
	}
	return NewLibrary(
		must(NewProgram(PickPlace, hold, "Task Completed",
			arm.Pose(90, 60, 30, 0, 0),
			arm.Pose(90, 60, 30, 0, 30),
			arm.Pose(120, 30, 0, 0, 30),
			arm.Pose(120, 30, 0, 0, 0),
		)),
		must(NewProgram(Parallel, hold, "Cubes placed parallel",
			arm.Pose(90, 50, 20, 0, 30),
			arm.Pose(90, 50, 20, 0, 0),
		)),
		must(NewProgram(Rotate, hold, "Rotation complete",
			arm.Pose(90, 60, 30, 0, 30),
			arm.Pose(90, 60, 30, 90, 30),
			arm.Pose(90, 60, 30, 90, 0),
		)),
	)
}

// NewLibrary indexes programs by name.
func NewLibrary(programs ...*Program) *Library {
	l := &Library{programs: make(map[string]*Program, len(programs))}
	for _, p := range programs {
		l.programs[p.name] = p
	}
	return l
}

// Lookup returns the program with the given name.
func (l *Library) Lookup(name string) (*Program, bool) {
	p, ok := l.programs[name]
	return p, ok
}

// Names returns the sorted program names.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.programs))
	for n := range l.programs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
