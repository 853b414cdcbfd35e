// Package preset persists named arm poses.
package preset

import (
	"context"
	"errors"
	"fmt"

	"github.com/cjeanneret/VoxArm/internal/arm"
)

// Store saves and restores presets. Save must not return before the preset
// is durable. Names are case-sensitive.
type Store interface {
	Save(ctx context.Context, name string, w arm.Waypoint) error
	Load(ctx context.Context, name string) (arm.Waypoint, error)
	List(ctx context.Context) ([]string, error)
	Close() error
}

// ErrEmptyName is returned when saving a preset without a name.
var ErrEmptyName = errors.New("preset name is empty")

// NotFoundError reports a Load of a name that was never saved.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("preset %q not found", e.Name)
}

// IsNotFound reports whether err wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// record is the stored form of a waypoint: joint name to angle. Joints
// missing from a record load as arm.HomeAngle and unknown keys are
// ignored, so files written before a joint existed stay readable.
type record map[string]int

func toRecord(w arm.Waypoint) record {
	return record(w.Named())
}

func (r record) waypoint() arm.Waypoint {
	return arm.FromNamed(r)
}
