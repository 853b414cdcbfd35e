// Package button watches a momentary push button wired between a GPIO pin
// and ground. The pin is pulled up, so a press reads Low.
package button

import (
	"context"
	"time"

	"github.com/cjeanneret/VoxArm/internal/debug"
	"github.com/cjeanneret/VoxArm/internal/hw/gpio"
)

// Button polls a pulled-up input pin.
type Button struct {
	gpio     gpio.Driver
	pin      int
	interval time.Duration
	debounce int // consecutive Low reads required for a press
}

// New configures pin as a pulled-up input. interval defaults to 50ms.
func New(g gpio.Driver, pin int, interval time.Duration) (*Button, error) {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	if err := g.SetupPin(pin, gpio.InputPullUp); err != nil {
		return nil, err
	}
	return &Button{
		gpio:     g,
		pin:      pin,
		interval: interval,
		debounce: 3,
	}, nil
}

// Pressed reports whether the button currently reads as pressed.
func (b *Button) Pressed() (bool, error) {
	lvl, err := b.gpio.ReadPin(b.pin)
	if err != nil {
		return false, err
	}
	return lvl == gpio.Low, nil
}

// WaitPress blocks until the button is held for the debounce count or ctx
// is done. It returns nil on a press and ctx.Err() otherwise.
func (b *Button) WaitPress(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	held := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pressed, err := b.Pressed()
			if err != nil {
				debug.Error(err)
				held = 0
				continue
			}
			if !pressed {
				held = 0
				continue
			}
			held++
			if held >= b.debounce {
				debug.Info("Stop button pressed (pin %d)", b.pin)
				return nil
			}
		}
	}
}
