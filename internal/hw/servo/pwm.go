// Package servo drives the arm's servo channels. PWM drives hobby servos
// from the board's hardware PWM pins; Feetech drives serial bus servos.
package servo

import (
	"fmt"
	"sort"
	"time"

	"github.com/cjeanneret/VoxArm/internal/debug"
	"github.com/cjeanneret/VoxArm/internal/hw/gpio"
)

// PWMConfig holds the hardware configuration for PWM hobby servos.
type PWMConfig struct {
	Pins     map[int]int   // servo channel -> BCM pin (must be PWM capable)
	FreqHz   int           // servo frame rate, usually 50
	MinPulse time.Duration // pulse width at 0°
	MaxPulse time.Duration // pulse width at MaxAngle
	MaxAngle int           // angle reached at MaxPulse, 180 for standard servos
}

// PWM maps angles to pulse widths and writes them through a gpio.PWMDriver.
// The PWM clock ticks once per microsecond, so a duty length is the pulse
// width in µs and the cycle length is the frame period in µs.
type PWM struct {
	gpio     gpio.PWMDriver
	cfg      PWMConfig
	cycleLen uint32
}

// NewPWM configures every pin for PWM. Defaults: 50 Hz, 500-2500 µs, 180°.
func NewPWM(g gpio.PWMDriver, cfg PWMConfig) (*PWM, error) {
	if cfg.FreqHz <= 0 {
		cfg.FreqHz = 50
	}
	if cfg.MinPulse <= 0 {
		cfg.MinPulse = 500 * time.Microsecond
	}
	if cfg.MaxPulse <= 0 {
		cfg.MaxPulse = 2500 * time.Microsecond
	}
	if cfg.MaxAngle <= 0 {
		cfg.MaxAngle = 180
	}
	if cfg.MaxPulse <= cfg.MinPulse {
		return nil, fmt.Errorf("servo: max pulse %v must exceed min pulse %v", cfg.MaxPulse, cfg.MinPulse)
	}

	p := &PWM{
		gpio:     g,
		cfg:      cfg,
		cycleLen: uint32(time.Second / time.Microsecond / time.Duration(cfg.FreqHz)),
	}

	channels := make([]int, 0, len(cfg.Pins))
	for ch := range cfg.Pins {
		channels = append(channels, ch)
	}
	sort.Ints(channels)
	for _, ch := range channels {
		pin := cfg.Pins[ch]
		debug.Verbose("Servo channel %d on PWM pin %d", ch, pin)
		if err := g.SetupPWM(pin, cfg.FreqHz*int(p.cycleLen)); err != nil {
			return nil, fmt.Errorf("setup PWM pin %d: %w", pin, err)
		}
	}
	return p, nil
}

// PulseWidth returns the pulse width for angle.
func (p *PWM) PulseWidth(angle int) time.Duration {
	span := p.cfg.MaxPulse - p.cfg.MinPulse
	return p.cfg.MinPulse + span*time.Duration(angle)/time.Duration(p.cfg.MaxAngle)
}

// SetAngle writes the pulse for angle on channel.
func (p *PWM) SetAngle(channel int, angle int) error {
	pin, ok := p.cfg.Pins[channel]
	if !ok {
		return fmt.Errorf("servo: no PWM pin for channel %d", channel)
	}
	duty := uint32(p.PulseWidth(angle) / time.Microsecond)
	return p.gpio.WritePWM(pin, duty, p.cycleLen)
}

// Close releases the underlying GPIO driver.
func (p *PWM) Close() error {
	return p.gpio.Close()
}
