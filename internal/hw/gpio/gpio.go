package gpio

import (
	"sync"

	"github.com/cjeanneret/VoxArm/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates whether a GPIO is input, output or hardware PWM.
type PinMode int

const (
	Input PinMode = iota
	Output
	InputPullUp
	PWM
)

func (m PinMode) String() string {
	switch m {
	case Input:
		return "input"
	case Output:
		return "output"
	case InputPullUp:
		return "input_pullup"
	case PWM:
		return "pwm"
	default:
		return "unknown"
	}
}

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// PWMDriver is a Driver that can also generate hardware PWM, used to
// drive hobby servos directly from the board.
type PWMDriver interface {
	Driver
	// SetupPWM configures pin for PWM with the given clock frequency (Hz).
	SetupPWM(pin int, clockHz int) error
	// WritePWM sets the duty cycle as dutyLen clock ticks out of cycleLen.
	WritePWM(pin int, dutyLen, cycleLen uint32) error
}

// MockDriver is a test implementation that logs actions and remembers
// the last level written to each pin so reads reflect writes.
type MockDriver struct {
	mu     sync.Mutex
	levels map[int]Level
	duty   map[int]uint32
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (PWMDriver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	}
	return NewRPiRealDriver()
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.levels == nil {
		m.levels = make(map[int]Level)
	}
	m.levels[pin] = level
	return nil
}

// ReadPin returns the last written level. Unwritten pins read High,
// which is the idle state of a pulled-up input.
func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	if lvl, ok := m.levels[pin]; ok {
		return lvl, nil
	}
	return High, nil
}

func (m *MockDriver) SetupPWM(pin int, clockHz int) error {
	debug.GPIO("SetupPWM", pin, clockHz)
	return nil
}

func (m *MockDriver) WritePWM(pin int, dutyLen, cycleLen uint32) error {
	debug.GPIO("WritePWM", pin, dutyLen)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.duty == nil {
		m.duty = make(map[int]uint32)
	}
	m.duty[pin] = dutyLen
	return nil
}

// Duty returns the last duty length written to pin.
func (m *MockDriver) Duty(pin int) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.duty[pin]
	return d, ok
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
