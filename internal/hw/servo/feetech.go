package servo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cjeanneret/VoxArm/internal/debug"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"
)

// Raw position resolution of STS bus servos: 4096 ticks per turn.
const ticksPerTurn = 4096

// FeetechConfig holds the configuration for a Feetech (STS) servo bus.
type FeetechConfig struct {
	Port      string      // serial port; empty = first non-Bluetooth port found
	BaudRate  int         // default 1_000_000
	IDs       map[int]int // servo channel -> bus servo ID
	CenterRaw int         // raw position at 90°, default 2048
	Timeout   time.Duration
}

// Feetech drives STS bus servos through a single sync-write group.
type Feetech struct {
	bus     *feetech.Bus
	group   *feetech.ServoGroup
	cfg     FeetechConfig
	timeout time.Duration
}

// NewFeetech opens the bus and enables torque on every configured servo.
func NewFeetech(ctx context.Context, cfg FeetechConfig) (*Feetech, error) {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = 1_000_000
	}
	if cfg.CenterRaw <= 0 {
		cfg.CenterRaw = ticksPerTurn / 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 100 * time.Millisecond
	}
	if cfg.Port == "" {
		port, err := FindPort()
		if err != nil {
			return nil, err
		}
		cfg.Port = port
	}

	debug.Info("Opening Feetech bus on %s (%d baud)", cfg.Port, cfg.BaudRate)
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	ids := make([]int, 0, len(cfg.IDs))
	for _, id := range cfg.IDs {
		ids = append(ids, id)
	}
	group := feetech.NewServoGroupByIDs(bus, ids...)

	if err := group.EnableAll(ctx); err != nil {
		bus.Close()
		return nil, fmt.Errorf("enable torque: %w", err)
	}

	return &Feetech{
		bus:     bus,
		group:   group,
		cfg:     cfg,
		timeout: 10 * cfg.Timeout,
	}, nil
}

// FindPort returns the first serial port that is not a Bluetooth port.
func FindPort() (string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return "", fmt.Errorf("list serial ports: %w", err)
	}
	for _, port := range ports {
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		return port, nil
	}
	return "", fmt.Errorf("no serial port found for servo bus")
}

// AngleToRaw converts degrees (0-180, 90 = center) to a raw bus position.
func AngleToRaw(angle, centerRaw int) int {
	return centerRaw + (angle-90)*ticksPerTurn/360
}

// SetAngle writes a goal position to the servo mapped to channel.
func (f *Feetech) SetAngle(channel int, angle int) error {
	id, ok := f.cfg.IDs[channel]
	if !ok {
		return fmt.Errorf("servo: no bus ID for channel %d", channel)
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	raw := AngleToRaw(angle, f.cfg.CenterRaw)
	if err := f.group.SetPositions(ctx, feetech.PositionMap{id: raw}); err != nil {
		return fmt.Errorf("write position: %w", err)
	}
	return nil
}

// Close disables torque and closes the bus.
func (f *Feetech) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	if err := f.group.DisableAll(ctx); err != nil {
		debug.Info("Warning: failed to disable servos: %v", err)
	}
	return f.bus.Close()
}
