package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/VoxArm/internal/arm"
)

// MaxConfigFileBytes bounds the size of a config file.
const MaxConfigFileBytes = 1 << 20

// Servo driver names.
const (
	DriverPWM     = "pwm"
	DriverFeetech = "feetech"
)

// Preset backend names.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Listener names.
const (
	ListenerConsole = "console"
	ListenerWeb     = "web"
)

// JointConfig maps a joint to its servo channel and safe angle range.
type JointConfig struct {
	Channel int `yaml:"channel"`
	Min     int `yaml:"min"` // lowest allowed angle (default 0)
	Max     int `yaml:"max"` // highest allowed angle (default 180)
}

// PWMServoConfig describes hobby servos wired to hardware PWM pins.
type PWMServoConfig struct {
	Pins       map[int]int `yaml:"pins"`         // servo channel -> BCM pin
	FreqHz     int         `yaml:"freq_hz"`      // frame rate (default 50)
	MinPulseUs int         `yaml:"min_pulse_us"` // pulse at 0° (default 500)
	MaxPulseUs int         `yaml:"max_pulse_us"` // pulse at 180° (default 2500)
}

// FeetechServoConfig describes STS bus servos on a serial port.
type FeetechServoConfig struct {
	Port      string      `yaml:"port"`       // empty = autodetect
	BaudRate  int         `yaml:"baud_rate"`  // default 1000000
	IDs       map[int]int `yaml:"ids"`        // servo channel -> bus ID
	CenterRaw int         `yaml:"center_raw"` // raw position at 90° (default 2048)
	TimeoutMs int         `yaml:"timeout_ms"` // per write (default 100)
}

// ServoConfig selects and configures the servo driver.
type ServoConfig struct {
	Driver  string             `yaml:"driver"` // "pwm" or "feetech"
	PWM     PWMServoConfig     `yaml:"pwm"`
	Feetech FeetechServoConfig `yaml:"feetech"`
}

// MotionConfig sets how fast joints sweep.
type MotionConfig struct {
	StepDeg     int `yaml:"step_deg"`      // degrees per command (default 1)
	StepDelayMs int `yaml:"step_delay_ms"` // pause after each command (default 10)
	HoldMs      int `yaml:"hold_ms"`       // pause between waypoints (default 1000)
}

// RedisConfig locates the redis preset store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// PresetsConfig selects where presets are stored.
type PresetsConfig struct {
	Backend string      `yaml:"backend"` // "file" (default) or "redis"
	Path    string      `yaml:"path"`    // YAML file for the file backend
	Redis   RedisConfig `yaml:"redis"`
}

// VoiceConfig selects the speech collaborators.
type VoiceConfig struct {
	Listener   string   `yaml:"listener"`    // "console" (default) or "web"
	TTSCommand string   `yaml:"tts_command"` // e.g. "espeak"; empty = console only
	TTSArgs    []string `yaml:"tts_args"`
}

// VisionConfig locates the object detection service.
type VisionConfig struct {
	URL       string `yaml:"url"` // empty = detection disabled
	TimeoutMs int    `yaml:"timeout_ms"`
}

// StopButtonConfig describes an emergency stop wired to ground.
type StopButtonConfig struct {
	Pin    int `yaml:"pin"` // BCM pin, 0 = no button
	PollMs int `yaml:"poll_ms"`
}

// WebConfig configures the HTTP surface.
type WebConfig struct {
	Port int `yaml:"port"` // 0 = disabled
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Joints     map[string]JointConfig `yaml:"joints"`
	Servo      ServoConfig            `yaml:"servo"`
	Motion     MotionConfig           `yaml:"motion"`
	Presets    PresetsConfig          `yaml:"presets"`
	Voice      VoiceConfig            `yaml:"voice"`
	Vision     VisionConfig           `yaml:"vision"`
	StopButton StopButtonConfig       `yaml:"stop_button"`
	Web        WebConfig              `yaml:"web"`
	Defaults   DefaultsConfig         `yaml:"defaults"`
}

// ValidateConfigPath rejects paths that are empty, contain "..", do not
// end in .yaml or are not directly inside a configs/ directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == filepath.Separator }) {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain ..", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must end in .yaml", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file %s is %d bytes, limit is %d", path, info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	switch c.Servo.Driver {
	case DriverPWM, DriverFeetech:
	case "":
		return fmt.Errorf("servo.driver is required (%s or %s)", DriverPWM, DriverFeetech)
	default:
		return fmt.Errorf("servo.driver %q is not supported", c.Servo.Driver)
	}

	if c.Joints == nil {
		c.Joints = make(map[string]JointConfig)
	}
	channels := make(map[int]string)
	for _, j := range arm.AllJoints() {
		jc, ok := c.Joints[j.String()]
		if !ok {
			jc = JointConfig{Channel: int(j)}
		}
		if jc.Max == 0 {
			jc.Max = arm.MaxAngle
		}
		if jc.Min < arm.MinAngle || jc.Max > arm.MaxAngle || jc.Min >= jc.Max {
			return fmt.Errorf("joints.%s: range [%d, %d] must lie within [%d, %d]", j, jc.Min, jc.Max, arm.MinAngle, arm.MaxAngle)
		}
		if other, dup := channels[jc.Channel]; dup {
			return fmt.Errorf("joints.%s: channel %d already used by %s", j, jc.Channel, other)
		}
		channels[jc.Channel] = j.String()
		c.Joints[j.String()] = jc
	}
	for name := range c.Joints {
		if _, ok := arm.ParseJoint(name); !ok {
			return fmt.Errorf("joints.%s: unknown joint", name)
		}
	}

	if c.Servo.Driver == DriverPWM {
		for ch, name := range channels {
			if _, ok := c.Servo.PWM.Pins[ch]; !ok {
				return fmt.Errorf("servo.pwm.pins: no pin for channel %d (%s)", ch, name)
			}
		}
		if c.Servo.PWM.MinPulseUs > 0 && c.Servo.PWM.MaxPulseUs > 0 && c.Servo.PWM.MaxPulseUs <= c.Servo.PWM.MinPulseUs {
			return fmt.Errorf("servo.pwm: max_pulse_us must exceed min_pulse_us")
		}
	}
	if c.Servo.Driver == DriverFeetech {
		if c.Servo.Feetech.BaudRate <= 0 {
			c.Servo.Feetech.BaudRate = 1_000_000
		}
		if c.Servo.Feetech.CenterRaw <= 0 {
			c.Servo.Feetech.CenterRaw = 2048
		}
		if c.Servo.Feetech.TimeoutMs <= 0 {
			c.Servo.Feetech.TimeoutMs = 100
		}
		for ch, name := range channels {
			if _, ok := c.Servo.Feetech.IDs[ch]; !ok {
				return fmt.Errorf("servo.feetech.ids: no bus ID for channel %d (%s)", ch, name)
			}
		}
	}

	if c.Motion.StepDeg <= 0 {
		c.Motion.StepDeg = 1
	}
	if c.Motion.StepDelayMs <= 0 {
		c.Motion.StepDelayMs = 10
	}
	if c.Motion.HoldMs < 0 {
		return fmt.Errorf("motion.hold_ms must be >= 0, got %d", c.Motion.HoldMs)
	}
	if c.Motion.HoldMs == 0 {
		c.Motion.HoldMs = 1000
	}

	switch c.Presets.Backend {
	case "":
		c.Presets.Backend = BackendFile
	case BackendFile, BackendRedis:
	default:
		return fmt.Errorf("presets.backend %q is not supported", c.Presets.Backend)
	}
	if c.Presets.Path == "" {
		c.Presets.Path = "presets.yaml"
	}
	if c.Presets.Backend == BackendRedis && c.Presets.Redis.Addr == "" {
		c.Presets.Redis.Addr = "localhost:6379"
	}

	switch c.Voice.Listener {
	case "":
		c.Voice.Listener = ListenerConsole
	case ListenerConsole, ListenerWeb:
	default:
		return fmt.Errorf("voice.listener %q is not supported", c.Voice.Listener)
	}

	if c.Vision.TimeoutMs <= 0 {
		c.Vision.TimeoutMs = 2000
	}
	if c.StopButton.PollMs <= 0 {
		c.StopButton.PollMs = 50
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port %d is out of range", c.Web.Port)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// Limits returns the configured angle range of every joint.
func (c *Config) Limits() arm.Limits {
	var l arm.Limits
	for _, j := range arm.AllJoints() {
		jc := c.Joints[j.String()]
		l[j] = arm.Limit{Min: jc.Min, Max: jc.Max}
	}
	return l
}

// Channel returns the servo channel of a joint.
func (c *Config) Channel(j arm.Joint) int {
	return c.Joints[j.String()].Channel
}

// StepDelay returns the pause after each servo command.
func (c *Config) StepDelay() time.Duration {
	return time.Duration(c.Motion.StepDelayMs) * time.Millisecond
}

// Hold returns the pause between two waypoints.
func (c *Config) Hold() time.Duration {
	return time.Duration(c.Motion.HoldMs) * time.Millisecond
}

// VisionTimeout returns the detection request timeout.
func (c *Config) VisionTimeout() time.Duration {
	return time.Duration(c.Vision.TimeoutMs) * time.Millisecond
}

// StopPoll returns the stop button polling interval.
func (c *Config) StopPoll() time.Duration {
	return time.Duration(c.StopButton.PollMs) * time.Millisecond
}

// ServoTimeout returns the bus write timeout.
func (c *Config) ServoTimeout() time.Duration {
	return time.Duration(c.Servo.Feetech.TimeoutMs) * time.Millisecond
}
