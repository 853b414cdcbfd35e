package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cjeanneret/VoxArm/internal/arm"
	"github.com/cjeanneret/VoxArm/internal/config"
	"github.com/cjeanneret/VoxArm/internal/control"
	"github.com/cjeanneret/VoxArm/internal/debug"
	"github.com/cjeanneret/VoxArm/internal/hw/button"
	"github.com/cjeanneret/VoxArm/internal/hw/gpio"
	"github.com/cjeanneret/VoxArm/internal/hw/servo"
	"github.com/cjeanneret/VoxArm/internal/logic/motion"
	"github.com/cjeanneret/VoxArm/internal/metrics"
	"github.com/cjeanneret/VoxArm/internal/preset"
	"github.com/cjeanneret/VoxArm/internal/vision"
	"github.com/cjeanneret/VoxArm/internal/voice"
	"github.com/cjeanneret/VoxArm/internal/web"
)

const (
	webQueueSize     = 16
	redisPingTimeout = 3 * time.Second
)

type RunCommand struct {
	Web      int    `long:"web" optional:"yes" optional-value:"8080" description:"Start the web server; --web alone uses port 8080"`
	Listener string `long:"listener" choice:"console" choice:"web" description:"Override voice.listener"`
}

func (c *RunCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := c.apply(cfg); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return run(ctx, cfg, os.Stdin, stdout)
}

// apply merges command line overrides into cfg.
func (c *RunCommand) apply(cfg *config.Config) error {
	if c.Web != 0 {
		if c.Web < 0 || c.Web > 65535 {
			return fmt.Errorf("--web port must be 1-65535, got %d", c.Web)
		}
		cfg.Web.Port = c.Web
	}
	if c.Listener != "" {
		cfg.Voice.Listener = c.Listener
	}
	if cfg.Voice.Listener == config.ListenerWeb && cfg.Web.Port == 0 {
		return errors.New("the web listener needs the web server, set web.port or pass --web")
	}
	return nil
}

// run wires the hardware and collaborators described by cfg and runs the
// control loop until exit, end of input or ctx cancellation.
func run(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	res := &control.Resources{}
	defer func() {
		if err := res.Close(); err != nil {
			debug.Error(err)
		}
	}()

	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	g, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return fmt.Errorf("init GPIO: %w", err)
	}

	debug.Step(2, "Initializing servo driver")
	driver, err := newServoDriver(ctx, cfg, g)
	if err != nil {
		g.Close()
		return fmt.Errorf("init servos: %w", err)
	}
	if cfg.Servo.Driver != config.DriverPWM {
		res.Add("gpio", g)
	}
	a := newArm(cfg, driver)
	res.Add("arm", a)
	debug.PrintStruct("Joints", cfg.Joints)

	seq := motion.NewSequencer(a, cfg.Limits(), motion.Config{
		StepDeg:   cfg.Motion.StepDeg,
		StepDelay: cfg.StepDelay(),
	})

	debug.Step(3, "Opening preset store")
	store, err := newPresetStore(ctx, cfg)
	if err != nil {
		return err
	}
	res.Add("presets", store)

	debug.Step(4, "Starting voice input")
	listener, submitter := newListener(cfg, in)
	if c, ok := listener.(io.Closer); ok {
		res.Add("listener", c)
	}

	m := metrics.New()
	loop, err := control.New(control.Deps{
		Listener:  listener,
		Speaker:   newSpeaker(cfg, out),
		Actuator:  a,
		Sequencer: seq,
		Store:     store,
		Library:   motion.DefaultLibrary(cfg.Hold()),
		Detector:  newDetector(cfg),
		Metrics:   m,
		Resources: res,
	})
	if err != nil {
		return err
	}

	if cfg.Web.Port > 0 {
		debug.Step(5, "Starting web server")
		stop, err := startWeb(ctx, cfg, loop, a, store, submitter, m)
		if err != nil {
			return err
		}
		res.AddFunc("web", stop)
	}

	if cfg.StopButton.Pin > 0 {
		debug.Step(6, "Watching stop button")
		stop, err := watchStopButton(ctx, g, cfg, cancel)
		if err != nil {
			return err
		}
		res.AddFunc("stop button", stop)
	}

	debug.Section("Listening")
	err = loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newServoDriver(ctx context.Context, cfg *config.Config, g gpio.PWMDriver) (arm.Driver, error) {
	switch cfg.Servo.Driver {
	case config.DriverPWM:
		p := cfg.Servo.PWM
		return servo.NewPWM(g, servo.PWMConfig{
			Pins:     p.Pins,
			FreqHz:   p.FreqHz,
			MinPulse: time.Duration(p.MinPulseUs) * time.Microsecond,
			MaxPulse: time.Duration(p.MaxPulseUs) * time.Microsecond,
		})
	case config.DriverFeetech:
		f := cfg.Servo.Feetech
		return servo.NewFeetech(ctx, servo.FeetechConfig{
			Port:      f.Port,
			BaudRate:  f.BaudRate,
			IDs:       f.IDs,
			CenterRaw: f.CenterRaw,
			Timeout:   cfg.ServoTimeout(),
		})
	default:
		return nil, fmt.Errorf("unsupported servo driver: %s", cfg.Servo.Driver)
	}
}

func newArm(cfg *config.Config, driver arm.Driver) *arm.Arm {
	opts := []arm.Option{arm.WithLimits(cfg.Limits())}
	for _, j := range arm.AllJoints() {
		opts = append(opts, arm.WithChannel(j, cfg.Channel(j)))
	}
	return arm.New(driver, opts...)
}

func newPresetStore(ctx context.Context, cfg *config.Config) (preset.Store, error) {
	switch cfg.Presets.Backend {
	case config.BackendFile:
		debug.Value("Preset file", cfg.Presets.Path)
		return preset.OpenFile(cfg.Presets.Path), nil
	case config.BackendRedis:
		r := cfg.Presets.Redis
		debug.Value("Preset redis", r.Addr)
		var opts []preset.RedisOption
		if r.Prefix != "" {
			opts = append(opts, preset.WithPrefix(r.Prefix))
		}
		store := preset.NewRedis(r.Addr, r.Password, r.DB, opts...)
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			store.Close()
			return nil, fmt.Errorf("connect preset redis at %s: %w", r.Addr, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported preset backend: %s", cfg.Presets.Backend)
	}
}

// newListener returns the utterance source. The ChanListener is non-nil when
// utterances arrive over HTTP.
func newListener(cfg *config.Config, in io.Reader) (voice.Listener, *voice.ChanListener) {
	if cfg.Voice.Listener == config.ListenerWeb {
		ch := voice.NewChanListener(webQueueSize)
		return ch, ch
	}
	return voice.NewConsoleListener(in), nil
}

func newSpeaker(cfg *config.Config, out io.Writer) voice.Speaker {
	console := voice.NewConsoleSpeaker(out)
	if cfg.Voice.TTSCommand == "" {
		return console
	}
	debug.Value("TTS command", cfg.Voice.TTSCommand)
	return voice.MultiSpeaker{console, voice.NewExecSpeaker(cfg.Voice.TTSCommand, cfg.Voice.TTSArgs...)}
}

func newDetector(cfg *config.Config) vision.Detector {
	if cfg.Vision.URL == "" {
		return vision.NopDetector{}
	}
	debug.Value("Vision URL", cfg.Vision.URL)
	return vision.NewHTTPDetector(cfg.Vision.URL, cfg.VisionTimeout())
}

// startWeb serves the HTTP surface until the returned stop function is
// called or ctx is done. Debug output is teed into the status stream.
func startWeb(
	ctx context.Context,
	cfg *config.Config,
	loop *control.Loop,
	a *arm.Arm,
	store preset.Store,
	submitter *voice.ChanListener,
	m *metrics.Metrics,
) (func() error, error) {
	b := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(b)))
	loop.OnTransition(b.PublishTransition)
	loop.OnAnnouncement(b.PublishAnnouncement)

	deps := web.Deps{
		Broadcaster: b,
		State:       loop,
		Pose:        a,
		Presets:     store,
	}
	if submitter != nil {
		deps.Submitter = submitter
	}
	srv, err := web.NewServer(fmt.Sprintf(":%d", cfg.Web.Port), deps, m.Handler())
	if err != nil {
		return nil, err
	}

	webCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- srv.Run(webCtx) }()

	return func() error {
		cancel()
		err := <-done
		debug.SetOutput(os.Stdout)
		return err
	}, nil
}

// watchStopButton cancels the control loop when the stop button is pressed.
func watchStopButton(ctx context.Context, g gpio.Driver, cfg *config.Config, stopLoop context.CancelFunc) (func() error, error) {
	btn, err := button.New(g, cfg.StopButton.Pin, cfg.StopPoll())
	if err != nil {
		return nil, fmt.Errorf("stop button on pin %d: %w", cfg.StopButton.Pin, err)
	}
	debug.Value("Stop button pin", cfg.StopButton.Pin)

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if btn.WaitPress(watchCtx) == nil {
			debug.Info("Stop button pressed")
			stopLoop()
		}
	}()

	return func() error {
		cancel()
		<-done
		return nil
	}, nil
}
