package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"

	"github.com/cjeanneret/VoxArm/internal/config"
	"github.com/cjeanneret/VoxArm/internal/debug"
)

type Options struct {
	Config string `short:"c" long:"config" description:"Path to config file" default:"configs/default.yaml"`
	Debug  int    `short:"d" long:"debug" description:"Override defaults.debug_level (0-4)" default:"-1"`

	Run       RunCommand       `command:"run" description:"Listen for voice commands and drive the arm"`
	Interpret InterpretCommand `command:"interpret" alias:"parse" description:"Show how utterances are interpreted, without moving anything"`
	Presets   PresetsCommand   `command:"presets" description:"List stored presets"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

var stdout io.Writer = os.Stdout

func main() {
	parser.LongDescription = "VoxArm - voice-driven control for a 5-servo robotic arm"

	_, err := parser.Parse()
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "voxarm: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config named by --config and initializes the debug
// logger.
func loadConfig() (*config.Config, error) {
	path := filepath.Clean(opts.Config)
	if err := config.ValidateConfigPath(path); err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.Debug >= 0 {
		if opts.Debug > debug.LevelTrace {
			return nil, fmt.Errorf("--debug must be between 0 and %d, got %d", debug.LevelTrace, opts.Debug)
		}
		cfg.Defaults.DebugLevel = opts.Debug
	}

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", path)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	return cfg, nil
}
