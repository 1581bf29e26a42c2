// Package config loads engine settings from TOML and turns them into the
// functional options of the engine packages.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/edwinsyarief/mugen"
	"github.com/edwinsyarief/mugen/frame"
	"github.com/edwinsyarief/mugen/logging"
	"github.com/edwinsyarief/mugen/scheduler"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the full engine configuration.
type Config struct {
	Log       Log       `toml:"log"`
	World     World     `toml:"world"`
	Scheduler Scheduler `toml:"scheduler"`
	Transform Transform `toml:"transform"`
	Frame     Frame     `toml:"frame"`
}

// Log configures logging.
type Log struct {
	// Level is one of debug, info, warn or error.
	Level string `toml:"level"`
	// Format is text or json.
	Format string `toml:"format"`
}

// World configures entity storage.
type World struct {
	InitialCapacity int `toml:"initial_capacity"`
}

// Scheduler configures every stage scheduler.
type Scheduler struct {
	// Workers is the pool size; zero uses GOMAXPROCS.
	Workers int `toml:"workers"`
	// Spin is the number of yields before a wave join blocks.
	Spin int `toml:"spin"`
	// ValidateStorage checks storage invariants after every wave.
	ValidateStorage bool `toml:"validate_storage"`
}

// Transform configures the transform system.
type Transform struct {
	// Parallelism caps concurrently composed chunks; zero uses GOMAXPROCS.
	Parallelism int `toml:"parallelism"`
}

// Frame configures the frame loop.
type Frame struct {
	TargetFPS     float64       `toml:"target_fps"`
	StatsInterval time.Duration `toml:"stats_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:       Log{Level: "info", Format: "text"},
		World:     World{InitialCapacity: 1 << 16},
		Scheduler: Scheduler{Spin: 64},
		Frame:     Frame{TargetFPS: 60, StatsInterval: time.Second},
	}
}

// Load reads and validates the TOML file at path, layered over Default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML data over Default and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)) {
		errs = append(errs, fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format))
	}
	if c.World.InitialCapacity < 0 {
		errs = append(errs, fmt.Errorf("%w: world.initial_capacity %d", ErrInvalid, c.World.InitialCapacity))
	}
	if c.Scheduler.Workers < 0 {
		errs = append(errs, fmt.Errorf("%w: scheduler.workers %d", ErrInvalid, c.Scheduler.Workers))
	}
	if c.Scheduler.Spin < 0 {
		errs = append(errs, fmt.Errorf("%w: scheduler.spin %d", ErrInvalid, c.Scheduler.Spin))
	}
	if c.Transform.Parallelism < 0 {
		errs = append(errs, fmt.Errorf("%w: transform.parallelism %d", ErrInvalid, c.Transform.Parallelism))
	}
	if c.Frame.TargetFPS < 0 {
		errs = append(errs, fmt.Errorf("%w: frame.target_fps %v", ErrInvalid, c.Frame.TargetFPS))
	}
	if c.Frame.StatsInterval < 0 {
		errs = append(errs, fmt.Errorf("%w: frame.stats_interval %v", ErrInvalid, c.Frame.StatsInterval))
	}
	return errors.Join(errs...)
}

// Encode writes c as TOML.
func (c Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// NewLogger builds the configured slog logger writing to w.
func (c Config) NewLogger(w io.Writer) *logging.SlogAdapter {
	opts := &slog.HandlerOptions{Level: logging.ParseLevel(c.Log.Level)}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if c.Log.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	}
	return logging.NewSlog(slog.New(h))
}

// NewWorld creates a world with the configured initial capacity.
func (c Config) NewWorld() *mugen.World {
	return mugen.NewWorld(c.World.InitialCapacity)
}

// SchedulerOptions returns the options for a standalone scheduler.
func (c Config) SchedulerOptions(log logging.Logger) []scheduler.Option {
	return []scheduler.Option{
		scheduler.WithWorkers(c.Scheduler.Workers),
		scheduler.WithSpin(c.Scheduler.Spin),
		scheduler.WithValidation(c.Scheduler.ValidateStorage),
		scheduler.WithLogger(log),
	}
}

// FrameOptions returns the options for frame.New.
func (c Config) FrameOptions(log logging.Logger) []frame.Option {
	return []frame.Option{
		frame.WithLogger(log),
		frame.WithWorkers(c.Scheduler.Workers),
		frame.WithSpin(c.Scheduler.Spin),
		frame.WithValidation(c.Scheduler.ValidateStorage),
		frame.WithParallelism(c.Transform.Parallelism),
		frame.WithTargetFPS(c.Frame.TargetFPS),
		frame.WithStatsInterval(c.Frame.StatsInterval),
	}
}
