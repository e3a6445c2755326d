package vm

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// ---------------------------------------------------------------------------
// Runtime configuration
// ---------------------------------------------------------------------------

// duration wraps time.Duration so TOML values can be written as "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config is the runtime configuration, loadable from a TOML file.
type Config struct {
	Heap      HeapConfig      `toml:"heap"`
	Scheduler SchedulerConfig `toml:"scheduler"`
}

// HeapConfig tunes the heap sweeper.
type HeapConfig struct {
	// SweepInterval is how often the background sweeper collects.
	SweepInterval duration `toml:"sweep_interval"`
	// SweepEnabled starts the background sweeper with the runtime.
	SweepEnabled bool `toml:"sweep_enabled"`
}

// SchedulerConfig tunes the task scheduler.
type SchedulerConfig struct {
	// IdleSleep bounds how long the run loop sleeps between checks when
	// every task is parked.
	IdleSleep duration `toml:"idle_sleep"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Heap: HeapConfig{
			SweepInterval: duration{30 * time.Second},
			SweepEnabled:  true,
		},
		Scheduler: SchedulerConfig{
			IdleSleep: duration{time.Millisecond},
		},
	}
}

// LoadConfig reads a TOML config file, filling unset fields with
// defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Heap.SweepInterval.Duration <= 0 {
		cfg.Heap.SweepInterval = duration{30 * time.Second}
	}
	if cfg.Scheduler.IdleSleep.Duration <= 0 {
		cfg.Scheduler.IdleSleep = duration{time.Millisecond}
	}
	return cfg, nil
}
