package config

import (
	"fmt"
	"os"
	"time"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// Config represents the top-level discernus.yml configuration
type Config struct {
	Version      string              `yaml:"version"`
	Instance     string              `yaml:"instance"`
	RedisURL     string              `yaml:"redis_url,omitempty"` // Default: redis://localhost:6379
	Run          *RunConfig          `yaml:"run,omitempty"`
	Orchestrator *OrchestratorConfig `yaml:"orchestrator,omitempty"`
	Router       *RouterConfig       `yaml:"router,omitempty"`
	Workers      map[string]Worker   `yaml:"workers"`
}

// RunConfig specifies the run directory and the ordered phase list
type RunConfig struct {
	Dir    string   `yaml:"dir"`
	Phases []string `yaml:"phases,omitempty"` // Defaults to the standard five-phase pipeline
}

// OrchestratorConfig specifies wait-protocol behavior
type OrchestratorConfig struct {
	PollInterval string `yaml:"poll_interval,omitempty"` // Completion-stream poll cadence (default 250ms)
	TaskTimeout  string `yaml:"task_timeout,omitempty"`  // Per-step await timeout (default 5m)

	pollInterval time.Duration
	taskTimeout  time.Duration
}

// RouterConfig specifies dispatch-loop behavior
type RouterConfig struct {
	ReclaimIdle string `yaml:"reclaim_idle,omitempty"` // Pending-entry idle time before reclaim (default 60s)
	BatchSize   int    `yaml:"batch_size,omitempty"`   // Tasks read per loop iteration (default 10)

	reclaimIdle time.Duration
}

// Worker represents a single worker configuration, keyed by task type
type Worker struct {
	Mode        string   `yaml:"mode,omitempty"`        // "subprocess" (default) or "container"
	Command     []string `yaml:"command,omitempty"`     // Tool command for subprocess workers
	Image       string   `yaml:"image,omitempty"`       // Required for container workers
	Memory      string   `yaml:"memory,omitempty"`      // Container memory limit, e.g. "512m"
	Environment []string `yaml:"environment,omitempty"` // Extra environment for the worker process
}

const (
	WorkerModeSubprocess = "subprocess"
	WorkerModeContainer  = "container"

	defaultRedisURL     = "redis://localhost:6379"
	defaultPollInterval = 250 * time.Millisecond
	defaultTaskTimeout  = 5 * time.Minute
	defaultReclaimIdle  = 60 * time.Second
	defaultBatchSize    = 10

	// minPollInterval keeps pollers from hammering the broker in a tight loop
	minPollInterval = 50 * time.Millisecond
)

// Load reads and validates a discernus.yml file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return &cfg, nil
}

// Validate performs strict validation on the configuration and applies
// defaults for everything optional.
func (c *Config) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	// Required: instance name
	if c.Instance == "" {
		return fmt.Errorf("instance name is required")
	}

	if c.RedisURL == "" {
		c.RedisURL = defaultRedisURL
	}

	if c.Run != nil {
		if err := c.Run.validate(); err != nil {
			return err
		}
	}

	if c.Orchestrator == nil {
		c.Orchestrator = &OrchestratorConfig{}
	}
	if err := c.Orchestrator.validate(); err != nil {
		return err
	}

	if c.Router == nil {
		c.Router = &RouterConfig{}
	}
	if err := c.Router.validate(); err != nil {
		return err
	}

	for taskType, worker := range c.Workers {
		if err := worker.Validate(taskType); err != nil {
			return err
		}
	}

	return nil
}

func (r *RunConfig) validate() error {
	if r.Dir == "" {
		return fmt.Errorf("run.dir is required when a run section is present")
	}

	seen := make(map[string]bool, len(r.Phases))
	for _, phase := range r.Phases {
		if phase == "" {
			return fmt.Errorf("run.phases entries cannot be empty")
		}
		if seen[phase] {
			return fmt.Errorf("duplicate phase %q in run.phases", phase)
		}
		seen[phase] = true
	}

	return nil
}

func (o *OrchestratorConfig) validate() error {
	o.pollInterval = defaultPollInterval
	if o.PollInterval != "" {
		d, err := time.ParseDuration(o.PollInterval)
		if err != nil {
			return fmt.Errorf("orchestrator.poll_interval: %w", err)
		}
		if d < minPollInterval {
			return fmt.Errorf("orchestrator.poll_interval must be at least %v, got %v", minPollInterval, d)
		}
		o.pollInterval = d
	}

	o.taskTimeout = defaultTaskTimeout
	if o.TaskTimeout != "" {
		d, err := time.ParseDuration(o.TaskTimeout)
		if err != nil {
			return fmt.Errorf("orchestrator.task_timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("orchestrator.task_timeout must be positive, got %v", d)
		}
		o.taskTimeout = d
	}

	return nil
}

func (r *RouterConfig) validate() error {
	r.reclaimIdle = defaultReclaimIdle
	if r.ReclaimIdle != "" {
		d, err := time.ParseDuration(r.ReclaimIdle)
		if err != nil {
			return fmt.Errorf("router.reclaim_idle: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("router.reclaim_idle must be positive, got %v", d)
		}
		r.reclaimIdle = d
	}

	if r.BatchSize < 0 {
		return fmt.Errorf("router.batch_size must be >= 0, got %d", r.BatchSize)
	}
	if r.BatchSize == 0 {
		r.BatchSize = defaultBatchSize
	}

	return nil
}

// Validate performs validation on a single worker configuration
func (w *Worker) Validate(taskType string) error {
	if taskType == "" {
		return fmt.Errorf("worker task type cannot be empty")
	}

	switch w.EffectiveMode() {
	case WorkerModeSubprocess:
		if len(w.Command) == 0 {
			return fmt.Errorf("worker '%s': command is required for subprocess workers", taskType)
		}
	case WorkerModeContainer:
		if w.Image == "" {
			return fmt.Errorf("worker '%s': image is required for container workers", taskType)
		}
	default:
		return fmt.Errorf("worker '%s': unknown mode %q (expected %q or %q)",
			taskType, w.Mode, WorkerModeSubprocess, WorkerModeContainer)
	}

	if w.Memory != "" {
		if _, err := units.RAMInBytes(w.Memory); err != nil {
			return fmt.Errorf("worker '%s': invalid memory limit %q: %w", taskType, w.Memory, err)
		}
	}

	return nil
}

// EffectiveMode returns the worker's mode with the default applied.
func (w *Worker) EffectiveMode() string {
	if w.Mode == "" {
		return WorkerModeSubprocess
	}
	return w.Mode
}

// MemoryBytes returns the parsed container memory limit, or 0 when unset.
// Validate must have succeeded first.
func (w *Worker) MemoryBytes() int64 {
	if w.Memory == "" {
		return 0
	}
	n, _ := units.RAMInBytes(w.Memory)
	return n
}

// PollIntervalDuration returns the validated completion-stream poll cadence.
func (o *OrchestratorConfig) PollIntervalDuration() time.Duration {
	if o.pollInterval == 0 {
		return defaultPollInterval
	}
	return o.pollInterval
}

// TaskTimeoutDuration returns the validated per-step await timeout.
func (o *OrchestratorConfig) TaskTimeoutDuration() time.Duration {
	if o.taskTimeout == 0 {
		return defaultTaskTimeout
	}
	return o.taskTimeout
}

// ReclaimIdleDuration returns the validated pending-entry reclaim threshold.
func (r *RouterConfig) ReclaimIdleDuration() time.Duration {
	if r.reclaimIdle == 0 {
		return defaultReclaimIdle
	}
	return r.reclaimIdle
}
