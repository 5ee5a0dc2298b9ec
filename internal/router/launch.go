package router

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"

	"github.com/discernus/discernus/internal/config"
	"github.com/discernus/discernus/internal/worker"
	"github.com/discernus/discernus/pkg/pipeline"
)

// SubprocessLauncher starts a worker binary on the local host for each task.
// The worker receives its task and tool command through the environment
// contract in internal/worker.
type SubprocessLauncher struct {
	WorkerBinary string   // Path to the worker executable (default "discernus-worker" from PATH)
	ToolCommand  []string // Tool argv the worker will execute
	Environment  []string // Extra environment entries for the worker
	InstanceName string
	RedisURL     string
}

// Launch spawns the worker process and returns once it has started.
// The process is reaped in the background; its outcome reaches the router
// only through the completion stream.
func (l *SubprocessLauncher) Launch(ctx context.Context, task *pipeline.TaskEnvelope) error {
	binary := l.WorkerBinary
	if binary == "" {
		binary = "discernus-worker"
	}

	commandJSON, err := worker.EncodeToolCommand(l.ToolCommand)
	if err != nil {
		return err
	}

	cmd := exec.Command(binary)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=%s", worker.EnvInstanceName, l.InstanceName),
		fmt.Sprintf("%s=%s", worker.EnvRedisURL, l.RedisURL),
		fmt.Sprintf("%s=%s", worker.EnvTaskID, task.ID),
		fmt.Sprintf("%s=%s", worker.EnvTaskType, task.Type),
		fmt.Sprintf("%s=%s", worker.EnvTaskPayload, task.Payload),
		fmt.Sprintf("%s=%s", worker.EnvToolCommand, commandJSON),
	)
	cmd.Env = append(cmd.Env, l.Environment...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start worker process: %w", err)
	}

	// Reap in the background; the exit status is informational only.
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Printf("[Router] Worker for task %s exited with error: %v", task.ID, err)
		}
	}()

	return nil
}

// BuildRegistry constructs the type-to-launcher registry from worker
// configuration. Container workers require a Docker launcher factory;
// pass nil to reject container modes (e.g., when no daemon is available).
func BuildRegistry(cfg *config.Config, containers *ContainerLauncherFactory) (map[string]Launcher, error) {
	registry := make(map[string]Launcher, len(cfg.Workers))

	for taskType, w := range cfg.Workers {
		switch w.EffectiveMode() {
		case config.WorkerModeSubprocess:
			registry[taskType] = &SubprocessLauncher{
				ToolCommand:  w.Command,
				Environment:  w.Environment,
				InstanceName: cfg.Instance,
				RedisURL:     cfg.RedisURL,
			}
		case config.WorkerModeContainer:
			if containers == nil {
				return nil, fmt.Errorf("worker '%s' needs a container launcher but Docker is not available", taskType)
			}
			registry[taskType] = containers.For(w)
		}
	}

	return registry, nil
}
