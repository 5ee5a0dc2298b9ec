package router

import (
	"context"
	"fmt"
	"log"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/discernus/discernus/internal/config"
	dockerpkg "github.com/discernus/discernus/internal/docker"
	"github.com/discernus/discernus/internal/worker"
	"github.com/discernus/discernus/pkg/pipeline"
)

// ContainerLauncherFactory builds container launchers sharing one Docker
// client and instance-level settings.
type ContainerLauncherFactory struct {
	DockerClient *client.Client
	InstanceName string
	RedisURL     string // Must be reachable from inside worker containers
	NetworkName  string // Optional Docker network to attach workers to
}

// For returns a launcher for one container worker configuration.
func (f *ContainerLauncherFactory) For(w config.Worker) *ContainerLauncher {
	return &ContainerLauncher{
		factory:     f,
		image:       w.Image,
		memoryBytes: w.MemoryBytes(),
		toolCommand: w.Command,
		environment: w.Environment,
	}
}

// ContainerLauncher runs each task in an ephemeral Docker container.
// The image's entrypoint is expected to be the worker binary; task identity
// and tool command arrive through the same environment contract as
// subprocess workers.
type ContainerLauncher struct {
	factory     *ContainerLauncherFactory
	image       string
	memoryBytes int64
	toolCommand []string
	environment []string
}

// Launch creates and starts the worker container, then detaches. The
// container is not auto-removed so operators can inspect failures; cleanup
// is by label (see internal/docker).
func (l *ContainerLauncher) Launch(ctx context.Context, task *pipeline.TaskEnvelope) error {
	f := l.factory

	env := []string{
		fmt.Sprintf("%s=%s", worker.EnvInstanceName, f.InstanceName),
		fmt.Sprintf("%s=%s", worker.EnvRedisURL, f.RedisURL),
		fmt.Sprintf("%s=%s", worker.EnvTaskID, task.ID),
		fmt.Sprintf("%s=%s", worker.EnvTaskType, task.Type),
		fmt.Sprintf("%s=%s", worker.EnvTaskPayload, task.Payload),
	}
	if len(l.toolCommand) > 0 {
		commandJSON, err := worker.EncodeToolCommand(l.toolCommand)
		if err != nil {
			return err
		}
		env = append(env, fmt.Sprintf("%s=%s", worker.EnvToolCommand, commandJSON))
	}
	env = append(env, l.environment...)

	containerConfig := &container.Config{
		Image:  l.image,
		Env:    env,
		Labels: dockerpkg.BuildLabels(f.InstanceName, task.ID, task.Type),
	}

	hostConfig := &container.HostConfig{}
	if f.NetworkName != "" {
		hostConfig.NetworkMode = container.NetworkMode(f.NetworkName)
	}
	if l.memoryBytes > 0 {
		hostConfig.Resources = container.Resources{Memory: l.memoryBytes}
	}

	name := dockerpkg.WorkerContainerName(f.InstanceName, task.Type, task.ID)

	resp, err := f.DockerClient.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return fmt.Errorf("failed to create worker container: %w", err)
	}

	if err := f.DockerClient.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start worker container %s: %w", name, err)
	}

	log.Printf("[Router] Launched worker container %s for task %s", name, task.ID)
	return nil
}
