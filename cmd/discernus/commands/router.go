package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/discernus/discernus/internal/config"
	dockerpkg "github.com/discernus/discernus/internal/docker"
	"github.com/discernus/discernus/internal/printer"
	"github.com/discernus/discernus/internal/router"
)

var (
	routerConsumer string
	routerNetwork  string
)

var routerCmd = &cobra.Command{
	Use:   "router",
	Short: "Run the task router until interrupted",
	Long: `Run the task router: consume tasks from the task stream, launch the
configured worker for each task type, and reconcile completions back
against in-flight state.

Multiple routers may run against the same instance; the consumer group
partitions tasks between them, and tasks stuck with a crashed router are
reclaimed after the configured idle threshold.

Examples:
  # Run with an auto-generated consumer name
  discernus router

  # Pin the consumer name (useful for stable reclaim semantics)
  discernus router --consumer router-1`,
	RunE: runRouter,
}

func init() {
	routerCmd.Flags().StringVar(&routerConsumer, "consumer", "", "Consumer name within the router group (auto-generated if omitted)")
	routerCmd.Flags().StringVar(&routerNetwork, "network", "", "Docker network for container workers")
	rootCmd.AddCommand(routerCmd)
}

func runRouter(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := connectClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		return printer.ErrorWithContext(
			"Redis unreachable",
			err.Error(),
			map[string]string{"redis_url": cfg.RedisURL},
			[]string{"Check that Redis is running and reachable"},
		)
	}

	containers, err := containerFactory(ctx, cfg)
	if err != nil {
		return err
	}

	registry, err := router.BuildRegistry(cfg, containers)
	if err != nil {
		return err
	}
	if len(registry) == 0 {
		return printer.Error(
			"no workers configured",
			"The router has nothing to dispatch: the workers section of the configuration is empty.",
			[]string{"Add at least one worker keyed by task type"},
		)
	}

	consumer := routerConsumer
	if consumer == "" {
		consumer = fmt.Sprintf("router-%s", uuid.New().String()[:8])
	}

	r, err := router.New(client, consumer, registry, cfg.Router.BatchSize, cfg.Router.ReclaimIdleDuration())
	if err != nil {
		return err
	}

	printer.Success("Router %s started for instance %q (%d worker types)\n", consumer, cfg.Instance, len(registry))

	errCh := make(chan error, 2)
	go func() { errCh <- r.DispatchLoop(ctx) }()
	go func() { errCh <- r.ReconcileLoop(ctx) }()

	<-ctx.Done()
	printer.Info("Shutting down router %s (%d tasks in flight)\n", consumer, r.InFlight())

	// Both loops exit on context cancellation.
	<-errCh
	<-errCh
	return nil
}

// containerFactory builds the Docker-backed launcher factory, but only when
// some worker actually needs it. Subprocess-only instances must work without
// a Docker daemon.
func containerFactory(ctx context.Context, cfg *config.Config) (*router.ContainerLauncherFactory, error) {
	needed := false
	for _, w := range cfg.Workers {
		if w.EffectiveMode() == config.WorkerModeContainer {
			needed = true
			break
		}
	}
	if !needed {
		return nil, nil
	}

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return nil, err
	}

	return &router.ContainerLauncherFactory{
		DockerClient: cli,
		InstanceName: cfg.Instance,
		RedisURL:     cfg.RedisURL,
		NetworkName:  routerNetwork,
	}, nil
}
