package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/discernus/discernus/internal/worker"
	"github.com/discernus/discernus/pkg/pipeline"
)

func main() {
	// Exit with appropriate code
	os.Exit(run())
}

// run contains the main logic and returns an exit code.
// This separation makes the logic testable and ensures deferred functions run.
func run() int {
	config, err := worker.LoadConfig()
	if err != nil {
		log.Printf("[ERROR] Configuration error: %v", err)
		return 1
	}

	redisOpts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		log.Printf("[ERROR] Invalid Redis URL: %v", err)
		return 1
	}

	client, err := pipeline.NewClient(redisOpts, config.InstanceName)
	if err != nil {
		log.Printf("[ERROR] Failed to create pipeline client: %v", err)
		return 1
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Ping(ctx); err != nil {
		log.Printf("[ERROR] Redis unreachable at %s: %v", config.RedisURL, err)
		return 1
	}

	if err := worker.New(config, client).Run(ctx); err != nil {
		// The failure already reached the completion stream; the exit code
		// is informational for whoever launched the process.
		return 1
	}

	return 0
}
