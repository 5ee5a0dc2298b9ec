//go:build integration

package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container for testing.
func setupRedis(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisURL := fmt.Sprintf("redis://%s:%s", host, port.Port())

	cleanup := func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	}

	return redisURL, cleanup
}

func newIntegrationClient(t *testing.T, redisURL string) *Client {
	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)

	client, err := NewClient(opts, "integration")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

// TestIntegration_TaskRoundTrip exercises the full task lifecycle against a
// real Redis: enqueue, group read, artifact store, completion, ack.
func TestIntegration_TaskRoundTrip(t *testing.T) {
	redisURL, cleanup := setupRedis(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := newIntegrationClient(t, redisURL)
	require.NoError(t, client.Ping(ctx))
	require.NoError(t, client.EnsureTaskGroup(ctx, RouterGroup))

	taskID, err := client.Enqueue(ctx, "analysis", "integration payload")
	require.NoError(t, err)

	tasks, err := client.ReadTasks(ctx, RouterGroup, "it-1", 10, time.Second)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, taskID, tasks[0].ID)
	require.Equal(t, "integration payload", tasks[0].Payload)

	hash, err := client.PutArtifact(ctx, []byte("integration result"))
	require.NoError(t, err)

	_, err = client.Complete(ctx, taskID, hash, "")
	require.NoError(t, err)
	require.NoError(t, client.AckTask(ctx, RouterGroup, taskID))

	records, err := client.ReadCompletionsSince(ctx, "0", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, taskID, records[0].TaskID)
	require.False(t, records[0].Failed())

	data, err := client.GetArtifact(ctx, records[0].ResultHash)
	require.NoError(t, err)
	require.Equal(t, "integration result", string(data))
}

// TestIntegration_StaleReclaim verifies pending entries left behind by a
// crashed consumer are reclaimable on real Redis, where entry idle time is
// tracked by the server clock.
func TestIntegration_StaleReclaim(t *testing.T) {
	redisURL, cleanup := setupRedis(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := newIntegrationClient(t, redisURL)
	require.NoError(t, client.EnsureTaskGroup(ctx, RouterGroup))

	taskID, err := client.Enqueue(ctx, "analysis", "orphaned")
	require.NoError(t, err)

	// Consumer reads but never acks - simulating a crash mid-dispatch.
	tasks, err := client.ReadTasks(ctx, RouterGroup, "crashed", 10, time.Second)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	time.Sleep(100 * time.Millisecond)

	reclaimed, err := client.ReclaimStaleTasks(ctx, RouterGroup, "survivor", 50*time.Millisecond, 10)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	require.Equal(t, taskID, reclaimed[0].ID)
}
