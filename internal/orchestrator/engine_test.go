package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discernus/discernus/pkg/pipeline"
)

func setupTestClient(t *testing.T) *pipeline.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := pipeline.NewClient(&redis.Options{Addr: mr.Addr()}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client
}

func newTestEngine(t *testing.T, client *pipeline.Client) *Engine {
	t.Helper()

	engine, err := NewEngine(client, 10*time.Millisecond)
	require.NoError(t, err)
	return engine
}

// startEchoWorker consumes tasks and completes each with an artifact holding
// transform(payload). It stops when the test context is cancelled.
func startEchoWorker(t *testing.T, ctx context.Context, client *pipeline.Client, transform func([]byte) []byte) {
	t.Helper()

	require.NoError(t, client.EnsureTaskGroup(ctx, "workers"))

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			tasks, err := client.ReadTasks(ctx, "workers", "echo-1", 10, -1)
			if err != nil {
				return
			}
			for _, task := range tasks {
				input, err := client.ResolvePayload(ctx, task.Payload)
				if err != nil {
					client.Complete(ctx, task.ID, "", err.Error())
					client.AckTask(ctx, "workers", task.ID)
					continue
				}
				hash, err := client.PutArtifact(ctx, transform(input))
				if err != nil {
					return
				}
				client.Complete(ctx, task.ID, hash, "")
				client.AckTask(ctx, "workers", task.ID)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
}

func TestNewEngine(t *testing.T) {
	client := setupTestClient(t)

	_, err := NewEngine(client, 0)
	assert.Error(t, err)

	_, err = NewEngine(client, -time.Second)
	assert.Error(t, err)

	engine, err := NewEngine(client, time.Millisecond)
	require.NoError(t, err)
	assert.NotNil(t, engine)
}

func TestSubmitAndAwaitEcho(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := setupTestClient(t)
	engine := newTestEngine(t, client)
	startEchoWorker(t, ctx, client, func(in []byte) []byte { return in })

	result, err := engine.SubmitAndAwait(ctx, "echo", "hello pipeline", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello pipeline", string(result))
}

func TestSubmitAndAwaitCorrelatesUnderNoise(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := setupTestClient(t)
	engine := newTestEngine(t, client)

	// Pre-existing completions for tasks this engine never submitted.
	noiseHash, err := client.PutArtifact(ctx, []byte("noise"))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := client.Complete(ctx, "9999999999999-0", noiseHash, "")
		require.NoError(t, err)
	}

	startEchoWorker(t, ctx, client, func(in []byte) []byte { return append([]byte("got:"), in...) })

	// More noise arriving while we wait.
	go func() {
		for i := 0; i < 5; i++ {
			client.Complete(ctx, "8888888888888-0", "", "unrelated failure")
			time.Sleep(2 * time.Millisecond)
		}
	}()

	result, err := engine.SubmitAndAwait(ctx, "analysis", "payload-A", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "got:payload-A", string(result))
}

func TestSubmitAndAwaitFailedTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := setupTestClient(t)
	engine := newTestEngine(t, client)

	require.NoError(t, client.EnsureTaskGroup(ctx, "workers"))
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			tasks, err := client.ReadTasks(ctx, "workers", "w1", 10, -1)
			if err != nil {
				return
			}
			for _, task := range tasks {
				client.Complete(ctx, task.ID, "", "tool exited with code 2")
				client.AckTask(ctx, "workers", task.ID)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	_, err := engine.SubmitAndAwait(ctx, "analysis", "doomed", 5*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool exited with code 2")
}

func TestSubmitAndAwaitTimeout(t *testing.T) {
	ctx := context.Background()
	client := setupTestClient(t)
	engine := newTestEngine(t, client)

	// No worker: the task is enqueued but never completed.
	start := time.Now()
	_, err := engine.SubmitAndAwait(ctx, "analysis", "nobody home", 100*time.Millisecond)
	require.Error(t, err)
	assert.True(t, pipeline.IsTimeout(err), "expected timeout error, got %v", err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestLateCompletionHasNoEffect(t *testing.T) {
	ctx := context.Background()
	client := setupTestClient(t)
	engine := newTestEngine(t, client)

	// First await times out.
	staleID, err := client.Enqueue(ctx, "analysis", "slow")
	require.NoError(t, err)
	_, err = engine.AwaitCompletion(ctx, staleID, 50*time.Millisecond)
	require.True(t, pipeline.IsTimeout(err))

	// The worker finishes anyway, long after anyone cared.
	staleHash, err := client.PutArtifact(ctx, []byte("stale result"))
	require.NoError(t, err)
	_, err = client.Complete(ctx, staleID, staleHash, "")
	require.NoError(t, err)

	// A fresh await for a different task must not be handed the stale result.
	freshID, err := client.Enqueue(ctx, "analysis", "fresh")
	require.NoError(t, err)
	freshHash, err := client.PutArtifact(ctx, []byte("fresh result"))
	require.NoError(t, err)
	_, err = client.Complete(ctx, freshID, freshHash, "")
	require.NoError(t, err)

	result, err := engine.AwaitCompletion(ctx, freshID, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "fresh result", string(result))
}

func TestAwaitCompletionContextCancel(t *testing.T) {
	client := setupTestClient(t)
	engine := newTestEngine(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	taskID, err := client.Enqueue(ctx, "analysis", "cancelled")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := engine.AwaitCompletion(ctx, taskID, time.Minute)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("await did not observe cancellation")
	}
}

func TestRunSaga(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := setupTestClient(t)
	engine := newTestEngine(t, client)
	startEchoWorker(t, ctx, client, func(in []byte) []byte { return append(in, '!') })

	steps := []Step{
		{Type: "validation", Build: func(prev []byte) (string, error) {
			return "seed", nil
		}},
		{Type: "analysis", Build: func(prev []byte) (string, error) {
			return string(prev), nil
		}},
		{Type: "synthesis", Build: func(prev []byte) (string, error) {
			return string(prev), nil
		}},
	}

	result, err := engine.RunSaga(ctx, steps, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "seed!!!", string(result))
}

func TestRunSagaAbortsOnFailure(t *testing.T) {
	ctx := context.Background()
	client := setupTestClient(t)
	engine := newTestEngine(t, client)

	executed := 0
	steps := []Step{
		{Type: "validation", Build: func(prev []byte) (string, error) {
			executed++
			return "seed", nil
		}},
		{Type: "analysis", Build: func(prev []byte) (string, error) {
			executed++
			return "", nil
		}},
	}

	// No worker: the first step times out and the second never builds.
	_, err := engine.RunSaga(ctx, steps, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, pipeline.IsTimeout(err))
	assert.Equal(t, 1, executed)

	_, err = engine.RunSaga(ctx, nil, time.Second)
	assert.Error(t, err)
}
