package worker

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/discernus/discernus/pkg/pipeline"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEngine(t *testing.T, cfg *Config) (*Engine, *pipeline.Client) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client, err := pipeline.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return New(cfg, client), client
}

func TestEngineRun(t *testing.T) {
	ctx := context.Background()

	t.Run("stores tool output and completes with its hash", func(t *testing.T) {
		engine, client := setupEngine(t, &Config{
			InstanceName: "test-instance",
			TaskID:       "100-0",
			TaskType:     "echo",
			TaskPayload:  "document text",
			ToolCommand:  []string{"cat"},
		})

		require.NoError(t, engine.Run(ctx))

		records, err := client.ReadCompletionsSince(ctx, "0", 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "100-0", records[0].TaskID)
		assert.False(t, records[0].Failed())

		result, err := client.GetArtifact(ctx, records[0].ResultHash)
		require.NoError(t, err)
		assert.Equal(t, []byte("document text"), result)
	})

	t.Run("resolves artifact references before execution", func(t *testing.T) {
		engine, client := setupEngine(t, nil)
		hash, err := client.PutArtifact(ctx, []byte("stored corpus"))
		require.NoError(t, err)

		engine = New(&Config{
			InstanceName: "test-instance",
			TaskID:       "101-0",
			TaskType:     "echo",
			TaskPayload:  "sha256:" + hash,
			ToolCommand:  []string{"cat"},
		}, client)

		require.NoError(t, engine.Run(ctx))

		records, err := client.ReadCompletionsSince(ctx, "0", 10)
		require.NoError(t, err)
		require.Len(t, records, 1)

		result, err := client.GetArtifact(ctx, records[0].ResultHash)
		require.NoError(t, err)
		assert.Equal(t, []byte("stored corpus"), result)
	})

	t.Run("reports tool failure as an error completion", func(t *testing.T) {
		engine, client := setupEngine(t, &Config{
			InstanceName: "test-instance",
			TaskID:       "102-0",
			TaskType:     "broken",
			TaskPayload:  "x",
			ToolCommand:  []string{"sh", "-c", "exit 2"},
		})

		err := engine.Run(ctx)
		require.Error(t, err)

		records, readErr := client.ReadCompletionsSince(ctx, "0", 10)
		require.NoError(t, readErr)
		require.Len(t, records, 1)
		assert.True(t, records[0].Failed())
		assert.Contains(t, records[0].Error, "tool execution failed")
	})

	t.Run("reports missing payload artifact as an error completion", func(t *testing.T) {
		engine, client := setupEngine(t, &Config{
			InstanceName: "test-instance",
			TaskID:       "103-0",
			TaskType:     "echo",
			TaskPayload:  "sha256:" + pipeline.HashBytes([]byte("never stored")),
			ToolCommand:  []string{"cat"},
		})

		err := engine.Run(ctx)
		require.Error(t, err)

		records, readErr := client.ReadCompletionsSince(ctx, "0", 10)
		require.NoError(t, readErr)
		require.Len(t, records, 1)
		assert.True(t, records[0].Failed())
		assert.Contains(t, records[0].Error, "failed to resolve task payload")
	})
}
