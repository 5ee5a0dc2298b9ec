package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client provides instance-scoped Redis operations for the pipeline.
// All keys and streams are automatically namespaced with the instance name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// NewClient creates a new pipeline client for the specified instance.
// The client automatically namespaces all keys and streams with the instance name.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: Discernus instance identifier (must not be empty)
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the client should not be used.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
// Returns an error if Redis is not reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// InstanceName returns the instance this client is scoped to.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// Enqueue appends a task to the task stream and returns its assigned ID.
// The ID is the Redis stream entry ID - opaque, strictly increasing within
// the stream, and usable for later completion correlation. The entry is
// visible to all consumer-group members immediately.
func (c *Client) Enqueue(ctx context.Context, taskType, payload string) (string, error) {
	task := &TaskEnvelope{
		Type:         taskType,
		Payload:      payload,
		EnqueuedAtMs: time.Now().UnixMilli(),
	}
	if err := task.Validate(); err != nil {
		return "", fmt.Errorf("invalid task: %w", err)
	}

	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: TaskStreamKey(c.instanceName),
		Values: TaskToValues(task),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	return id, nil
}

// EnsureTaskGroup idempotently creates a consumer group on the task stream.
// "Group already exists" (BUSYGROUP) is not an error. The stream is created
// if it does not exist yet (MKSTREAM), so routers can start before the first
// producer.
func (c *Client) EnsureTaskGroup(ctx context.Context, group string) error {
	return c.ensureGroup(ctx, TaskStreamKey(c.instanceName), group)
}

// EnsureCompletionGroup idempotently creates a consumer group on the
// completion stream.
func (c *Client) EnsureCompletionGroup(ctx context.Context, group string) error {
	return c.ensureGroup(ctx, CompletionStreamKey(c.instanceName), group)
}

func (c *Client) ensureGroup(ctx context.Context, stream, group string) error {
	err := c.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %q on %s: %w", group, stream, err)
	}
	return nil
}

// ReadTasks reads up to count undelivered task entries for a consumer-group
// member. Each returned entry is delivered to exactly one member of the
// group and remains pending until acknowledged with AckTask.
//
// block controls the XREADGROUP BLOCK option: a negative value reads
// non-blocking and returns an empty slice when nothing is pending.
func (c *Client) ReadTasks(ctx context.Context, group, consumer string, count int64, block time.Duration) ([]*TaskEnvelope, error) {
	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{TaskStreamKey(c.instanceName), ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read task stream: %w", err)
	}

	return messagesToTasks(streams)
}

// ReclaimStaleTasks transfers ownership of task entries that have been
// pending for at least minIdle to this consumer. This is how at-least-once
// delivery survives a crashed group member: its unacknowledged entries
// become visible to the survivors.
func (c *Client) ReclaimStaleTasks(ctx context.Context, group, consumer string, minIdle time.Duration, count int64) ([]*TaskEnvelope, error) {
	msgs, _, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   TaskStreamKey(c.instanceName),
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to reclaim stale tasks: %w", err)
	}

	tasks := make([]*TaskEnvelope, 0, len(msgs))
	for _, msg := range msgs {
		task, err := ValuesToTask(msg.ID, msg.Values)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize reclaimed task %s: %w", msg.ID, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// AckTask acknowledges task entries for a consumer group, removing them from
// the group's pending list. Acknowledging an already-acked or unknown ID is
// harmless.
func (c *Client) AckTask(ctx context.Context, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.rdb.XAck(ctx, TaskStreamKey(c.instanceName), group, ids...).Err(); err != nil {
		return fmt.Errorf("failed to ack tasks: %w", err)
	}
	return nil
}

// Complete appends a completion record for a task to the completion stream.
// resultHash and errMsg are mutually exclusive: pass a hash on success, a
// non-empty message on failure. A second completion for the same task ID is
// tolerated - the correlation protocol takes the first match it observes.
func (c *Client) Complete(ctx context.Context, taskID, resultHash, errMsg string) (string, error) {
	record := &CompletionRecord{
		TaskID:        taskID,
		ResultHash:    NormalizeHash(resultHash),
		Error:         errMsg,
		CompletedAtMs: time.Now().UnixMilli(),
	}
	if err := record.Validate(); err != nil {
		return "", fmt.Errorf("invalid completion: %w", err)
	}

	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: CompletionStreamKey(c.instanceName),
		Values: CompletionToValues(record),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to record completion: %w", err)
	}

	return id, nil
}

// ReadCompletions reads up to count undelivered completion entries for a
// consumer-group member. Used by the router's reconcile loop; orchestrators
// waiting on a specific task use ReadCompletionsSince instead so they never
// consume entries away from each other.
func (c *Client) ReadCompletions(ctx context.Context, group, consumer string, count int64, block time.Duration) ([]*CompletionRecord, error) {
	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{CompletionStreamKey(c.instanceName), ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read completion stream: %w", err)
	}

	return messagesToCompletions(streams)
}

// AckCompletion acknowledges completion entries for a consumer group.
func (c *Client) AckCompletion(ctx context.Context, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.rdb.XAck(ctx, CompletionStreamKey(c.instanceName), group, ids...).Err(); err != nil {
		return fmt.Errorf("failed to ack completions: %w", err)
	}
	return nil
}

// ReadCompletionsSince reads up to count completion entries strictly after
// lastID, without consuming them from any group. Pass "0" to read from the
// beginning of the stream. This is the checkpointed scan the orchestrator's
// wait protocol polls with: an orchestrator that restarts simply resumes
// from its last-seen ID.
func (c *Client) ReadCompletionsSince(ctx context.Context, lastID string, count int64) ([]*CompletionRecord, error) {
	streams, err := c.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{CompletionStreamKey(c.instanceName), lastID},
		Count:   count,
		Block:   -1, // non-blocking; polling cadence is the caller's job
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan completion stream: %w", err)
	}

	return messagesToCompletions(streams)
}

// messagesToTasks flattens XREADGROUP results into task envelopes.
func messagesToTasks(streams []redis.XStream) ([]*TaskEnvelope, error) {
	var tasks []*TaskEnvelope
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			task, err := ValuesToTask(msg.ID, msg.Values)
			if err != nil {
				return nil, fmt.Errorf("failed to deserialize task %s: %w", msg.ID, err)
			}
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// messagesToCompletions flattens XREAD/XREADGROUP results into completion records.
func messagesToCompletions(streams []redis.XStream) ([]*CompletionRecord, error) {
	var records []*CompletionRecord
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			record, err := ValuesToCompletion(msg.ID, msg.Values)
			if err != nil {
				return nil, fmt.Errorf("failed to deserialize completion %s: %w", msg.ID, err)
			}
			records = append(records, record)
		}
	}
	return records, nil
}
