// Package worker implements the one-task worker process launched by the
// router. The worker resolves its task payload, pipes it through an opaque
// tool subprocess, stores the tool's stdout as a result artifact, and
// announces the outcome on the completion stream.
//
// The tool's internal computation (LLM calls, prompt formatting, statistics)
// is deliberately a black box; the worker only enforces the coordination
// contract around it.
package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/discernus/discernus/pkg/pipeline"
)

// Engine executes exactly one task and reports its completion.
type Engine struct {
	config *Config
	client *pipeline.Client
}

// New creates a worker engine for the given configuration and pipeline client.
func New(config *Config, client *pipeline.Client) *Engine {
	return &Engine{
		config: config,
		client: client,
	}
}

// Run executes the configured task end to end. Any failure is reported as an
// error completion - the completion stream hears from this worker exactly
// once either way. The returned error mirrors what was reported, for the
// process exit code.
func (e *Engine) Run(ctx context.Context) error {
	log.Printf("[INFO] Worker starting: task_id=%s type=%s instance=%s",
		e.config.TaskID, e.config.TaskType, e.config.InstanceName)

	input, err := e.client.ResolvePayload(ctx, e.config.TaskPayload)
	if err != nil {
		return e.fail(ctx, fmt.Sprintf("failed to resolve task payload: %v", err))
	}

	log.Printf("[INFO] Executing tool: command=%v task_id=%s", e.config.ToolCommand, e.config.TaskID)
	startTime := time.Now()

	exitCode, stdout, stderr, err := executeTool(ctx, e.config.ToolCommand, input)
	duration := time.Since(startTime)

	if err != nil {
		log.Printf("[ERROR] Tool execution failed: task_id=%s exit_code=%d duration=%s error=%v stderr=%s",
			e.config.TaskID, exitCode, duration, err, truncate(stderr, 500))
		return e.fail(ctx, fmt.Sprintf("tool execution failed: %v", err))
	}

	log.Printf("[INFO] Tool execution completed: task_id=%s exit_code=%d duration=%s output_bytes=%d",
		e.config.TaskID, exitCode, duration, len(stdout))

	resultHash, err := e.client.PutArtifact(ctx, stdout)
	if err != nil {
		log.Printf("[ERROR] Failed to store result artifact: task_id=%s error=%v", e.config.TaskID, err)
		return e.fail(ctx, fmt.Sprintf("tool succeeded but result storage failed: %v", err))
	}

	if _, err := e.client.Complete(ctx, e.config.TaskID, resultHash, ""); err != nil {
		// The result artifact is stored but nobody will learn its hash.
		// Nothing better to do than surface the error.
		return fmt.Errorf("failed to record completion for task %s: %w", e.config.TaskID, err)
	}

	log.Printf("[INFO] Completed task %s with result artifact %s", e.config.TaskID, resultHash)
	return nil
}

// fail records an error completion and returns an error carrying the same
// message.
func (e *Engine) fail(ctx context.Context, message string) error {
	if _, err := e.client.Complete(ctx, e.config.TaskID, "", message); err != nil {
		log.Printf("[ERROR] Failed to record error completion: task_id=%s error=%v", e.config.TaskID, err)
	}
	return fmt.Errorf("%s", message)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
