// Package orchestrator turns the asynchronous task/completion streams into a
// synchronous request/response protocol: submit a task, block until its
// correlated completion appears, fetch the result artifact.
//
// This is deliberately a polling design. Polling a checkpointed offset keeps
// the protocol resilient to orchestrator restarts - the waiter just resumes
// scanning from its last-seen entry - at the cost of latency bounded by the
// poll interval.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/discernus/discernus/pkg/pipeline"
)

// completionBatchSize bounds one poll iteration's read.
const completionBatchSize = 100

// Engine implements the submit-and-await protocol over a pipeline client.
//
// The engine is single-waiter: it serves one blocking await at a time, which
// is exactly what a sequential saga needs. The completion-stream checkpoint
// advances monotonically across awaits.
type Engine struct {
	client       *pipeline.Client
	pollInterval time.Duration
	checkpoint   string
}

// NewEngine creates an orchestration engine. pollInterval must be positive -
// a zero interval would busy-loop against the broker.
func NewEngine(client *pipeline.Client, pollInterval time.Duration) (*Engine, error) {
	if pollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %v", pollInterval)
	}

	return &Engine{
		client:       client,
		pollInterval: pollInterval,
		checkpoint:   "0", // scan from the beginning of the completion stream
	}, nil
}

// SubmitAndAwait enqueues a task and blocks until its completion appears on
// the completion stream, then fetches and returns the result artifact bytes.
//
// On timeout the task is NOT cancelled: the worker may still run to
// completion and store its result, which will simply never be observed by
// this waiter. That is an accepted leak, resolved one layer up by
// content-addressed idempotence of any retry.
func (e *Engine) SubmitAndAwait(ctx context.Context, taskType, payload string, timeout time.Duration) ([]byte, error) {
	taskID, err := e.client.Enqueue(ctx, taskType, payload)
	if err != nil {
		return nil, err
	}

	log.Printf("[Orchestrator] Submitted task %s (type %q), awaiting completion", taskID, taskType)
	return e.AwaitCompletion(ctx, taskID, timeout)
}

// AwaitCompletion polls the completion stream from the engine's checkpoint
// until a record for taskID appears, the timeout fires, or ctx is cancelled.
// Duplicate completions are tolerated: the first match wins.
func (e *Engine) AwaitCompletion(ctx context.Context, taskID string, timeout time.Duration) ([]byte, error) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	deadline := time.After(timeout)

	for {
		// Drain everything currently readable before sleeping.
		record, err := e.scanForTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if record != nil {
			return e.resolveResult(ctx, record)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			log.Printf("[Orchestrator] Gave up waiting for task %s after %v", taskID, timeout)
			return nil, &pipeline.TimeoutError{TaskID: taskID, Timeout: timeout}
		case <-ticker.C:
		}
	}
}

// scanForTask reads forward from the checkpoint looking for taskID,
// advancing the checkpoint over everything it sees. Returns nil without
// error when the stream is exhausted with no match.
func (e *Engine) scanForTask(ctx context.Context, taskID string) (*pipeline.CompletionRecord, error) {
	for {
		records, err := e.client.ReadCompletionsSince(ctx, e.checkpoint, completionBatchSize)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, nil
		}

		for _, record := range records {
			e.checkpoint = record.ID
			if record.TaskID == taskID {
				return record, nil
			}
		}
	}
}

func (e *Engine) resolveResult(ctx context.Context, record *pipeline.CompletionRecord) ([]byte, error) {
	if record.Failed() {
		return nil, fmt.Errorf("task %s failed: %s", record.TaskID, record.Error)
	}

	result, err := e.client.GetArtifact(ctx, record.ResultHash)
	if err != nil {
		return nil, fmt.Errorf("task %s completed but result is unreadable: %w", record.TaskID, err)
	}
	return result, nil
}
