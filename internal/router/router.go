// Package router reads the task stream for a consumer group, maps each
// task's declared type to a registered launcher, and hands the work off to a
// worker process. It performs no business validation - tasks are opaque
// beyond their type.
//
// Acknowledgment happens after a successful hand-off, not after the work
// finishes: launching a worker is fire-and-forget from the router's
// perspective. Dispatch failures are logged and the entry is acknowledged
// anyway - resubmission is a human/monitoring concern, not an automatic
// retry.
package router

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/discernus/discernus/pkg/pipeline"
)

// Launcher hands one task off to a worker. Launch returns once the work has
// been started, not once it finishes.
type Launcher interface {
	Launch(ctx context.Context, task *pipeline.TaskEnvelope) error
}

// Router is the dispatch engine. It runs two loops: DispatchLoop over the
// task stream and ReconcileLoop over the completion stream.
type Router struct {
	client      *pipeline.Client
	consumer    string
	registry    map[string]Launcher
	batchSize   int64
	reclaimIdle time.Duration

	mu       sync.Mutex
	inFlight map[string]time.Time // taskID -> launch time
}

// New creates a router. consumer is this process's member name within the
// shared consumer group; registry maps task types to launchers.
func New(client *pipeline.Client, consumer string, registry map[string]Launcher, batchSize int, reclaimIdle time.Duration) (*Router, error) {
	if consumer == "" {
		return nil, fmt.Errorf("consumer name cannot be empty")
	}
	if len(registry) == 0 {
		return nil, fmt.Errorf("launcher registry cannot be empty")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	return &Router{
		client:      client,
		consumer:    consumer,
		registry:    registry,
		batchSize:   int64(batchSize),
		reclaimIdle: reclaimIdle,
		inFlight:    make(map[string]time.Time),
	}, nil
}

// DispatchLoop continuously reads undelivered task entries for the router
// consumer group and dispatches them, blocking until ctx is cancelled.
// The group is created idempotently on entry.
func (r *Router) DispatchLoop(ctx context.Context) error {
	if err := r.client.EnsureTaskGroup(ctx, pipeline.RouterGroup); err != nil {
		return err
	}

	log.Printf("[Router] Dispatch loop starting: consumer=%s types=%d", r.consumer, len(r.registry))

	// Reclaim on a slower cadence than the read loop.
	reclaimTicker := time.NewTicker(r.reclaimIdle)
	defer reclaimTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Router] Dispatch loop shutting down")
			return nil
		case <-reclaimTicker.C:
			r.reclaimStale(ctx)
		default:
		}

		if _, err := r.dispatchBatch(ctx, time.Second); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("[Router] Error reading task stream: %v", err)
			time.Sleep(time.Second) // back off rather than hammer a failing broker
		}
	}
}

// DispatchPending performs one non-blocking read-and-dispatch pass and
// returns the number of tasks handled. The consumer group must exist.
func (r *Router) DispatchPending(ctx context.Context) (int, error) {
	return r.dispatchBatch(ctx, -1)
}

func (r *Router) dispatchBatch(ctx context.Context, block time.Duration) (int, error) {
	tasks, err := r.client.ReadTasks(ctx, pipeline.RouterGroup, r.consumer, r.batchSize, block)
	if err != nil {
		return 0, err
	}
	for _, task := range tasks {
		r.dispatch(ctx, task)
	}
	return len(tasks), nil
}

// dispatch hands one task to its launcher and acknowledges it. Unknown types
// and launch failures are logged as DispatchErrors and acknowledged anyway,
// so a poison entry can never block the stream.
func (r *Router) dispatch(ctx context.Context, task *pipeline.TaskEnvelope) {
	launcher, ok := r.registry[task.Type]
	if !ok {
		derr := &pipeline.DispatchError{
			TaskID:   task.ID,
			TaskType: task.Type,
			Err:      fmt.Errorf("no launcher registered for task type"),
		}
		log.Printf("[Router] Dropping unroutable task: %v", derr)
		r.ack(ctx, task.ID)
		return
	}

	if err := launcher.Launch(ctx, task); err != nil {
		derr := &pipeline.DispatchError{TaskID: task.ID, TaskType: task.Type, Err: err}
		log.Printf("[Router] Dispatch failed, task dropped (resubmit manually): %v", derr)
		r.ack(ctx, task.ID)
		return
	}

	r.mu.Lock()
	r.inFlight[task.ID] = time.Now()
	r.mu.Unlock()

	log.Printf("[Router] Dispatched task %s (type %q)", task.ID, task.Type)
	r.ack(ctx, task.ID)
}

// reclaimStale transfers long-pending entries from crashed group members to
// this consumer and dispatches them.
func (r *Router) reclaimStale(ctx context.Context) {
	tasks, err := r.client.ReclaimStaleTasks(ctx, pipeline.RouterGroup, r.consumer, r.reclaimIdle, r.batchSize)
	if err != nil {
		log.Printf("[Router] Error reclaiming stale tasks: %v", err)
		return
	}
	if len(tasks) > 0 {
		log.Printf("[Router] Reclaimed %d stale task(s) from crashed consumers", len(tasks))
	}
	for _, task := range tasks {
		r.dispatch(ctx, task)
	}
}

// ReconcileLoop reads completion entries for the reconciler consumer group,
// releases the locally tracked in-flight handle for each completed task, and
// acknowledges the entry. Blocks until ctx is cancelled.
func (r *Router) ReconcileLoop(ctx context.Context) error {
	if err := r.client.EnsureCompletionGroup(ctx, pipeline.ReconcilerGroup); err != nil {
		return err
	}

	log.Printf("[Router] Reconcile loop starting: consumer=%s", r.consumer)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Router] Reconcile loop shutting down")
			return nil
		default:
		}

		if _, err := r.reconcileBatch(ctx, time.Second); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("[Router] Error reading completion stream: %v", err)
			time.Sleep(time.Second)
		}
	}
}

// ReconcilePending performs one non-blocking reconcile pass and returns the
// number of completion records handled. The consumer group must exist.
func (r *Router) ReconcilePending(ctx context.Context) (int, error) {
	return r.reconcileBatch(ctx, -1)
}

func (r *Router) reconcileBatch(ctx context.Context, block time.Duration) (int, error) {
	records, err := r.client.ReadCompletions(ctx, pipeline.ReconcilerGroup, r.consumer, r.batchSize, block)
	if err != nil {
		return 0, err
	}
	for _, record := range records {
		r.reconcile(ctx, record)
	}
	return len(records), nil
}

func (r *Router) reconcile(ctx context.Context, record *pipeline.CompletionRecord) {
	r.mu.Lock()
	launchedAt, tracked := r.inFlight[record.TaskID]
	delete(r.inFlight, record.TaskID)
	r.mu.Unlock()

	switch {
	case record.Failed():
		log.Printf("[Router] Task %s completed with error: %s", record.TaskID, record.Error)
	case tracked:
		log.Printf("[Router] Task %s completed in %v (result %s)",
			record.TaskID, time.Since(launchedAt).Round(time.Millisecond), record.ResultHash)
	default:
		// Completion for a task another router dispatched, or from before a
		// restart. Bookkeeping only, nothing to release.
		log.Printf("[Router] Task %s completed (dispatched elsewhere)", record.TaskID)
	}

	if err := r.client.AckCompletion(ctx, pipeline.ReconcilerGroup, record.ID); err != nil {
		log.Printf("[Router] Error acking completion %s: %v", record.ID, err)
	}
}

// InFlight returns the number of tasks this router has dispatched whose
// completions it has not yet observed.
func (r *Router) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inFlight)
}

func (r *Router) ack(ctx context.Context, taskID string) {
	if err := r.client.AckTask(ctx, pipeline.RouterGroup, taskID); err != nil {
		log.Printf("[Router] Error acking task %s: %v", taskID, err)
	}
}
