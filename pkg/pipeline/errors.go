package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Error taxonomy for the coordination substrate.
//
// StorageError covers artifact store failures (connectivity, not-found) and
// must be surfaced to the caller of the failing operation, never swallowed.
// DispatchError covers unroutable task types and spawn failures; the router
// logs these and drops (acknowledges) the task rather than retrying.
// TimeoutError aborts only the in-flight orchestration step.
// CorruptStateError covers unreadable phase or provenance files.

// ErrNotFound is the sentinel for a missing artifact.
var ErrNotFound = errors.New("artifact not found")

// StorageError wraps a failure talking to the artifact store.
// Retryable is true for connectivity-class failures where the caller may
// reasonably try again; it is false for not-found.
type StorageError struct {
	Op        string // "put", "get", "exists", "delete"
	Hash      string // Normalized hash the operation targeted (may be empty for put)
	Retryable bool
	Err       error
}

func (e *StorageError) Error() string {
	if e.Hash != "" {
		return fmt.Sprintf("artifact store %s %s: %v", e.Op, e.Hash, e.Err)
	}
	return fmt.Sprintf("artifact store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// DispatchError wraps a router failure to hand a task off to a worker.
type DispatchError struct {
	TaskID   string
	TaskType string
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch task %s (type %q): %v", e.TaskID, e.TaskType, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// TimeoutError reports that no completion for TaskID appeared within Timeout.
// The originally enqueued task is not cancelled; a late completion is simply
// never observed by the abandoned waiter.
type TimeoutError struct {
	TaskID  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %v waiting for completion of task %s", e.Timeout, e.TaskID)
}

// CorruptStateError reports an unreadable or invalid phase-state or
// provenance file. Reads fail open (treat as nothing completed); writes that
// cannot verify prior state fail closed with this error.
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt state file %s: %v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

// IsNotFound returns true if the error indicates a missing artifact.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, redis.Nil)
}

// IsTimeout returns true if the error is an orchestrator wait timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsRetryable returns true for storage errors worth retrying (connectivity
// rather than not-found).
func IsRetryable(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Retryable
}

// IsCorruptState returns true if the error is a corrupt state file error.
func IsCorruptState(err error) bool {
	var ce *CorruptStateError
	return errors.As(err, &ce)
}
