package pipeline

import (
	"fmt"
	"strings"
)

// TaskEnvelope represents one pending unit of work on the task stream.
// Tasks are opaque to the router beyond their Type field - no business
// validation happens at this layer.
type TaskEnvelope struct {
	ID           string `json:"id"`             // Stream entry ID, assigned on append; orderable within the stream
	Type         string `json:"type"`           // Selects the worker/handler (e.g., "analysis", "statistical")
	Payload      string `json:"payload"`        // Inline content or an artifact reference ("sha256:{hex}")
	EnqueuedAtMs int64  `json:"enqueued_at_ms"` // Unix timestamp in milliseconds when the task was appended
}

// CompletionRecord represents a worker's announcement that a task finished.
// Exactly one of ResultHash and Error carries the outcome; duplicate
// completions for the same task ID are tolerated by the correlation
// protocol, which takes the first match it observes.
type CompletionRecord struct {
	ID            string `json:"id"`               // Completion stream entry ID
	TaskID        string `json:"original_task_id"` // Stream ID of the task this completes
	ResultHash    string `json:"result_hash"`      // Hex SHA-256 of the result artifact (empty on error)
	Error         string `json:"error"`            // Worker-reported failure message (empty on success)
	CompletedAtMs int64  `json:"completed_at_ms"`  // Unix timestamp in milliseconds when the worker finished
}

// Validate checks if the TaskEnvelope has valid field values.
func (t *TaskEnvelope) Validate() error {
	if t.Type == "" {
		return fmt.Errorf("task type cannot be empty")
	}
	return nil
}

// Validate checks if the CompletionRecord has valid field values.
func (c *CompletionRecord) Validate() error {
	if c.TaskID == "" {
		return fmt.Errorf("original task ID cannot be empty")
	}
	if c.ResultHash == "" && c.Error == "" {
		return fmt.Errorf("completion must carry a result hash or an error")
	}
	if c.ResultHash != "" && !IsValidHash(NormalizeHash(c.ResultHash)) {
		return fmt.Errorf("invalid result hash: %q", c.ResultHash)
	}
	return nil
}

// Failed reports whether the completion carries a worker error instead of a
// result artifact.
func (c *CompletionRecord) Failed() bool {
	return c.Error != ""
}

// HashPrefix is the optional scheme prefix on artifact references.
// Callers must normalize by stripping it before store access.
const HashPrefix = "sha256:"

// NormalizeHash strips the optional "sha256:" prefix and lowercases the
// remaining hex digest. Hashes arrive with and without the prefix depending
// on the producer; the store only ever sees the bare form.
func NormalizeHash(hash string) string {
	hash = strings.TrimPrefix(hash, HashPrefix)
	return strings.ToLower(hash)
}

// IsValidHash reports whether s is a bare hex-encoded SHA-256 digest.
func IsValidHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}

// IsArtifactRef reports whether a task payload is an artifact reference
// rather than inline content.
func IsArtifactRef(payload string) bool {
	return strings.HasPrefix(payload, HashPrefix) && IsValidHash(NormalizeHash(payload))
}
