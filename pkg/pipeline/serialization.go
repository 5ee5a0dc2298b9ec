package pipeline

import (
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis stream
// entry values.
//
// Redis Streams store entries as string-to-string field maps. Timestamps are
// encoded as decimal millisecond strings. The entry ID itself is never a
// field - it is assigned by Redis on XADD and carried separately.

// TaskToValues converts a TaskEnvelope to stream entry values for XADD.
// The ID field is ignored; Redis assigns it on append.
func TaskToValues(t *TaskEnvelope) map[string]interface{} {
	return map[string]interface{}{
		"type":           t.Type,
		"payload":        t.Payload,
		"enqueued_at_ms": strconv.FormatInt(t.EnqueuedAtMs, 10),
	}
}

// ValuesToTask converts stream entry values back to a TaskEnvelope.
// The entry ID comes from the stream message, not the values map.
func ValuesToTask(id string, values map[string]interface{}) (*TaskEnvelope, error) {
	taskType, err := stringField(values, "type")
	if err != nil {
		return nil, err
	}
	payload, _ := stringField(values, "payload")
	enqueuedAtMs := int64Field(values, "enqueued_at_ms")

	return &TaskEnvelope{
		ID:           id,
		Type:         taskType,
		Payload:      payload,
		EnqueuedAtMs: enqueuedAtMs,
	}, nil
}

// CompletionToValues converts a CompletionRecord to stream entry values for XADD.
func CompletionToValues(c *CompletionRecord) map[string]interface{} {
	return map[string]interface{}{
		"original_task_id": c.TaskID,
		"result_hash":      c.ResultHash,
		"error":            c.Error,
		"completed_at_ms":  strconv.FormatInt(c.CompletedAtMs, 10),
	}
}

// ValuesToCompletion converts stream entry values back to a CompletionRecord.
func ValuesToCompletion(id string, values map[string]interface{}) (*CompletionRecord, error) {
	taskID, err := stringField(values, "original_task_id")
	if err != nil {
		return nil, err
	}
	resultHash, _ := stringField(values, "result_hash")
	errMsg, _ := stringField(values, "error")
	completedAtMs := int64Field(values, "completed_at_ms")

	return &CompletionRecord{
		ID:            id,
		TaskID:        taskID,
		ResultHash:    NormalizeHash(resultHash),
		Error:         errMsg,
		CompletedAtMs: completedAtMs,
	}, nil
}

// stringField extracts a string field from stream entry values.
// go-redis delivers stream values as map[string]interface{} with string values.
func stringField(values map[string]interface{}, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing stream field %q", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("stream field %q is not a string (got %T)", key, raw)
	}
	return s, nil
}

// int64Field extracts a millisecond timestamp field, tolerating absence and
// malformed values (zero). Timestamps are informational, never load-bearing.
func int64Field(values map[string]interface{}, key string) int64 {
	s, err := stringField(values, key)
	if err != nil {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
