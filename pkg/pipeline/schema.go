package pipeline

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and streams are namespaced by instance name to enable
// multiple Discernus instances to safely coexist on a single Redis server.
//
// Key pattern: discernus:{instance_name}:{entity}[:{id}]

const (
	// RouterGroup is the consumer group name shared by all routers reading
	// the task stream. A fixed name means every router process joins the
	// same group and load is balanced across them.
	RouterGroup = "routers"

	// ReconcilerGroup is the consumer group name shared by all routers
	// reading the completion stream for bookkeeping.
	ReconcilerGroup = "reconcilers"
)

// ArtifactKey returns the Redis key for a content-addressed artifact.
// Pattern: discernus:{instance_name}:artifact:{sha256_hex}
func ArtifactKey(instanceName, hash string) string {
	return fmt.Sprintf("discernus:%s:artifact:%s", instanceName, hash)
}

// TaskStreamKey returns the Redis key for the task stream.
// Pattern: discernus:{instance_name}:stream:tasks
func TaskStreamKey(instanceName string) string {
	return fmt.Sprintf("discernus:%s:stream:tasks", instanceName)
}

// CompletionStreamKey returns the Redis key for the completion stream.
// Pattern: discernus:{instance_name}:stream:completions
func CompletionStreamKey(instanceName string) string {
	return fmt.Sprintf("discernus:%s:stream:completions", instanceName)
}
