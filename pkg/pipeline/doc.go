// Package pipeline provides type-safe Go definitions and Redis schema patterns
// for the Discernus coordination substrate.
//
// # Overview
//
// The pipeline is the shared coordination layer through which all Discernus
// components (router, orchestrator, workers, CLI) interact. Components are
// independent OS processes with no shared memory; everything flows through
// two Redis Streams and a content-addressed artifact store.
//
// # Core Concepts
//
// Artifacts are immutable blobs keyed by the hex SHA-256 digest of their
// content. Identical bytes always map to the same hash, so storing an
// already-present artifact is a cheap no-op. Every other component exchanges
// large payloads (documents, frameworks, LLM responses) by hash reference.
//
// Task envelopes are appended to the task stream and consumed by routers via
// a consumer group, giving at-least-once delivery with load balancing across
// group members. The stream entry ID doubles as the task ID and is strictly
// increasing within the stream.
//
// Completion records are appended to a parallel completion stream by workers.
// Each carries the original task ID and either a result artifact hash or an
// error message. Orchestrators correlate on the task ID to turn the async log
// into a synchronous request/response protocol.
//
// # Multi-Instance Support
//
// All Redis keys and streams are namespaced by instance name so multiple
// Discernus instances can safely coexist on a single Redis server.
//
// # Usage Example
//
//	import "github.com/discernus/discernus/pkg/pipeline"
//
//	client, err := pipeline.NewClient(redisOpts, "prod")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	hash, err := client.PutArtifact(ctx, documentBytes)
//	taskID, err := client.Enqueue(ctx, "analysis", "sha256:"+hash)
//
// # Delivery Semantics
//
// The task stream provides at-least-once delivery: entries unacknowledged by
// a crashed consumer become claimable by other group members after a minimum
// idle time (see ReclaimStaleTasks). Side effects must therefore be
// idempotent; artifact writes already are, by content addressing.
package pipeline
