package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// Content-addressed artifact store.
//
// Artifacts are immutable byte sequences keyed by the hex SHA-256 of their
// content, stored as plain Redis string values. Identical bytes always map
// to the same key, so a racing double-write of identical content is harmless
// and deduplication is an existence probe away. No namespace setup is
// required: Redis keys spring into existence on first write.

// HashBytes returns the hex-encoded SHA-256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PutArtifact stores data in the artifact store and returns its hash.
// If an artifact with the same hash already exists the write is skipped
// entirely (dedup) - the existing bytes are necessarily identical.
// Safe under concurrent calls with identical content.
func (c *Client) PutArtifact(ctx context.Context, data []byte) (string, error) {
	hash := HashBytes(data)
	key := ArtifactKey(c.instanceName, hash)

	exists, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return "", &StorageError{Op: "put", Hash: hash, Retryable: true, Err: err}
	}
	if exists > 0 {
		// Cache hit - identical content is already stored.
		return hash, nil
	}

	if err := c.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return "", &StorageError{Op: "put", Hash: hash, Retryable: true, Err: err}
	}

	return hash, nil
}

// GetArtifact retrieves artifact bytes by hash. The hash may carry the
// "sha256:" prefix; it is normalized before lookup.
// Returns a StorageError wrapping ErrNotFound if no artifact exists for the
// hash - use IsNotFound() to check.
func (c *Client) GetArtifact(ctx context.Context, hash string) ([]byte, error) {
	hash = NormalizeHash(hash)
	if !IsValidHash(hash) {
		return nil, &StorageError{Op: "get", Hash: hash, Err: fmt.Errorf("malformed hash")}
	}

	data, err := c.rdb.Get(ctx, ArtifactKey(c.instanceName, hash)).Bytes()
	if err == redis.Nil {
		return nil, &StorageError{Op: "get", Hash: hash, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &StorageError{Op: "get", Hash: hash, Retryable: true, Err: err}
	}

	return data, nil
}

// ArtifactExists checks if an artifact exists without transferring its body.
// More efficient than GetArtifact when you only need to check existence.
func (c *Client) ArtifactExists(ctx context.Context, hash string) (bool, error) {
	hash = NormalizeHash(hash)
	exists, err := c.rdb.Exists(ctx, ArtifactKey(c.instanceName, hash)).Result()
	if err != nil {
		return false, &StorageError{Op: "exists", Hash: hash, Retryable: true, Err: err}
	}
	return exists > 0, nil
}

// DeleteArtifact removes an artifact. This is an escape hatch that breaks
// the immutability invariant: tasks still referencing the hash will fail
// with not-found on their next access, and nothing guards against that.
// Returns false if the artifact was already absent.
func (c *Client) DeleteArtifact(ctx context.Context, hash string) (bool, error) {
	hash = NormalizeHash(hash)
	log.Printf("[WARN] [ArtifactStore] Deleting artifact %s - immutability contract violated deliberately", hash)

	removed, err := c.rdb.Del(ctx, ArtifactKey(c.instanceName, hash)).Result()
	if err != nil {
		return false, &StorageError{Op: "delete", Hash: hash, Retryable: true, Err: err}
	}
	return removed > 0, nil
}

// ResolvePayload returns the bytes a task payload stands for: the referenced
// artifact's content when the payload is a "sha256:" reference, otherwise the
// payload itself.
func (c *Client) ResolvePayload(ctx context.Context, payload string) ([]byte, error) {
	if IsArtifactRef(payload) {
		return c.GetArtifact(ctx, payload)
	}
	return []byte(payload), nil
}
