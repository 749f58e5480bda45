// Package store provides read-only access to a graph engine's checkpoint
// schema across sqlite, postgres, and mysql backends.
//
// The checkpoint store is owned and written by the execution engine; this
// package only reads it. All three backends satisfy identical pagination
// and ordering semantics, with dialect differences (placeholders, JSON
// handling, version probes) confined to this package.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Dialect identifies a supported relational backend.
type Dialect string

// Supported dialects.
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// Checkpoint is one persisted snapshot of engine state, immutable once
// written. Checkpoints form a tree per (thread, namespace) via ParentID.
type Checkpoint struct {
	ThreadID  string         `json:"thread_id"`
	Namespace string         `json:"checkpoint_ns"`
	ID        string         `json:"checkpoint_id"`
	ParentID  string         `json:"parent_checkpoint_id,omitempty"`
	Type      string         `json:"type,omitempty"`
	Metadata  map[string]any `json:"metadata"`
}

// Write records one pending channel update produced by a task execution.
// Writes sharing a TaskID are the outputs of a single node execution.
type Write struct {
	TaskID  string `json:"task_id"`
	Idx     int    `json:"idx"`
	Channel string `json:"channel"`
	Type    string `json:"type,omitempty"`
	BlobRef string `json:"blob_ref"`
}

// Blob is a content-addressed serialized channel value, deduplicated
// across checkpoints. Type declares the encoding.
type Blob struct {
	Channel string `json:"channel"`
	Version string `json:"version"`
	Type    string `json:"type"`
	Data    []byte `json:"blob,omitempty"`
}

// ThreadInfo summarizes one thread for listings.
type ThreadInfo struct {
	ThreadID           string `json:"thread_id"`
	CheckpointCount    int    `json:"checkpoint_count"`
	LatestCheckpointID string `json:"latest_checkpoint_id"`
}

// Info describes the backend behind an adapter.
type Info struct {
	Dialect  Dialect         `json:"dialect"`
	Version  string          `json:"version"`
	Features map[string]bool `json:"features"`
}

// Adapter is the uniform query surface over a checkpoint backend.
// Implementations must be safe for concurrent use, and must treat the
// schema as append-only: no adapter method mutates the store.
type Adapter interface {
	// ListThreads returns threads ordered by most-recent checkpoint,
	// with the total thread count for pagination.
	ListThreads(ctx context.Context, limit, offset int) ([]ThreadInfo, int, error)

	// ListCheckpoints returns a thread's checkpoints in parent-chain order
	// (newest first) with the total count. An unknown thread yields an
	// empty slice, not an error.
	ListCheckpoints(ctx context.Context, threadID string, limit, offset int) ([]Checkpoint, int, error)

	// GetCheckpoint fetches a single checkpoint.
	// Returns ErrNotFound if it doesn't exist.
	GetCheckpoint(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error)

	// GetWrites returns a checkpoint's pending writes ordered by
	// (task_id, idx). An unknown checkpoint yields an empty slice.
	GetWrites(ctx context.Context, threadID, checkpointID string) ([]Write, error)

	// GetBlobs returns all channel blobs for a thread.
	GetBlobs(ctx context.Context, threadID string) ([]Blob, error)

	// Info probes the backend for dialect, version, and feature flags.
	Info(ctx context.Context) (Info, error)

	// Close releases the underlying connection pool.
	Close() error
}

// Sentinel errors for adapter operations.
var (
	// ErrNotFound indicates the requested checkpoint doesn't exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the adapter has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")
)

// AdapterError wraps a backend failure with the operation that hit it.
// Adapter errors are fatal for the request and never retried internally.
type AdapterError struct {
	Dialect Dialect
	Op      string
	Err     error
}

// Error implements the error interface.
func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s adapter: %s: %s", e.Dialect, e.Op, e.Err)
}

// Unwrap returns the underlying backend error.
func (e *AdapterError) Unwrap() error {
	return e.Err
}

// Open creates an adapter for the given dialect and DSN, verifying the
// connection before returning. A malformed connection fails here, not on
// first query.
func Open(dialect Dialect, dsn string) (Adapter, error) {
	switch dialect {
	case DialectSQLite:
		return OpenSQLite(dsn)
	case DialectPostgres:
		return OpenPostgres(dsn)
	case DialectMySQL:
		return OpenMySQL(dsn)
	default:
		return nil, fmt.Errorf("unsupported dialect: %q", dialect)
	}
}

// ParentChain walks a checkpoint's ancestors by repeated parent-pointer
// lookup, newest first, starting with the checkpoint itself. The chain
// stops at the root or at the first missing ancestor.
func ParentChain(ctx context.Context, a Adapter, threadID, checkpointID string) ([]Checkpoint, error) {
	var chain []Checkpoint
	seen := make(map[string]bool)

	current := checkpointID
	for current != "" && !seen[current] {
		seen[current] = true
		cp, err := a.GetCheckpoint(ctx, threadID, current)
		if errors.Is(err, ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		chain = append(chain, *cp)
		current = cp.ParentID
	}
	return chain, nil
}
