package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
)

// dialectDriver supplies the dialect-specific pieces of the shared SQL
// adapter: placeholder style and the backend probe.
type dialectDriver interface {
	dialect() Dialect

	// rebind rewrites ?-style placeholders into the dialect's native form.
	rebind(query string) string

	// versionQuery returns the statement that yields the server version.
	versionQuery() string

	// features reports dialect capability flags for the info probe.
	features() map[string]bool
}

// sqlAdapter implements Adapter over database/sql. All dialect variance
// lives in the driver; the queries themselves are shared.
type sqlAdapter struct {
	db     *sql.DB
	driver dialectDriver

	mu     sync.RWMutex
	closed bool
}

func newSQLAdapter(db *sql.DB, driver dialectDriver) (*sqlAdapter, error) {
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &AdapterError{Dialect: driver.dialect(), Op: "connect", Err: err}
	}
	return &sqlAdapter{db: db, driver: driver}, nil
}

func (s *sqlAdapter) fail(op string, err error) error {
	return &AdapterError{Dialect: s.driver.dialect(), Op: op, Err: err}
}

// guard returns ErrStoreClosed after Close; the read lock is held only
// for the flag check, not for the query.
func (s *sqlAdapter) guard() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// ListThreads implements Adapter.
func (s *sqlAdapter) ListThreads(ctx context.Context, limit, offset int) ([]ThreadInfo, int, error) {
	if err := s.guard(); err != nil {
		return nil, 0, err
	}

	var total int
	err := s.db.QueryRowContext(ctx, s.driver.rebind(`
		SELECT COUNT(DISTINCT thread_id) FROM checkpoints
	`)).Scan(&total)
	if err != nil {
		return nil, 0, s.fail("count threads", err)
	}

	rows, err := s.db.QueryContext(ctx, s.driver.rebind(`
		SELECT thread_id, COUNT(*), MAX(checkpoint_id)
		FROM checkpoints
		GROUP BY thread_id
		ORDER BY MAX(checkpoint_id) DESC
		LIMIT ? OFFSET ?
	`), limit, offset)
	if err != nil {
		return nil, 0, s.fail("list threads", err)
	}
	defer rows.Close()

	threads := make([]ThreadInfo, 0, limit)
	for rows.Next() {
		var t ThreadInfo
		if err := rows.Scan(&t.ThreadID, &t.CheckpointCount, &t.LatestCheckpointID); err != nil {
			return nil, 0, s.fail("scan thread", err)
		}
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, s.fail("iterate threads", err)
	}
	return threads, total, nil
}

// ListCheckpoints implements Adapter.
func (s *sqlAdapter) ListCheckpoints(ctx context.Context, threadID string, limit, offset int) ([]Checkpoint, int, error) {
	if err := s.guard(); err != nil {
		return nil, 0, err
	}

	var total int
	err := s.db.QueryRowContext(ctx, s.driver.rebind(`
		SELECT COUNT(*) FROM checkpoints WHERE thread_id = ?
	`), threadID).Scan(&total)
	if err != nil {
		return nil, 0, s.fail("count checkpoints", err)
	}

	// Checkpoint ids are lexicographically ordered by creation, so
	// descending id order follows the parent chain newest-first.
	rows, err := s.db.QueryContext(ctx, s.driver.rebind(`
		SELECT thread_id, checkpoint_ns, checkpoint_id, parent_checkpoint_id, type, metadata
		FROM checkpoints
		WHERE thread_id = ?
		ORDER BY checkpoint_id DESC
		LIMIT ? OFFSET ?
	`), threadID, limit, offset)
	if err != nil {
		return nil, 0, s.fail("list checkpoints", err)
	}
	defer rows.Close()

	checkpoints := make([]Checkpoint, 0, limit)
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, 0, s.fail("scan checkpoint", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, s.fail("iterate checkpoints", err)
	}
	return checkpoints, total, nil
}

// GetCheckpoint implements Adapter.
func (s *sqlAdapter) GetCheckpoint(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, s.driver.rebind(`
		SELECT thread_id, checkpoint_ns, checkpoint_id, parent_checkpoint_id, type, metadata
		FROM checkpoints
		WHERE thread_id = ? AND checkpoint_id = ?
	`), threadID, checkpointID)

	cp, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.fail("get checkpoint", err)
	}
	return &cp, nil
}

// GetWrites implements Adapter.
func (s *sqlAdapter) GetWrites(ctx context.Context, threadID, checkpointID string) ([]Write, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.driver.rebind(`
		SELECT task_id, idx, channel, type, blob_ref
		FROM checkpoint_writes
		WHERE thread_id = ? AND checkpoint_id = ?
		ORDER BY task_id, idx
	`), threadID, checkpointID)
	if err != nil {
		return nil, s.fail("get writes", err)
	}
	defer rows.Close()

	var writes []Write
	for rows.Next() {
		var w Write
		var wType sql.NullString
		if err := rows.Scan(&w.TaskID, &w.Idx, &w.Channel, &wType, &w.BlobRef); err != nil {
			return nil, s.fail("scan write", err)
		}
		w.Type = wType.String
		writes = append(writes, w)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("iterate writes", err)
	}
	return writes, nil
}

// GetBlobs implements Adapter.
func (s *sqlAdapter) GetBlobs(ctx context.Context, threadID string) ([]Blob, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.driver.rebind(`
		SELECT channel, version, type, blob
		FROM checkpoint_blobs
		WHERE thread_id = ?
	`), threadID)
	if err != nil {
		return nil, s.fail("get blobs", err)
	}
	defer rows.Close()

	var blobs []Blob
	for rows.Next() {
		var b Blob
		if err := rows.Scan(&b.Channel, &b.Version, &b.Type, &b.Data); err != nil {
			return nil, s.fail("scan blob", err)
		}
		blobs = append(blobs, b)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("iterate blobs", err)
	}
	return blobs, nil
}

// Info implements Adapter.
func (s *sqlAdapter) Info(ctx context.Context) (Info, error) {
	if err := s.guard(); err != nil {
		return Info{}, err
	}

	var version string
	if err := s.db.QueryRowContext(ctx, s.driver.versionQuery()).Scan(&version); err != nil {
		return Info{}, s.fail("probe version", err)
	}
	return Info{
		Dialect:  s.driver.dialect(),
		Version:  version,
		Features: s.driver.features(),
	}, nil
}

// Close implements Adapter.
func (s *sqlAdapter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (Checkpoint, error) {
	var cp Checkpoint
	var parent, cpType sql.NullString
	var metadata []byte

	if err := row.Scan(&cp.ThreadID, &cp.Namespace, &cp.ID, &parent, &cpType, &metadata); err != nil {
		return Checkpoint{}, err
	}
	cp.ParentID = parent.String
	cp.Type = cpType.String

	cp.Metadata = make(map[string]any)
	if len(metadata) > 0 {
		// Metadata is stored as JSON in every dialect (TEXT, JSON, or
		// JSONB); a scan failure degrades to empty metadata rather than
		// failing the checkpoint.
		_ = json.Unmarshal(metadata, &cp.Metadata)
	}
	return cp, nil
}

// rebindPositional rewrites ?-style placeholders to $1, $2, ... for
// backends with positional parameters.
func rebindPositional(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
