package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryAdapter is an in-memory Adapter for testing. Fixtures are loaded
// through the Seed methods; the Adapter surface itself stays read-only,
// matching the production backends.
type MemoryAdapter struct {
	mu          sync.RWMutex
	checkpoints map[string][]Checkpoint // threadID -> checkpoints
	writes      map[string][]Write      // threadID + "\x00" + checkpointID -> writes
	blobs       map[string][]Blob       // threadID -> blobs
	closed      bool
}

// NewMemoryAdapter creates an empty in-memory adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		checkpoints: make(map[string][]Checkpoint),
		writes:      make(map[string][]Write),
		blobs:       make(map[string][]Blob),
	}
}

// SeedCheckpoint adds a checkpoint fixture.
func (m *MemoryAdapter) SeedCheckpoint(cp Checkpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[cp.ThreadID] = append(m.checkpoints[cp.ThreadID], cp)
}

// SeedWrite adds a write fixture for a checkpoint.
func (m *MemoryAdapter) SeedWrite(threadID, checkpointID string, w Write) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := threadID + "\x00" + checkpointID
	m.writes[key] = append(m.writes[key], w)
}

// SeedBlob adds a blob fixture for a thread.
func (m *MemoryAdapter) SeedBlob(threadID string, b Blob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[threadID] = append(m.blobs[threadID], b)
}

// ListThreads implements Adapter.
func (m *MemoryAdapter) ListThreads(_ context.Context, limit, offset int) ([]ThreadInfo, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, 0, ErrStoreClosed
	}

	all := make([]ThreadInfo, 0, len(m.checkpoints))
	for threadID, cps := range m.checkpoints {
		latest := ""
		for _, cp := range cps {
			if cp.ID > latest {
				latest = cp.ID
			}
		}
		all = append(all, ThreadInfo{
			ThreadID:           threadID,
			CheckpointCount:    len(cps),
			LatestCheckpointID: latest,
		})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].LatestCheckpointID > all[j].LatestCheckpointID
	})

	total := len(all)
	return page(all, limit, offset), total, nil
}

// ListCheckpoints implements Adapter.
func (m *MemoryAdapter) ListCheckpoints(_ context.Context, threadID string, limit, offset int) ([]Checkpoint, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, 0, ErrStoreClosed
	}

	cps := make([]Checkpoint, len(m.checkpoints[threadID]))
	copy(cps, m.checkpoints[threadID])
	sort.Slice(cps, func(i, j int) bool { return cps[i].ID > cps[j].ID })

	total := len(cps)
	return page(cps, limit, offset), total, nil
}

// GetCheckpoint implements Adapter.
func (m *MemoryAdapter) GetCheckpoint(_ context.Context, threadID, checkpointID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	for _, cp := range m.checkpoints[threadID] {
		if cp.ID == checkpointID {
			out := cp
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// GetWrites implements Adapter.
func (m *MemoryAdapter) GetWrites(_ context.Context, threadID, checkpointID string) ([]Write, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	src := m.writes[threadID+"\x00"+checkpointID]
	writes := make([]Write, len(src))
	copy(writes, src)
	sort.Slice(writes, func(i, j int) bool {
		if writes[i].TaskID != writes[j].TaskID {
			return writes[i].TaskID < writes[j].TaskID
		}
		return writes[i].Idx < writes[j].Idx
	})
	return writes, nil
}

// GetBlobs implements Adapter.
func (m *MemoryAdapter) GetBlobs(_ context.Context, threadID string) ([]Blob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	blobs := make([]Blob, len(m.blobs[threadID]))
	copy(blobs, m.blobs[threadID])
	return blobs, nil
}

// Info implements Adapter.
func (m *MemoryAdapter) Info(_ context.Context) (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Info{}, ErrStoreClosed
	}
	return Info{
		Dialect: "memory",
		Version: "in-process",
		Features: map[string]bool{
			"native_json": false,
			"server":      false,
		},
	}, nil
}

// Close implements Adapter.
func (m *MemoryAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
