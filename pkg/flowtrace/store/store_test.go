package store_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/randalmurphal/flowtrace/pkg/flowtrace/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// fixtures is a seedable snapshot of the checkpoint schema.
type fixtures struct {
	checkpoints []store.Checkpoint
	writes      map[string][]store.Write // checkpointID -> writes
	blobs       map[string][]store.Blob  // threadID -> blobs
}

// adapterFactory builds an Adapter pre-loaded with fixtures.
type adapterFactory func(t *testing.T, f fixtures) store.Adapter

func defaultFixtures() fixtures {
	meta := map[string]any{"step": float64(1), "source": "loop"}
	return fixtures{
		checkpoints: []store.Checkpoint{
			{ThreadID: "t1", ID: "cp-001", Metadata: meta},
			{ThreadID: "t1", ID: "cp-002", ParentID: "cp-001", Metadata: meta},
			{ThreadID: "t2", ID: "cp-003", Metadata: map[string]any{}},
		},
		writes: map[string][]store.Write{
			"cp-002": {
				{TaskID: "n1", Idx: 0, Channel: "output", Type: "json", BlobRef: "v1"},
				{TaskID: "n1", Idx: 1, Channel: "log", Type: "json", BlobRef: "v1"},
			},
		},
		blobs: map[string][]store.Blob{
			"t1": {
				{Channel: "output", Version: "v1", Type: "json", Data: []byte(`{"ok":true}`)},
				{Channel: "log", Version: "v1", Type: "json", Data: []byte(`["line"]`)},
			},
		},
	}
}

func memoryFactory(_ *testing.T, f fixtures) store.Adapter {
	m := store.NewMemoryAdapter()
	for _, cp := range f.checkpoints {
		m.SeedCheckpoint(cp)
		for _, w := range f.writes[cp.ID] {
			m.SeedWrite(cp.ThreadID, cp.ID, w)
		}
	}
	for threadID, blobs := range f.blobs {
		for _, b := range blobs {
			m.SeedBlob(threadID, b)
		}
	}
	return m
}

func sqliteFactory(t *testing.T, f fixtures) store.Adapter {
	path := filepath.Join(t.TempDir(), "checkpoints.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE checkpoints (
			thread_id TEXT NOT NULL,
			checkpoint_ns TEXT NOT NULL DEFAULT '',
			checkpoint_id TEXT NOT NULL,
			parent_checkpoint_id TEXT,
			type TEXT,
			metadata TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE checkpoint_writes (
			thread_id TEXT NOT NULL,
			checkpoint_ns TEXT NOT NULL DEFAULT '',
			checkpoint_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			channel TEXT NOT NULL,
			type TEXT,
			blob_ref TEXT NOT NULL
		)`,
		`CREATE TABLE checkpoint_blobs (
			thread_id TEXT NOT NULL,
			checkpoint_ns TEXT NOT NULL DEFAULT '',
			channel TEXT NOT NULL,
			version TEXT NOT NULL,
			type TEXT NOT NULL,
			blob BLOB
		)`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	for _, cp := range f.checkpoints {
		meta, err := json.Marshal(cp.Metadata)
		require.NoError(t, err)
		var parent any
		if cp.ParentID != "" {
			parent = cp.ParentID
		}
		_, err = db.Exec(
			`INSERT INTO checkpoints (thread_id, checkpoint_id, parent_checkpoint_id, type, metadata) VALUES (?, ?, ?, ?, ?)`,
			cp.ThreadID, cp.ID, parent, cp.Type, string(meta))
		require.NoError(t, err)
		for _, w := range f.writes[cp.ID] {
			_, err = db.Exec(
				`INSERT INTO checkpoint_writes (thread_id, checkpoint_id, task_id, idx, channel, type, blob_ref) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				cp.ThreadID, cp.ID, w.TaskID, w.Idx, w.Channel, w.Type, w.BlobRef)
			require.NoError(t, err)
		}
	}
	for threadID, blobs := range f.blobs {
		for _, b := range blobs {
			_, err = db.Exec(
				`INSERT INTO checkpoint_blobs (thread_id, channel, version, type, blob) VALUES (?, ?, ?, ?, ?)`,
				threadID, b.Channel, b.Version, b.Type, b.Data)
			require.NoError(t, err)
		}
	}
	require.NoError(t, db.Close())

	adapter, err := store.OpenSQLite(path)
	require.NoError(t, err)
	return adapter
}

// adapterContractTest runs the shared Adapter contract against an
// implementation.
func adapterContractTest(t *testing.T, name string, factory adapterFactory) {
	ctx := context.Background()

	t.Run(name+"/ListThreads", func(t *testing.T) {
		a := factory(t, defaultFixtures())
		defer a.Close()

		threads, total, err := a.ListThreads(ctx, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, threads, 2)

		// Most-recent checkpoint first.
		assert.Equal(t, "t2", threads[0].ThreadID)
		assert.Equal(t, "cp-003", threads[0].LatestCheckpointID)
		assert.Equal(t, "t1", threads[1].ThreadID)
		assert.Equal(t, 2, threads[1].CheckpointCount)
	})

	t.Run(name+"/ListThreads_Pagination", func(t *testing.T) {
		a := factory(t, defaultFixtures())
		defer a.Close()

		threads, total, err := a.ListThreads(ctx, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, threads, 1)
		assert.Equal(t, "t1", threads[0].ThreadID)
	})

	t.Run(name+"/ListCheckpoints", func(t *testing.T) {
		a := factory(t, defaultFixtures())
		defer a.Close()

		cps, total, err := a.ListCheckpoints(ctx, "t1", 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, cps, 2)

		// Parent-chain order, newest first.
		assert.Equal(t, "cp-002", cps[0].ID)
		assert.Equal(t, "cp-001", cps[0].ParentID)
		assert.Equal(t, "cp-001", cps[1].ID)
	})

	t.Run(name+"/ListCheckpoints_UnknownThread", func(t *testing.T) {
		a := factory(t, defaultFixtures())
		defer a.Close()

		cps, total, err := a.ListCheckpoints(ctx, "no-such-thread", 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, total)
		assert.Empty(t, cps)
	})

	t.Run(name+"/GetCheckpoint", func(t *testing.T) {
		a := factory(t, defaultFixtures())
		defer a.Close()

		cp, err := a.GetCheckpoint(ctx, "t1", "cp-002")
		require.NoError(t, err)
		assert.Equal(t, "cp-001", cp.ParentID)
		assert.Equal(t, "loop", cp.Metadata["source"])
	})

	t.Run(name+"/GetCheckpoint_NotFound", func(t *testing.T) {
		a := factory(t, defaultFixtures())
		defer a.Close()

		_, err := a.GetCheckpoint(ctx, "t1", "cp-999")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run(name+"/GetWrites_Ordered", func(t *testing.T) {
		a := factory(t, defaultFixtures())
		defer a.Close()

		writes, err := a.GetWrites(ctx, "t1", "cp-002")
		require.NoError(t, err)
		require.Len(t, writes, 2)
		assert.Equal(t, 0, writes[0].Idx)
		assert.Equal(t, "output", writes[0].Channel)
		assert.Equal(t, 1, writes[1].Idx)
	})

	t.Run(name+"/GetWrites_UnknownCheckpoint", func(t *testing.T) {
		a := factory(t, defaultFixtures())
		defer a.Close()

		writes, err := a.GetWrites(ctx, "t1", "cp-999")
		require.NoError(t, err)
		assert.Empty(t, writes)
	})

	t.Run(name+"/GetBlobs", func(t *testing.T) {
		a := factory(t, defaultFixtures())
		defer a.Close()

		blobs, err := a.GetBlobs(ctx, "t1")
		require.NoError(t, err)
		assert.Len(t, blobs, 2)
	})

	t.Run(name+"/ParentChain", func(t *testing.T) {
		a := factory(t, defaultFixtures())
		defer a.Close()

		chain, err := store.ParentChain(ctx, a, "t1", "cp-002")
		require.NoError(t, err)
		require.Len(t, chain, 2)
		assert.Equal(t, "cp-002", chain[0].ID)
		assert.Equal(t, "cp-001", chain[1].ID)
	})

	t.Run(name+"/Closed", func(t *testing.T) {
		a := factory(t, defaultFixtures())
		require.NoError(t, a.Close())

		_, _, err := a.ListThreads(ctx, 10, 0)
		assert.ErrorIs(t, err, store.ErrStoreClosed)
	})
}

func TestMemoryAdapter_Contract(t *testing.T) {
	adapterContractTest(t, "memory", memoryFactory)
}

func TestSQLiteAdapter_Contract(t *testing.T) {
	adapterContractTest(t, "sqlite", sqliteFactory)
}

func TestSQLiteAdapter_Info(t *testing.T) {
	a := sqliteFactory(t, defaultFixtures())
	defer a.Close()

	info, err := a.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.DialectSQLite, info.Dialect)
	assert.NotEmpty(t, info.Version)
	assert.True(t, info.Features["native_json"])
}

func TestOpen_UnsupportedDialect(t *testing.T) {
	_, err := store.Open("oracle", "dsn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}
