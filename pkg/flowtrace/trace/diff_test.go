package trace_test

import (
	"context"
	"testing"

	"github.com/randalmurphal/flowtrace/pkg/flowtrace/store"
	"github.com/randalmurphal/flowtrace/pkg/flowtrace/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedDiffThread sets up two checkpoints where, going cp-a -> cp-b:
// "answer" is added, "draft" is removed, "state" changes, "config" is
// unchanged.
func seedDiffThread(m *store.MemoryAdapter) {
	m.SeedCheckpoint(store.Checkpoint{ThreadID: "t1", ID: "cp-a", Metadata: map[string]any{}})
	m.SeedCheckpoint(store.Checkpoint{ThreadID: "t1", ID: "cp-b", ParentID: "cp-a", Metadata: map[string]any{}})

	m.SeedWrite("t1", "cp-a", store.Write{TaskID: "n1", Idx: 0, Channel: "state", Type: "json", BlobRef: "s1"})
	m.SeedWrite("t1", "cp-a", store.Write{TaskID: "n1", Idx: 1, Channel: "config", Type: "json", BlobRef: "c1"})
	m.SeedWrite("t1", "cp-a", store.Write{TaskID: "n1", Idx: 2, Channel: "draft", Type: "json", BlobRef: "d1"})

	m.SeedWrite("t1", "cp-b", store.Write{TaskID: "n2", Idx: 0, Channel: "state", Type: "json", BlobRef: "s2"})
	m.SeedWrite("t1", "cp-b", store.Write{TaskID: "n2", Idx: 1, Channel: "config", Type: "json", BlobRef: "c1"})
	m.SeedWrite("t1", "cp-b", store.Write{TaskID: "n2", Idx: 2, Channel: "answer", Type: "json", BlobRef: "a1"})

	m.SeedBlob("t1", store.Blob{Channel: "state", Version: "s1", Type: "json", Data: []byte(`{"step":1}`)})
	m.SeedBlob("t1", store.Blob{Channel: "state", Version: "s2", Type: "json", Data: []byte(`{"step":2}`)})
	m.SeedBlob("t1", store.Blob{Channel: "config", Version: "c1", Type: "json", Data: []byte(`{"model":"sonnet"}`)})
	m.SeedBlob("t1", store.Blob{Channel: "draft", Version: "d1", Type: "json", Data: []byte(`"working..."`)})
	m.SeedBlob("t1", store.Blob{Channel: "answer", Version: "a1", Type: "json", Data: []byte(`"done"`)})
}

func diffByChannel(d *trace.Diff) map[string]trace.ChannelDiff {
	out := make(map[string]trace.ChannelDiff, len(d.Channels))
	for _, c := range d.Channels {
		out[c.Channel] = c
	}
	return out
}

func TestCompare_ClassifiesChannels(t *testing.T) {
	m := store.NewMemoryAdapter()
	seedDiffThread(m)
	r := trace.NewReconstructor(m)

	diff, err := r.Compare(context.Background(), "t1", "cp-a", "cp-b")
	require.NoError(t, err)

	byChannel := diffByChannel(diff)
	require.Len(t, byChannel, 4)

	assert.Equal(t, trace.ChangeAdded, byChannel["answer"].Kind)
	assert.Equal(t, "done", byChannel["answer"].Target)

	assert.Equal(t, trace.ChangeRemoved, byChannel["draft"].Kind)
	assert.Equal(t, "working...", byChannel["draft"].Source)

	assert.Equal(t, trace.ChangeChanged, byChannel["state"].Kind)
	assert.Equal(t, map[string]any{"step": int64(1)}, byChannel["state"].Source)
	assert.Equal(t, map[string]any{"step": int64(2)}, byChannel["state"].Target)

	assert.Equal(t, trace.ChangeUnchanged, byChannel["config"].Kind)
}

func TestCompare_SortedOutput(t *testing.T) {
	m := store.NewMemoryAdapter()
	seedDiffThread(m)
	r := trace.NewReconstructor(m)

	diff, err := r.Compare(context.Background(), "t1", "cp-a", "cp-b")
	require.NoError(t, err)

	names := make([]string, len(diff.Channels))
	for i, c := range diff.Channels {
		names[i] = c.Channel
	}
	assert.Equal(t, []string{"answer", "config", "draft", "state"}, names)
}

func TestCompare_Symmetry(t *testing.T) {
	m := store.NewMemoryAdapter()
	seedDiffThread(m)
	r := trace.NewReconstructor(m)

	forward, err := r.Compare(context.Background(), "t1", "cp-a", "cp-b")
	require.NoError(t, err)
	reverse, err := r.Compare(context.Background(), "t1", "cp-b", "cp-a")
	require.NoError(t, err)

	fw := diffByChannel(forward)
	rv := diffByChannel(reverse)
	require.Equal(t, len(fw), len(rv))

	for channel, f := range fw {
		b := rv[channel]
		switch f.Kind {
		case trace.ChangeAdded:
			assert.Equal(t, trace.ChangeRemoved, b.Kind, channel)
			assert.Equal(t, f.Target, b.Source, channel)
		case trace.ChangeRemoved:
			assert.Equal(t, trace.ChangeAdded, b.Kind, channel)
			assert.Equal(t, f.Source, b.Target, channel)
		case trace.ChangeChanged:
			assert.Equal(t, trace.ChangeChanged, b.Kind, channel)
			assert.Equal(t, f.Source, b.Target, channel)
			assert.Equal(t, f.Target, b.Source, channel)
		case trace.ChangeUnchanged:
			assert.Equal(t, trace.ChangeUnchanged, b.Kind, channel)
		}
	}

	assert.Equal(t, forward.Deltas.Nodes, -reverse.Deltas.Nodes)
	assert.InDelta(t, forward.Deltas.Cost, -reverse.Deltas.Cost, 1e-12)
}

func TestCompare_UnknownCheckpoint(t *testing.T) {
	m := store.NewMemoryAdapter()
	seedDiffThread(m)
	r := trace.NewReconstructor(m)

	_, err := r.Compare(context.Background(), "t1", "cp-a", "cp-missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
