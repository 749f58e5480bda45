package trace

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/randalmurphal/flowtrace/pkg/flowtrace/decode"
	"github.com/randalmurphal/flowtrace/pkg/flowtrace/observability"
	"github.com/randalmurphal/flowtrace/pkg/flowtrace/store"
)

// Reconstructor builds execution graphs from checkpoint data.
// It holds no per-call state; one instance serves concurrent requests.
type Reconstructor struct {
	adapter store.Adapter
	cache   *decode.Cache
	pricing Pricing
	logger  *slog.Logger
	metrics observability.MetricsRecorder
}

// Option configures a Reconstructor.
type Option func(*Reconstructor)

// WithPricing sets the model price table used for cost metrics.
func WithPricing(p Pricing) Option {
	return func(r *Reconstructor) { r.pricing = p }
}

// WithLogger sets the structured logger. Nil disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconstructor) { r.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(rec observability.MetricsRecorder) Option {
	return func(r *Reconstructor) {
		if rec != nil {
			r.metrics = rec
		}
	}
}

// NewReconstructor creates a reconstructor over the given adapter.
func NewReconstructor(adapter store.Adapter, opts ...Option) *Reconstructor {
	r := &Reconstructor{
		adapter: adapter,
		cache:   decode.NewCache(decode.New()),
		pricing: DefaultPricing(),
		metrics: observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result is a fully reconstructed trace for one checkpoint.
type Result struct {
	Graph   *Graph             `json:"graph"`
	Summary ExecutionSummary   `json:"summary"`
	Chain   []store.Checkpoint `json:"checkpoint_chain"`
}

// Trace reconstructs the execution graph, metrics summary, and ancestor
// chain for one checkpoint.
//
// With includeBlobs false, blob decoding is skipped entirely: node outputs
// become PlaceholderPayload and payload-derived metrics (tokens, cost,
// durations) report zero. Placeholders are never stale data.
func (r *Reconstructor) Trace(ctx context.Context, threadID, checkpointID string, includeBlobs bool) (res *Result, err error) {
	start := time.Now()
	defer func() {
		r.metrics.RecordReconstruction(ctx, time.Since(start), err)
	}()

	cp, err := r.adapter.GetCheckpoint(ctx, threadID, checkpointID)
	if err != nil {
		return nil, err
	}

	writes, err := r.adapter.GetWrites(ctx, threadID, checkpointID)
	if err != nil {
		return nil, err
	}

	var blobs []store.Blob
	if includeBlobs {
		blobs, err = r.adapter.GetBlobs(ctx, threadID)
		if err != nil {
			return nil, err
		}
	}

	graph := r.buildGraph(ctx, cp, writes, blobs, includeBlobs)

	chain, err := store.ParentChain(ctx, r.adapter, threadID, checkpointID)
	if err != nil {
		return nil, err
	}

	observability.LogTraceBuilt(r.logger, threadID, checkpointID, len(graph.Nodes),
		float64(time.Since(start).Microseconds())/1000.0)
	return &Result{
		Graph:   graph,
		Summary: Summarize(graph, r.pricing),
		Chain:   chain,
	}, nil
}

// taskGroup collects one task's writes.
type taskGroup struct {
	taskID   string
	firstIdx int
	writes   []store.Write
}

// buildGraph derives the node and edge sets from a checkpoint's writes.
// The result is a strict function of its inputs.
func (r *Reconstructor) buildGraph(ctx context.Context, cp *store.Checkpoint, writes []store.Write, blobs []store.Blob, includeBlobs bool) *Graph {
	g := &Graph{ThreadID: cp.ThreadID, CheckpointID: cp.ID}

	// A checkpoint with no pending writes is an observed no-op step,
	// not an empty graph.
	if len(writes) == 0 {
		g.Nodes = []Node{{ID: "noop", Kind: KindNoop, Name: "noop", Status: StatusSuccess}}
		return g
	}

	groups := groupByTask(writes)
	blobIndex := indexBlobs(blobs)

	for _, grp := range groups {
		g.Nodes = append(g.Nodes, r.buildNode(ctx, cp, grp, blobIndex, includeBlobs))
	}

	r.linkNodes(g, cp.Metadata)

	// Inputs are the merged outputs of each node's predecessors.
	outputs := make(map[string]map[string]any, len(g.Nodes))
	for _, n := range g.Nodes {
		outputs[n.ID] = n.Output
	}
	for _, e := range g.Edges {
		target := g.Node(e.Target)
		if target.Input == nil {
			target.Input = make(map[string]any)
		}
		for ch, v := range outputs[e.Source] {
			target.Input[ch] = v
		}
	}
	return g
}

// groupByTask buckets writes by task id, each bucket ordered by idx,
// and orders buckets by their earliest write. This gives the graph its
// deterministic topological base order.
func groupByTask(writes []store.Write) []taskGroup {
	byTask := make(map[string]*taskGroup)
	for _, w := range writes {
		grp, ok := byTask[w.TaskID]
		if !ok {
			grp = &taskGroup{taskID: w.TaskID, firstIdx: w.Idx}
			byTask[w.TaskID] = grp
		}
		if w.Idx < grp.firstIdx {
			grp.firstIdx = w.Idx
		}
		grp.writes = append(grp.writes, w)
	}

	groups := make([]taskGroup, 0, len(byTask))
	for _, grp := range byTask {
		sort.Slice(grp.writes, func(i, j int) bool { return grp.writes[i].Idx < grp.writes[j].Idx })
		groups = append(groups, *grp)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].firstIdx != groups[j].firstIdx {
			return groups[i].firstIdx < groups[j].firstIdx
		}
		return groups[i].taskID < groups[j].taskID
	})
	return groups
}

func indexBlobs(blobs []store.Blob) map[string]store.Blob {
	index := make(map[string]store.Blob, len(blobs))
	for _, b := range blobs {
		index[b.Channel+"\x00"+b.Version] = b
	}
	return index
}

// buildNode turns one task's write set into a node. A decode failure
// degrades that channel's payload to an undecodable marker and flags the
// node, but never fails the graph.
func (r *Reconstructor) buildNode(ctx context.Context, cp *store.Checkpoint, grp taskGroup, blobIndex map[string]store.Blob, includeBlobs bool) Node {
	n := Node{
		ID:     grp.taskID,
		Status: StatusSuccess,
		Output: make(map[string]any, len(grp.writes)),
	}

	channels := make([]string, 0, len(grp.writes))
	var decodeErrs []string
	for _, w := range grp.writes {
		channels = append(channels, w.Channel)

		if !includeBlobs {
			n.Output[w.Channel] = PlaceholderPayload
			continue
		}

		blob, ok := blobIndex[w.Channel+"\x00"+w.BlobRef]
		if !ok {
			n.Output[w.Channel] = nil
			continue
		}

		key := decode.BlobKey{Channel: blob.Channel, Version: blob.Version, Hash: blobHash(blob.Data)}
		v, err := r.cache.Decode(key, blob.Type, blob.Data)
		if err != nil {
			n.Output[w.Channel] = map[string]any{"undecodable": blob.Type}
			decodeErrs = append(decodeErrs, fmt.Sprintf("%s: %s", w.Channel, err))
			r.metrics.RecordDecodeError(ctx, blob.Type)
			if r.logger != nil {
				r.logger.Warn("blob decode failed",
					slog.String("thread_id", cp.ThreadID),
					slog.String("checkpoint_id", cp.ID),
					slog.String("channel", w.Channel),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		n.Output[w.Channel] = v
	}

	n.Name = channels[0]
	n.Kind = inferKind(channels)
	if len(decodeErrs) > 0 {
		n.Status = StatusError
		n.Error = strings.Join(decodeErrs, "; ")
	}

	stats := scanPayload(n.Output)
	n.Usage = stats.usage
	n.Model = stats.model
	n.DurationMs = stats.durationMs
	return n
}

// linkNodes derives edges. Tasks may declare their own predecessors in
// checkpoint metadata under "parents" (task id -> predecessor id or list
// of ids). When that metadata is absent the nodes are chained in write
// order; the graph is flagged DegradedTopology since the linear chain is
// an approximation, not the declared structure.
func (r *Reconstructor) linkNodes(g *Graph, metadata map[string]any) {
	parents, _ := metadata["parents"].(map[string]any)

	if len(parents) == 0 {
		g.DegradedTopology = len(g.Nodes) > 1
		for i := 1; i < len(g.Nodes); i++ {
			g.Edges = append(g.Edges, Edge{Source: g.Nodes[i-1].ID, Target: g.Nodes[i].ID, Label: "next"})
			g.Nodes[i].ParentID = g.Nodes[i-1].ID
			g.Nodes[i-1].Children = append(g.Nodes[i-1].Children, g.Nodes[i].ID)
		}
		return
	}

	for _, n := range g.Nodes {
		for _, pred := range predecessorIDs(parents[n.ID]) {
			if pred == n.ID || g.Node(pred) == nil {
				continue
			}
			if reaches(g, n.ID, pred) {
				// Dropping the back edge keeps the invariant that a
				// single checkpoint's graph is acyclic.
				if r.logger != nil {
					r.logger.Warn("dropping cyclic edge",
						slog.String("checkpoint_id", g.CheckpointID),
						slog.String("source", pred),
						slog.String("target", n.ID),
					)
				}
				continue
			}
			g.Edges = append(g.Edges, Edge{Source: pred, Target: n.ID})
			target := g.Node(n.ID)
			if target.ParentID == "" {
				target.ParentID = pred
			}
			source := g.Node(pred)
			source.Children = append(source.Children, n.ID)
		}
	}
}

func predecessorIDs(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return val
	}
	return nil
}

// reaches reports whether target is reachable from source over existing
// edges.
func reaches(g *Graph, source, target string) bool {
	if source == target {
		return true
	}
	next := make(map[string][]string, len(g.Edges))
	for _, e := range g.Edges {
		next[e.Source] = append(next[e.Source], e.Target)
	}
	stack := []string{source}
	seen := map[string]bool{source: true}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, n := range next[cur] {
			if n == target {
				return true
			}
			if !seen[n] {
				seen[n] = true
				stack = append(stack, n)
			}
		}
	}
	return false
}

// blobHash fingerprints blob bytes for the decode cache key.
func blobHash(data []byte) string {
	h := fnv.New64a()
	h.Write(data)
	return fmt.Sprintf("%016x", h.Sum64())
}
