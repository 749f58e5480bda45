// Package trace reconstructs execution graphs from persisted checkpoint
// data and derives token, cost, and timing metrics from them.
//
// Reconstruction is read-only and deterministic: the node and edge sets
// are a strict function of a checkpoint's writes and blobs, so re-running
// it on identical input yields an identical graph. Calls are stateless and
// safe to run in parallel across checkpoints.
package trace

// NodeKind classifies what a task execution did.
type NodeKind string

// Node kinds recognized during reconstruction.
const (
	KindModelCall NodeKind = "model_call"
	KindToolCall  NodeKind = "tool_call"
	KindBranch    NodeKind = "branch"
	KindTask      NodeKind = "task"
	KindNoop      NodeKind = "noop"
)

// Status is the derived execution state of a node.
type Status string

// Node statuses.
const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// PlaceholderPayload marks an output that was intentionally not decoded
// because the caller skipped blob loading. It is never stale data.
const PlaceholderPayload = "<blobs omitted>"

// Node is one task execution derived from a checkpoint's write set.
// There is exactly one node per distinct task identifier.
type Node struct {
	ID       string         `json:"id"`
	Kind     NodeKind       `json:"kind"`
	Name     string         `json:"name"`
	Status   Status         `json:"status"`
	Input    map[string]any `json:"input,omitempty"`
	Output   map[string]any `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	ParentID string         `json:"parent_id,omitempty"`
	Children []string       `json:"children,omitempty"`

	// Usage and DurationMs are scanned from the node's payload; nodes
	// without recognizable fields report zero, not absence.
	Usage      TokenUsage `json:"usage"`
	Model      string     `json:"model,omitempty"`
	DurationMs float64    `json:"duration_ms,omitempty"`
}

// Edge is a data or control dependency between two nodes.
// Edges never form a cycle within one checkpoint's reconstruction.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

// Graph is the reconstructed execution DAG for one checkpoint.
type Graph struct {
	ThreadID     string `json:"thread_id"`
	CheckpointID string `json:"checkpoint_id"`
	Nodes        []Node `json:"nodes"`
	Edges        []Edge `json:"edges"`

	// DegradedTopology is true when graph-structure metadata was absent
	// and edges were derived by chaining nodes in write order. The linear
	// chain is a documented lower-fidelity fallback, not the declared
	// topology.
	DegradedTopology bool `json:"degraded_topology,omitempty"`
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}
