package trace

import (
	"context"
	"reflect"
	"sort"
)

// ChangeKind classifies a channel's difference between two checkpoints.
type ChangeKind string

// Channel change kinds.
const (
	ChangeAdded     ChangeKind = "added"
	ChangeRemoved   ChangeKind = "removed"
	ChangeChanged   ChangeKind = "changed"
	ChangeUnchanged ChangeKind = "unchanged"
)

// ChannelDiff is one channel's classification. For changed channels both
// decoded values are emitted; for added/removed only the side that has one.
type ChannelDiff struct {
	Channel string     `json:"channel"`
	Kind    ChangeKind `json:"kind"`
	Source  any        `json:"source,omitempty"`
	Target  any        `json:"target,omitempty"`
}

// SummaryDeltas are the metric differences target minus source.
type SummaryDeltas struct {
	Tokens     int     `json:"token_diff"`
	Cost       float64 `json:"cost_diff"`
	DurationMs float64 `json:"duration_diff_ms"`
	Nodes      int     `json:"node_count_diff"`
}

// Diff is the structural comparison of two checkpoints on one thread.
type Diff struct {
	ThreadID string        `json:"thread_id"`
	SourceID string        `json:"source_checkpoint_id"`
	TargetID string        `json:"target_checkpoint_id"`
	Channels []ChannelDiff `json:"channels"`
	Deltas   SummaryDeltas `json:"deltas"`
}

// Compare diffs checkpoint target against checkpoint source.
//
// Each channel present in either checkpoint's decoded state is classified
// as added, removed, changed, or unchanged. Equality is deep structural
// comparison of decoded values; output is channel-name sorted for
// determinism.
func (r *Reconstructor) Compare(ctx context.Context, threadID, sourceID, targetID string) (*Diff, error) {
	source, err := r.Trace(ctx, threadID, sourceID, true)
	if err != nil {
		return nil, err
	}
	target, err := r.Trace(ctx, threadID, targetID, true)
	if err != nil {
		return nil, err
	}

	sourceState := channelState(source.Graph)
	targetState := channelState(target.Graph)

	names := make(map[string]bool, len(sourceState)+len(targetState))
	for ch := range sourceState {
		names[ch] = true
	}
	for ch := range targetState {
		names[ch] = true
	}
	sorted := make([]string, 0, len(names))
	for ch := range names {
		sorted = append(sorted, ch)
	}
	sort.Strings(sorted)

	diff := &Diff{
		ThreadID: threadID,
		SourceID: sourceID,
		TargetID: targetID,
		Channels: make([]ChannelDiff, 0, len(sorted)),
		Deltas: SummaryDeltas{
			Tokens:     target.Summary.Tokens.TotalTokens - source.Summary.Tokens.TotalTokens,
			Cost:       target.Summary.Cost.TotalCost - source.Summary.Cost.TotalCost,
			DurationMs: target.Summary.Durations.TotalMs - source.Summary.Durations.TotalMs,
			Nodes:      target.Summary.TotalNodes - source.Summary.TotalNodes,
		},
	}

	for _, ch := range sorted {
		sv, inSource := sourceState[ch]
		tv, inTarget := targetState[ch]
		switch {
		case !inSource:
			diff.Channels = append(diff.Channels, ChannelDiff{Channel: ch, Kind: ChangeAdded, Target: tv})
		case !inTarget:
			diff.Channels = append(diff.Channels, ChannelDiff{Channel: ch, Kind: ChangeRemoved, Source: sv})
		case reflect.DeepEqual(sv, tv):
			diff.Channels = append(diff.Channels, ChannelDiff{Channel: ch, Kind: ChangeUnchanged, Source: sv, Target: tv})
		default:
			diff.Channels = append(diff.Channels, ChannelDiff{Channel: ch, Kind: ChangeChanged, Source: sv, Target: tv})
		}
	}
	return diff, nil
}

// channelState merges a reconstructed graph's node outputs into the
// checkpoint's channel -> decoded value view. Later writes win within a
// checkpoint, matching write order.
func channelState(g *Graph) map[string]any {
	state := make(map[string]any)
	for _, n := range g.Nodes {
		if n.Kind == KindNoop {
			continue
		}
		for ch, v := range n.Output {
			state[ch] = v
		}
	}
	return state
}
