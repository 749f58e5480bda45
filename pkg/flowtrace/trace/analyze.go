package trace

import "context"

// analyzeCheckpointLimit bounds how many checkpoints a thread rollup
// walks. Threads larger than this are summarized from their most recent
// checkpoints.
const analyzeCheckpointLimit = 1000

// ThreadAnalysis is the metrics rollup across every checkpoint of a
// thread.
type ThreadAnalysis struct {
	ThreadID        string `json:"thread_id"`
	CheckpointCount int    `json:"checkpoint_count"`

	Tokens          TokenUsage `json:"token_usage"`
	TotalCost       float64    `json:"total_cost"`
	Currency        string     `json:"currency"`
	TotalDurationMs float64    `json:"total_duration_ms"`

	AvgTokensPerCheckpoint float64 `json:"avg_tokens_per_checkpoint"`
	AvgCostPerCheckpoint   float64 `json:"avg_cost_per_checkpoint"`

	Checkpoints []ExecutionSummary `json:"checkpoints"`
}

// AnalyzeThread reconstructs and summarizes every checkpoint of a thread.
// An unknown thread yields a zero-count analysis, not an error.
func (r *Reconstructor) AnalyzeThread(ctx context.Context, threadID string) (*ThreadAnalysis, error) {
	checkpoints, total, err := r.adapter.ListCheckpoints(ctx, threadID, analyzeCheckpointLimit, 0)
	if err != nil {
		return nil, err
	}

	analysis := &ThreadAnalysis{
		ThreadID:        threadID,
		CheckpointCount: total,
		Currency:        r.pricing.Currency,
		Checkpoints:     make([]ExecutionSummary, 0, len(checkpoints)),
	}

	for _, cp := range checkpoints {
		result, err := r.Trace(ctx, threadID, cp.ID, true)
		if err != nil {
			return nil, err
		}
		s := result.Summary
		analysis.Checkpoints = append(analysis.Checkpoints, s)
		analysis.Tokens.Add(s.Tokens)
		analysis.TotalCost += s.Cost.TotalCost
		analysis.TotalDurationMs += s.Durations.TotalMs
	}

	if n := len(analysis.Checkpoints); n > 0 {
		analysis.AvgTokensPerCheckpoint = float64(analysis.Tokens.TotalTokens) / float64(n)
		analysis.AvgCostPerCheckpoint = analysis.TotalCost / float64(n)
	}
	return analysis, nil
}

// TimelineEntry is one checkpoint in a thread's compact history view.
type TimelineEntry struct {
	CheckpointID string `json:"checkpoint_id"`
	ParentID     string `json:"parent_checkpoint_id,omitempty"`
	Step         int    `json:"step,omitempty"`
	Source       string `json:"source,omitempty"`
	TaskCount    int    `json:"task_count"`
	ChannelCount int    `json:"channel_count"`
}

// Timeline lists a thread's checkpoints newest-first with step metadata
// and write statistics, without decoding any blobs.
func (r *Reconstructor) Timeline(ctx context.Context, threadID string, limit int) ([]TimelineEntry, error) {
	checkpoints, _, err := r.adapter.ListCheckpoints(ctx, threadID, limit, 0)
	if err != nil {
		return nil, err
	}

	timeline := make([]TimelineEntry, 0, len(checkpoints))
	for _, cp := range checkpoints {
		entry := TimelineEntry{
			CheckpointID: cp.ID,
			ParentID:     cp.ParentID,
		}
		if step, ok := asInt(cp.Metadata["step"]); ok {
			entry.Step = step
		}
		if source, ok := cp.Metadata["source"].(string); ok {
			entry.Source = source
		}

		writes, err := r.adapter.GetWrites(ctx, threadID, cp.ID)
		if err != nil {
			return nil, err
		}
		tasks := make(map[string]bool)
		channels := make(map[string]bool)
		for _, w := range writes {
			tasks[w.TaskID] = true
			channels[w.Channel] = true
		}
		entry.TaskCount = len(tasks)
		entry.ChannelCount = len(channels)

		timeline = append(timeline, entry)
	}
	return timeline, nil
}
