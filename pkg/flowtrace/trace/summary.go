package trace

import (
	"sort"
	"strings"
)

// TokenUsage tracks token consumption.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// ModelPrice is the unit price for one model, in currency units per
// million tokens.
type ModelPrice struct {
	InputPerMTok  float64 `json:"input_per_mtok" yaml:"input_per_mtok"`
	OutputPerMTok float64 `json:"output_per_mtok" yaml:"output_per_mtok"`
}

// Pricing maps model names to unit prices. Unknown models fall back to
// Default.
type Pricing struct {
	Currency string                `json:"currency" yaml:"currency"`
	Default  ModelPrice            `json:"default" yaml:"default"`
	Models   map[string]ModelPrice `json:"models" yaml:"models"`
}

// DefaultPricing returns the fallback price table.
func DefaultPricing() Pricing {
	return Pricing{
		Currency: "USD",
		Default:  ModelPrice{InputPerMTok: 3.0, OutputPerMTok: 15.0},
	}
}

func (p Pricing) price(model string) ModelPrice {
	if mp, ok := p.Models[model]; ok {
		return mp
	}
	return p.Default
}

// CostMetrics is the derived cost of an execution.
type CostMetrics struct {
	PromptCost     float64 `json:"prompt_cost"`
	CompletionCost float64 `json:"completion_cost"`
	TotalCost      float64 `json:"total_cost"`
	Currency       string  `json:"currency"`
}

// DurationBreakdown splits observed execution time by node category.
type DurationBreakdown struct {
	TotalMs float64 `json:"total_ms"`
	ModelMs float64 `json:"model_ms"`
	ToolMs  float64 `json:"tool_ms"`
	OtherMs float64 `json:"other_ms"`
}

// ExecutionSummary aggregates a reconstructed graph's metrics.
// TotalTokens always equals the sum of per-node token counts; a graph
// where no node reports tokens sums to zero, never to absence.
type ExecutionSummary struct {
	ThreadID     string `json:"thread_id"`
	CheckpointID string `json:"checkpoint_id"`

	TotalNodes   int `json:"total_nodes"`
	RunningCount int `json:"running_count"`
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`

	Tokens    TokenUsage        `json:"token_usage"`
	Cost      CostMetrics       `json:"cost_metrics"`
	Durations DurationBreakdown `json:"duration_breakdown"`
}

// Summarize computes the ExecutionSummary for a reconstructed graph.
func Summarize(g *Graph, pricing Pricing) ExecutionSummary {
	s := ExecutionSummary{
		ThreadID:     g.ThreadID,
		CheckpointID: g.CheckpointID,
		TotalNodes:   len(g.Nodes),
		Cost:         CostMetrics{Currency: pricing.Currency},
	}

	for _, n := range g.Nodes {
		switch n.Status {
		case StatusRunning:
			s.RunningCount++
		case StatusError:
			s.ErrorCount++
		default:
			s.SuccessCount++
		}

		s.Tokens.Add(n.Usage)

		price := pricing.price(n.Model)
		s.Cost.PromptCost += float64(n.Usage.PromptTokens) / 1e6 * price.InputPerMTok
		s.Cost.CompletionCost += float64(n.Usage.CompletionTokens) / 1e6 * price.OutputPerMTok

		s.Durations.TotalMs += n.DurationMs
		switch n.Kind {
		case KindModelCall:
			s.Durations.ModelMs += n.DurationMs
		case KindToolCall:
			s.Durations.ToolMs += n.DurationMs
		default:
			s.Durations.OtherMs += n.DurationMs
		}
	}
	s.Cost.TotalCost = s.Cost.PromptCost + s.Cost.CompletionCost
	return s
}

// payloadStats is what scanPayload recognizes inside a node's decoded
// payload.
type payloadStats struct {
	usage      TokenUsage
	model      string
	durationMs float64
}

// scanPayload walks a decoded payload looking for token, model, and
// timing fields. Recognized shapes (any nesting level):
//
//	{"prompt_tokens": N, "completion_tokens": M}
//	{"input_tokens": N, "output_tokens": M}
//	{"duration_ms": D}
//	{"model": "...")} or {"model_name": "..."}
//
// Payloads without such fields contribute zero.
func scanPayload(v any) payloadStats {
	var stats payloadStats
	scanValue(v, &stats)
	stats.usage.TotalTokens = stats.usage.PromptTokens + stats.usage.CompletionTokens
	return stats
}

func scanValue(v any, stats *payloadStats) {
	switch val := v.(type) {
	case map[string]any:
		prompt, hasPrompt := asInt(firstOf(val, "prompt_tokens", "input_tokens"))
		completion, hasCompletion := asInt(firstOf(val, "completion_tokens", "output_tokens"))
		if hasPrompt || hasCompletion {
			stats.usage.PromptTokens += prompt
			stats.usage.CompletionTokens += completion
		}
		if d, ok := asFloat(val["duration_ms"]); ok {
			stats.durationMs += d
		}
		if stats.model == "" {
			if m, ok := firstOf(val, "model", "model_name").(string); ok {
				stats.model = m
			}
		}
		// Recurse in sorted key order: map iteration order is random,
		// and the first model found must be the same one every run.
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			scanValue(val[k], stats)
		}
	case []any:
		for _, item := range val {
			scanValue(item, stats)
		}
	}
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// inferKind classifies a node from its channel names.
func inferKind(channels []string) NodeKind {
	for _, c := range channels {
		lc := strings.ToLower(c)
		switch {
		case strings.Contains(lc, "llm"), strings.Contains(lc, "model"), strings.Contains(lc, "messages"):
			return KindModelCall
		case strings.Contains(lc, "tool"):
			return KindToolCall
		case strings.Contains(lc, "branch"):
			return KindBranch
		}
	}
	return KindTask
}
