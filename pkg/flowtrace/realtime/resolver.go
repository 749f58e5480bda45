package realtime

import (
	"github.com/google/uuid"
)

// FallbackThreadID is returned when no strategy matches and the event
// carries no run id to derive a thread from.
const FallbackThreadID = "default-thread"

// CallContext carries the fields of an inbound callback that thread
// resolution may consult.
type CallContext struct {
	// Configurable mirrors the engine's per-invocation config map.
	Configurable map[string]any

	// Metadata mirrors the engine's callback metadata map.
	Metadata map[string]any

	// RunID is the root run identifier of the callback.
	RunID string
}

// ResolverFunc lets callers supply their own thread extraction logic.
// Returning "" declines, passing resolution to the next strategy.
type ResolverFunc func(CallContext) string

// Resolver maps a callback to a thread id by trying a fixed sequence of
// strategies and taking the first non-empty answer:
//
//  1. a caller-supplied ResolverFunc
//  2. Configurable["thread_id"]
//  3. Metadata["thread_id"]
//  4. a static thread id configured at construction
//  5. a deterministic id derived from the run id
//
// Resolution is pure: the same context always yields the same id, and
// Resolve never fails.
type Resolver struct {
	callerFunc ResolverFunc
	staticID   string
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverFunc installs a caller-supplied strategy. It takes
// precedence over every other strategy.
func WithResolverFunc(fn ResolverFunc) ResolverOption {
	return func(r *Resolver) {
		r.callerFunc = fn
	}
}

// WithStaticThreadID installs a fixed thread id used when neither the
// caller func nor the event's maps identify a thread.
func WithStaticThreadID(id string) ResolverOption {
	return func(r *Resolver) {
		r.staticID = id
	}
}

// NewResolver builds a Resolver with the given options.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the thread id for the given callback context.
func (r *Resolver) Resolve(cc CallContext) string {
	if r.callerFunc != nil {
		if id := r.callerFunc(cc); id != "" {
			return id
		}
	}
	if id := stringField(cc.Configurable, "thread_id"); id != "" {
		return id
	}
	if id := stringField(cc.Metadata, "thread_id"); id != "" {
		return id
	}
	if r.staticID != "" {
		return r.staticID
	}
	return runDerivedThreadID(cc.RunID)
}

// runDerivedThreadID produces a stable per-run thread id so that events
// from one run land in one buffer even when nothing names a thread.
func runDerivedThreadID(runID string) string {
	if runID == "" {
		return FallbackThreadID
	}
	return "auto-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(runID)).String()
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
