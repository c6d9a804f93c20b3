package workflow

import "context"

type contextKey int

const (
	runIDKey contextKey = iota
	nodeIDKey
)

// WithIdentity attaches the run and node identifiers a NodeExecutor is
// currently executing on behalf of, so a Node Host can auto-tag its
// structured logger without widening the NodeExecutor interface.
func WithIdentity(ctx context.Context, runID, nodeID string) context.Context {
	ctx = context.WithValue(ctx, runIDKey, runID)
	ctx = context.WithValue(ctx, nodeIDKey, nodeID)
	return ctx
}

// RunID extracts the run_id attached by WithIdentity, if any.
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(runIDKey).(string)
	return v, ok
}

// NodeID extracts the node_id attached by WithIdentity, if any.
func NodeID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(nodeIDKey).(string)
	return v, ok
}
