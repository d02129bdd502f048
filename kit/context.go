// Package kit holds the transport-neutral plumbing shared by replyd's
// surfaces: endpoint chaining, context keys and MCP tool registration.
package kit

import "context"

type contextKey string

const (
	CycleIDKey   contextKey = "kit_cycle_id"
	PostIDKey    contextKey = "kit_post_id"
	TransportKey contextKey = "kit_transport" // "http", "mcp"
	TraceIDKey   contextKey = "kit_trace_id"
)

func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CycleIDKey, id)
}
func GetCycleID(ctx context.Context) string {
	v, _ := ctx.Value(CycleIDKey).(string)
	return v
}

func WithPostID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, PostIDKey, id)
}
func GetPostID(ctx context.Context) string {
	v, _ := ctx.Value(PostIDKey).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}
