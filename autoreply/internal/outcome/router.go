package outcome

import (
	"context"
	"log/slog"
)

// Router fans records out to every sink. One failing sink does not block
// the others: errors are logged and the first one is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router. Nil sinks are dropped.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{logger: logger}
	for _, s := range sinks {
		if s != nil {
			r.sinks = append(r.sinks, s)
		}
	}
	return r
}

// Len returns the number of sinks.
func (r *Router) Len() int { return len(r.sinks) }

func (r *Router) Decision(ctx context.Context, d Decision) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Decision(ctx, d); err != nil {
			r.logger.Warn("outcome: send decision failed", "post_id", d.PostID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Cycle(ctx context.Context, c CycleSummary) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Cycle(ctx, c); err != nil {
			r.logger.Warn("outcome: send cycle summary failed", "cycle_id", c.CycleID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
