package outcome

import "context"

// DecisionFunc receives each decision in-process.
type DecisionFunc func(ctx context.Context, d Decision) error

// CycleFunc receives each cycle summary in-process.
type CycleFunc func(ctx context.Context, c CycleSummary) error

// Callback delivers records through Go function calls. Either func may be nil.
type Callback struct {
	onDecision DecisionFunc
	onCycle    CycleFunc
}

func NewCallback(onDecision DecisionFunc, onCycle CycleFunc) *Callback {
	return &Callback{onDecision: onDecision, onCycle: onCycle}
}

func (c *Callback) Decision(ctx context.Context, d Decision) error {
	if c.onDecision != nil {
		return c.onDecision(ctx, d)
	}
	return nil
}

func (c *Callback) Cycle(ctx context.Context, s CycleSummary) error {
	if c.onCycle != nil {
		return c.onCycle(ctx, s)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
