// Package classify bounds calls to a remote intent classifier.
//
// The Gateway owns the time bound: the service runs in its own goroutine and
// Classify returns ErrTimeout once the bound elapses, whether or not the
// service honours context cancellation. A circuit breaker fails calls fast
// with ErrClassifier while the service keeps failing. The gateway never
// retries.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"github.com/hazyhaar/replyd/kit"
)

var (
	// ErrTimeout is returned when the service does not answer within the bound.
	ErrTimeout = errors.New("classify: timeout")
	// ErrClassifier wraps every other service failure, including an open circuit.
	ErrClassifier = errors.New("classify: classifier error")
)

// Default candidate labels and target, carried over from the seller/buyer
// classifier the bot was built for.
var DefaultLabels = []string{"penjual", "pembeli", "lainnya"}

const (
	DefaultTargetLabel = "pembeli"
	DefaultThreshold   = 0.8
	DefaultTimeout     = 4 * time.Second
)

// Verdict is the classifier's answer for one text.
type Verdict struct {
	ShouldReply bool    `json:"should_reply"`
	Label       string  `json:"label"`
	Confidence  float64 `json:"confidence"`
}

// Service is the remote classifier boundary. Implementations should honour
// ctx, but the Gateway does not rely on it.
type Service interface {
	Classify(ctx context.Context, text string, labels []string) (label string, confidence float64, err error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, text string, labels []string) (string, float64, error)

func (f ServiceFunc) Classify(ctx context.Context, text string, labels []string) (string, float64, error) {
	return f(ctx, text, labels)
}

// Config configures a Gateway.
type Config struct {
	Timeout     time.Duration
	Labels      []string
	TargetLabel string
	Threshold   float64

	// BreakerFailures failures out of BreakerWindow executions open the
	// circuit for BreakerDelay. Defaults: 5 of 10, 30s.
	BreakerFailures uint
	BreakerWindow   uint
	BreakerDelay    time.Duration

	// OnBreakerChange is called on circuit state changes ("closed",
	// "half-open", "open").
	OnBreakerChange func(from, to string)
	Logger          *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if len(c.Labels) == 0 {
		c.Labels = DefaultLabels
	}
	if c.TargetLabel == "" {
		c.TargetLabel = DefaultTargetLabel
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.BreakerWindow == 0 {
		c.BreakerWindow = 10
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerFailures > c.BreakerWindow {
		c.BreakerFailures = c.BreakerWindow
	}
	if c.BreakerDelay <= 0 {
		c.BreakerDelay = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Gateway is safe for concurrent use.
type Gateway struct {
	svc     Service
	cfg     Config
	breaker circuitbreaker.CircuitBreaker[Verdict]
}

// NewGateway wraps svc with the time bound, verdict policy and breaker.
func NewGateway(svc Service, cfg Config) *Gateway {
	cfg.defaults()
	g := &Gateway{svc: svc, cfg: cfg}

	g.breaker = circuitbreaker.NewBuilder[Verdict]().
		WithFailureThresholdRatio(cfg.BreakerFailures, cfg.BreakerWindow).
		WithDelay(cfg.BreakerDelay).
		WithSuccessThreshold(1).
		HandleIf(func(_ Verdict, err error) bool {
			// Shutdown is not a classifier failure.
			return err != nil && !errors.Is(err, context.Canceled)
		}).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			from, to := stateName(event.OldState), stateName(event.NewState)
			cfg.Logger.Warn("classify: circuit breaker state change", "from", from, "to", to)
			if cfg.OnBreakerChange != nil {
				cfg.OnBreakerChange(from, to)
			}
		}).
		Build()
	return g
}

// Timeout returns the configured bound.
func (g *Gateway) Timeout() time.Duration { return g.cfg.Timeout }

// BreakerOpen reports whether calls are currently failing fast.
func (g *Gateway) BreakerOpen() bool { return g.breaker.IsOpen() }

// Classify asks the service about text and applies the verdict policy:
// ShouldReply is true only for the target label at or above the threshold.
// It returns within the configured timeout.
func (g *Gateway) Classify(ctx context.Context, text string) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	v, err := failsafe.With[Verdict](g.breaker).Get(func() (Verdict, error) {
		return g.call(ctx, text)
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			err = fmt.Errorf("%w: circuit open", ErrClassifier)
		}
		g.cfg.Logger.Debug("classify: failed", "post_id", kit.GetPostID(ctx), "error", err)
		return Verdict{}, err
	}
	g.cfg.Logger.Debug("classify: verdict",
		"post_id", kit.GetPostID(ctx), "label", v.Label, "confidence", v.Confidence, "reply", v.ShouldReply)
	return v, nil
}

type result struct {
	label string
	conf  float64
	err   error
}

func (g *Gateway) call(ctx context.Context, text string) (Verdict, error) {
	cctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	// Buffered so an abandoned call can still complete and exit.
	ch := make(chan result, 1)
	go func() {
		label, conf, err := g.svc.Classify(cctx, text, g.cfg.Labels)
		ch <- result{label: label, conf: conf, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if ctx.Err() != nil {
				return Verdict{}, ctx.Err()
			}
			if errors.Is(r.err, context.DeadlineExceeded) {
				return Verdict{}, fmt.Errorf("%w after %s", ErrTimeout, g.cfg.Timeout)
			}
			return Verdict{}, fmt.Errorf("%w: %v", ErrClassifier, r.err)
		}
		return g.verdict(r.label, r.conf), nil
	case <-cctx.Done():
		if ctx.Err() != nil {
			return Verdict{}, ctx.Err()
		}
		return Verdict{}, fmt.Errorf("%w after %s", ErrTimeout, g.cfg.Timeout)
	}
}

func (g *Gateway) verdict(label string, conf float64) Verdict {
	label = strings.ToLower(strings.TrimSpace(label))
	return Verdict{
		ShouldReply: label == strings.ToLower(g.cfg.TargetLabel) && conf >= g.cfg.Threshold,
		Label:       label,
		Confidence:  conf,
	}
}

func stateName(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.ClosedState:
		return "closed"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	case circuitbreaker.OpenState:
		return "open"
	default:
		return "unknown"
	}
}
