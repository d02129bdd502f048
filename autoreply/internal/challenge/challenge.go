// Package challenge tracks anti-automation challenges raised by the feed.
//
// A challenge needs a human: the detector never times out and never retries
// on its own schedule. It moves Normal → ChallengePresented →
// AwaitingManualResolution as soon as the feed reports a challenge, and back
// to Normal only when a probe of the feed shows the expected content again.
package challenge

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Signal is what the feed reports about the page it is showing.
type Signal int

const (
	SignalNormal Signal = iota
	SignalChallenge
	// SignalRateLimited is a platform rate-limit notice. It is not a
	// challenge and does not change the detector state.
	SignalRateLimited
	// SignalUnknown means the page could not be read or showed none of the
	// expected content. It never resolves a stall.
	SignalUnknown
)

func (s Signal) String() string {
	switch s {
	case SignalNormal:
		return "normal"
	case SignalChallenge:
		return "challenge"
	case SignalRateLimited:
		return "rate_limited"
	case SignalUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// State is the detector state.
type State int

const (
	StateNormal State = iota
	StateChallengePresented
	StateAwaitingManualResolution
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateChallengePresented:
		return "challenge_presented"
	case StateAwaitingManualResolution:
		return "awaiting_manual_resolution"
	default:
		return "unknown"
	}
}

// Probe samples the feed's page signal.
type Probe func(ctx context.Context) Signal

// Config configures a Detector.
type Config struct {
	// PollInterval is how often AwaitResolution probes the feed. It is
	// deliberately slower than the cycle cadence. Default: 30s.
	PollInterval time.Duration
	// OnTransition is called after every state change, outside the lock.
	OnTransition func(from, to State)
	Logger       *slog.Logger
	Now          func() time.Time
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Detector is safe for concurrent use: the cycle loop drives it while the
// status API reads it.
type Detector struct {
	cfg     Config
	mu      sync.Mutex
	state   State
	since   time.Time
	stalls  int
	recheck chan struct{}
}

// New creates a Detector in StateNormal.
func New(cfg Config) *Detector {
	cfg.defaults()
	return &Detector{
		cfg:     cfg,
		since:   cfg.Now(),
		recheck: make(chan struct{}, 1),
	}
}

// State returns the current state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Since returns how long the detector has been in its current state.
func (d *Detector) Since() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.Now().Sub(d.since)
}

// Stalls returns how many challenges have been observed since start.
func (d *Detector) Stalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stalls
}

// Observe feeds a page signal into the state machine and returns the state
// after it. A challenge in StateNormal moves straight through
// ChallengePresented to AwaitingManualResolution. Only a normal signal
// resolves a stall; rate-limit and unknown signals leave the state as is.
func (d *Detector) Observe(sig Signal) State {
	switch sig {
	case SignalChallenge:
		if d.transition(StateNormal, StateChallengePresented) {
			d.cfg.Logger.Warn("challenge: detected, pausing all feed queries and replies")
			d.transition(StateChallengePresented, StateAwaitingManualResolution)
			d.cfg.Logger.Warn("challenge: AWAITING MANUAL RESOLUTION, solve the challenge in the browser window")
		}
	case SignalNormal:
		if d.resolve() {
			d.cfg.Logger.Info("challenge: resolved, resuming")
		}
	}
	return d.State()
}

// Recheck asks a pending AwaitResolution to probe immediately. It never
// changes the state by itself.
func (d *Detector) Recheck() {
	select {
	case d.recheck <- struct{}{}:
	default:
	}
}

// AwaitResolution blocks while the detector is stalled, probing the feed
// every PollInterval (or on Recheck) until the probe reports SignalNormal.
// Any other signal, including SignalUnknown from a failed probe, keeps it
// waiting. There is no timeout; only ctx cancellation ends the wait early.
func (d *Detector) AwaitResolution(ctx context.Context, probe Probe) error {
	if d.State() == StateNormal {
		return nil
	}

	timer := time.NewTimer(d.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.recheck:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}

		sig := probe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if sig == SignalNormal {
			d.Observe(SignalNormal)
			return nil
		}
		d.cfg.Logger.Warn("challenge: still awaiting manual resolution",
			"signal", sig.String(), "stalled_for", d.Since().Round(time.Second))
		timer.Reset(d.cfg.PollInterval)
	}
}

func (d *Detector) transition(from, to State) bool {
	d.mu.Lock()
	if d.state != from {
		d.mu.Unlock()
		return false
	}
	d.state = to
	d.since = d.cfg.Now()
	if to == StateChallengePresented {
		d.stalls++
	}
	d.mu.Unlock()

	if d.cfg.OnTransition != nil {
		d.cfg.OnTransition(from, to)
	}
	return true
}

func (d *Detector) resolve() bool {
	d.mu.Lock()
	from := d.state
	if from == StateNormal {
		d.mu.Unlock()
		return false
	}
	d.state = StateNormal
	d.since = d.cfg.Now()
	d.mu.Unlock()

	if d.cfg.OnTransition != nil {
		d.cfg.OnTransition(from, StateNormal)
	}
	return true
}
