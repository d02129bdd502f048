// Package cooldown enforces a minimum interval between successive replies.
// One Governor is shared by the whole process: one searcher, one reply stream.
package cooldown

import "time"

// Governor is the single reply gate. It is touched only by the cycle loop.
type Governor struct {
	interval time.Duration
	last     time.Time
	replied  bool
	now      func() time.Time
}

// Option configures a Governor.
type Option func(*Governor)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

// New creates a Governor. An interval <= 0 means unthrottled.
func New(interval time.Duration, opts ...Option) *Governor {
	g := &Governor{interval: interval, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// MayReplyNow reports whether a reply may be dispatched now: no reply was
// ever recorded, or at least the interval has elapsed since the last one.
func (g *Governor) MayReplyNow() bool {
	if !g.replied || g.interval <= 0 {
		return true
	}
	return g.now().Sub(g.last) >= g.interval
}

// RecordReply stores the time of a successful dispatch.
func (g *Governor) RecordReply(at time.Time) {
	g.last = at
	g.replied = true
}

// Remaining is the time until MayReplyNow becomes true (0 if it already is).
func (g *Governor) Remaining() time.Duration {
	if g.MayReplyNow() {
		return 0
	}
	return g.interval - g.now().Sub(g.last)
}

// LastReply returns the last recorded dispatch time and whether one exists.
func (g *Governor) LastReply() (time.Time, bool) {
	return g.last, g.replied
}

// Interval returns the configured interval.
func (g *Governor) Interval() time.Duration { return g.interval }
