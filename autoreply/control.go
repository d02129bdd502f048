package autoreply

import (
	"context"
	"time"

	"github.com/hazyhaar/replyd/autoreply/internal/challenge"
	"github.com/hazyhaar/replyd/autoreply/internal/keyword"
)

// Status is a point-in-time view of the bot for the status API.
type Status struct {
	State             string               `json:"state"`
	Challenge         string               `json:"challenge"`
	ChallengeFor      string               `json:"challenge_for,omitempty"`
	ChallengeStalls   int                  `json:"challenge_stalls"`
	Paused            bool                 `json:"paused"`
	DryRun            bool                 `json:"dry_run"`
	LoggedIn          bool                 `json:"logged_in"`
	Query             string               `json:"query"`
	Cycles            int                  `json:"cycles"`
	LastCycle         *CycleSummary        `json:"last_cycle,omitempty"`
	Decisions         map[DecisionKind]int `json:"decisions"`
	RepliedIDs        int                  `json:"replied_ids"`
	PersistPending    bool                 `json:"dedupe_persist_pending,omitempty"`
	LastReplyAt       *time.Time           `json:"last_reply_at,omitempty"`
	CooldownRemaining string               `json:"cooldown_remaining"`
	ClassifierEnabled bool                 `json:"classifier_enabled"`
	BreakerOpen       bool                 `json:"classifier_breaker_open,omitempty"`
	Uptime            string               `json:"uptime"`
}

type breakerReporter interface{ BreakerOpen() bool }

// Status returns the current status. Safe to call from any goroutine.
func (b *Bot) Status() Status {
	now := b.now()
	cs := b.detector.State()

	b.mu.Lock()
	defer b.mu.Unlock()

	st := Status{
		State:             b.snap.state,
		Challenge:         cs.String(),
		ChallengeStalls:   b.detector.Stalls(),
		Paused:            b.paused.Load(),
		DryRun:            b.dryRun.Load(),
		LoggedIn:          b.snap.loggedIn,
		Query:             b.query,
		Cycles:            b.snap.cycles,
		LastCycle:         b.snap.lastCycle,
		Decisions:         make(map[DecisionKind]int, len(b.snap.counts)),
		RepliedIDs:        b.snap.replied,
		PersistPending:    b.snap.persistPending,
		ClassifierEnabled: b.classifier != nil,
		CooldownRemaining: "0s",
		Uptime:            now.Sub(b.snap.startedAt).Round(time.Second).String(),
	}
	for k, v := range b.snap.counts {
		st.Decisions[k] = v
	}
	if cs != challenge.StateNormal {
		st.State = cs.String()
		st.ChallengeFor = b.detector.Since().Round(time.Second).String()
	} else if st.Paused && st.State == "running" {
		st.State = "paused"
	}
	if !b.snap.lastReply.IsZero() {
		at := b.snap.lastReply
		st.LastReplyAt = &at
		iv := b.cooldown.Interval()
		if rem := at.Add(iv).Sub(now); iv > 0 && rem > 0 {
			st.CooldownRemaining = rem.Round(time.Second).String()
		}
	}
	if br, ok := b.classifier.(breakerReporter); ok {
		st.BreakerOpen = br.BreakerOpen()
	}
	return st
}

// Recent returns up to n of the most recent decisions, oldest first.
func (b *Bot) Recent(n int) []Decision {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || n > len(b.recent) {
		n = len(b.recent)
	}
	out := make([]Decision, n)
	copy(out, b.recent[len(b.recent)-n:])
	return out
}

// Pause stops processing at the next post boundary. Cycles become no-op
// waits until Resume.
func (b *Bot) Pause() {
	if !b.paused.Swap(true) {
		b.logger.Info("autoreply: paused")
	}
}

// Resume undoes Pause and starts the next cycle right away.
func (b *Bot) Resume() {
	if b.paused.Swap(false) {
		b.logger.Info("autoreply: resumed")
	}
	b.poke()
}

// SetDryRun toggles dry-run: replies are composed but never submitted,
// and nothing is recorded as replied.
func (b *Bot) SetDryRun(on bool) {
	if b.dryRun.Swap(on) != on {
		b.logger.Info("autoreply: dry run changed", "dry_run", on)
	}
}

// ToggleDryRun flips dry-run and returns the new value.
func (b *Bot) ToggleDryRun() bool {
	for {
		old := b.dryRun.Load()
		if b.dryRun.CompareAndSwap(old, !old) {
			b.logger.Info("autoreply: dry run changed", "dry_run", !old)
			return !old
		}
	}
}

// ForceRefresh reloads the feed page before the next search.
func (b *Bot) ForceRefresh() {
	b.refresh.Store(true)
	b.poke()
}

// Recheck asks a stalled bot to probe the feed now instead of at the next
// poll. It cannot resume a bot whose page still shows the challenge.
func (b *Bot) Recheck() {
	b.detector.Recheck()
}

// CheckResult explains how a text would be treated, without side effects.
type CheckResult struct {
	Normalized string   `json:"normalized"`
	Filter     string   `json:"filter"`
	Keyword    string   `json:"keyword,omitempty"`
	Reason     string   `json:"reason"`
	Verdict    *Verdict `json:"verdict,omitempty"`
	Error      string   `json:"error,omitempty"`
	WouldReply bool     `json:"would_reply"`
}

// Check runs text through the keyword filter and, when it passes and a
// classifier is configured, through the classifier.
func (b *Bot) Check(ctx context.Context, text string) CheckResult {
	return check(ctx, b.filter, b.classifier, text)
}

func check(ctx context.Context, filter FilterConfig, c Classifier, text string) CheckResult {
	v := keyword.Evaluate(text, filter)
	res := CheckResult{
		Normalized: keyword.Normalize(text),
		Filter:     v.Result.String(),
		Keyword:    v.Keyword,
		Reason:     v.Reason,
	}
	if v.Result != keyword.Pass {
		return res
	}
	if c == nil {
		res.WouldReply = true
		return res
	}
	verdict, err := c.Classify(ctx, res.Normalized)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Verdict = &verdict
	res.WouldReply = verdict.ShouldReply
	return res
}
