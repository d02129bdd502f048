package autoreply

import (
	"context"
	"time"

	"github.com/hazyhaar/replyd/autoreply/internal/challenge"
	"github.com/hazyhaar/replyd/autoreply/internal/classify"
	"github.com/hazyhaar/replyd/autoreply/internal/dedupe"
	"github.com/hazyhaar/replyd/autoreply/internal/keyword"
	"github.com/hazyhaar/replyd/autoreply/internal/outcome"
)

// Post is one feed item discovered during a cycle. It is not modified after
// the Feed Source returns it.
type Post struct {
	ID          string `json:"id"`
	Author      string `json:"author"`
	Text        string `json:"text"`
	RepliesOpen bool   `json:"replies_open"`
	// DiscoveredAt is taken from the local monotonic clock.
	DiscoveredAt time.Time `json:"discovered_at"`
	// CreatedAt is the platform timestamp, zero if unknown.
	CreatedAt time.Time `json:"created_at,omitzero"`
	URL       string    `json:"url,omitempty"`
}

// FeedSource is the platform boundary: search, reply and page health.
type FeedSource interface {
	// Search returns the posts currently visible for query, in feed order.
	Search(ctx context.Context, query string) ([]Post, error)
	// DispatchReply posts message as a reply to post. A nil return means the
	// platform confirmed the reply.
	DispatchReply(ctx context.Context, post Post, message string) error
	// PageSignal samples the current page for challenge and rate-limit markers.
	PageSignal(ctx context.Context) Signal
	// WaitLoggedIn blocks until the session is authenticated.
	WaitLoggedIn(ctx context.Context) error
}

// Refresher is implemented by feeds that can reload their page on demand.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Composer is implemented by feeds that can open the reply composer and
// fill it without submitting, for dry runs.
type Composer interface {
	ComposeReply(ctx context.Context, post Post, message string) error
}

// Classifier decides whether a post's text deserves a reply. The gateway
// built by NewClassifier implements it.
type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

// Decision is the outcome record of one processed post.
type Decision = outcome.Decision

// DecisionKind tags a Decision.
type DecisionKind = outcome.Kind

// CycleSummary is emitted once per cycle.
type CycleSummary = outcome.CycleSummary

// Sink receives decisions and cycle summaries.
type Sink = outcome.Sink

// NewCallbackSink delivers outcome records through Go function calls.
func NewCallbackSink(onDecision func(context.Context, Decision) error, onCycle func(context.Context, CycleSummary) error) Sink {
	return outcome.NewCallback(onDecision, onCycle)
}

const (
	Replied                       = outcome.Replied
	SkippedAlreadyReplied         = outcome.SkippedAlreadyReplied
	SkippedNegativeKeyword        = outcome.SkippedNegativeKeyword
	SkippedMissingPositiveKeyword = outcome.SkippedMissingPositiveKeyword
	SkippedClassifierRejected     = outcome.SkippedClassifierRejected
	SkippedRepliesClosed          = outcome.SkippedRepliesClosed
	SkippedCooldownActive         = outcome.SkippedCooldownActive
	SkippedDryRun                 = outcome.SkippedDryRun
	FailedDispatch                = outcome.FailedDispatch
	FailedClassifierTimeout       = outcome.FailedClassifierTimeout
	FailedClassifier              = outcome.FailedClassifier
)

// Signal is what the feed reports about its current page.
type Signal = challenge.Signal

const (
	SignalNormal      = challenge.SignalNormal
	SignalChallenge   = challenge.SignalChallenge
	SignalRateLimited = challenge.SignalRateLimited
	SignalUnknown     = challenge.SignalUnknown
)

// ChallengeState is the challenge detector state.
type ChallengeState = challenge.State

const (
	ChallengeNormal          = challenge.StateNormal
	ChallengePresented       = challenge.StateChallengePresented
	AwaitingManualResolution = challenge.StateAwaitingManualResolution
)

// Verdict is a classifier answer.
type Verdict = classify.Verdict

// FilterConfig configures the keyword prefilter.
type FilterConfig = keyword.Config

// MatchMode selects substring or whole-word keyword matching.
type MatchMode = keyword.MatchMode

const (
	MatchSubstring = keyword.MatchSubstring
	MatchWord      = keyword.MatchWord
)

// DedupeStore is the persistent set of replied post identifiers.
type DedupeStore = dedupe.Store

// OpenDedupe opens and loads the dedupe store backend at path. A store that
// cannot be parsed returns an error wrapping ErrCorruptStore.
func OpenDedupe(ctx context.Context, backend, path string) (DedupeStore, error) {
	return dedupe.Open(ctx, backend, path)
}

// ErrCorruptStore is returned when the persisted dedupe state is unreadable.
var ErrCorruptStore = dedupe.ErrCorrupt
