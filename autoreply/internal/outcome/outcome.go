// Package outcome defines the per-post decision record and the sinks that
// carry it: one record per processed post, exactly once, in processing
// order, plus one summary per cycle.
package outcome

import (
	"context"
	"time"
)

// Kind is the outcome of processing one post.
type Kind string

const (
	Replied                       Kind = "replied"
	SkippedAlreadyReplied         Kind = "skipped_already_replied"
	SkippedNegativeKeyword        Kind = "skipped_negative_keyword"
	SkippedMissingPositiveKeyword Kind = "skipped_missing_positive_keyword"
	SkippedClassifierRejected     Kind = "skipped_classifier_rejected"
	SkippedRepliesClosed          Kind = "skipped_replies_closed"
	SkippedCooldownActive         Kind = "skipped_cooldown_active"
	SkippedDryRun                 Kind = "skipped_dry_run"
	FailedDispatch                Kind = "failed_dispatch"
	FailedClassifierTimeout       Kind = "failed_classifier_timeout"
	FailedClassifier              Kind = "failed_classifier"
)

// Kinds lists every Kind, for metrics label pre-registration.
var Kinds = []Kind{
	Replied, SkippedAlreadyReplied, SkippedNegativeKeyword,
	SkippedMissingPositiveKeyword, SkippedClassifierRejected,
	SkippedRepliesClosed, SkippedCooldownActive, SkippedDryRun,
	FailedDispatch, FailedClassifierTimeout, FailedClassifier,
}

// Permanent reports whether re-evaluating the same post later would give
// the same answer: the replied set never shrinks and the filter and
// classifier verdicts depend only on the post text.
func (k Kind) Permanent() bool {
	switch k {
	case SkippedAlreadyReplied, SkippedNegativeKeyword, SkippedMissingPositiveKeyword, SkippedClassifierRejected:
		return true
	}
	return false
}

// Decision is the outcome record of one processed post.
type Decision struct {
	ID        string           `json:"id"`
	PostID    string           `json:"post_id"`
	Author    string           `json:"author,omitempty"`
	Kind      Kind             `json:"kind"`
	Reason    string           `json:"reason,omitempty"`
	CycleID   string           `json:"cycle_id,omitempty"`
	At        time.Time        `json:"timestamp"`
	Durations map[string]int64 `json:"durations,omitempty"`
}

// CycleSummary is emitted once per completed cycle.
type CycleSummary struct {
	CycleID    string    `json:"cycle_id"`
	StartedAt  time.Time `json:"started_at"`
	Found      int       `json:"found"`
	Processed  int       `json:"processed"`
	Replied    int       `json:"replied"`
	DurationMs int64     `json:"duration_ms"`
	Refreshed  bool      `json:"refreshed"`
	Stopped    string    `json:"stopped,omitempty"`
}

// Sink is an output backend for outcome records.
type Sink interface {
	Decision(ctx context.Context, d Decision) error
	Cycle(ctx context.Context, c CycleSummary) error
	Close() error
}
