// Package autoreply scans a search feed and replies to the posts that pass
// a keyword prefilter, an optional remote classifier, duplicate suppression
// and reply pacing.
//
// One goroutine drives everything through Run. The replied set and the
// cooldown gate are single-writer structures touched only by that loop;
// the status API reads a snapshot the loop publishes at post boundaries.
package autoreply

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"text/template"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hazyhaar/replyd/autoreply/internal/challenge"
	"github.com/hazyhaar/replyd/autoreply/internal/cooldown"
	"github.com/hazyhaar/replyd/autoreply/internal/keyword"
	"github.com/hazyhaar/replyd/autoreply/internal/metrics"
	"github.com/hazyhaar/replyd/autoreply/internal/outcome"
	"github.com/hazyhaar/replyd/idgen"
	"github.com/hazyhaar/replyd/kit"
)

// Options wires a Bot. Feed, Store and Message are required.
type Options struct {
	Feed  FeedSource
	Store DedupeStore
	// Query is passed to Feed.Search every cycle.
	Query  string
	Filter FilterConfig
	// Classifier is nil when classification is disabled.
	Classifier Classifier
	// Cooldown is the minimum gap between replies. 0 is unthrottled.
	Cooldown time.Duration
	// Message is a text/template rendered with the Post.
	Message string
	// ScanInterval is the pause between cycles. Default: 1.5s.
	ScanInterval time.Duration
	// ChallengePollInterval is how often a stalled bot re-probes the feed.
	// Default: 30s.
	ChallengePollInterval time.Duration
	// LoginTimeout bounds Feed.WaitLoggedIn. 0 waits for ctx.
	LoginTimeout  time.Duration
	RememberSkips bool
	DryRun        bool
	Sinks         []Sink
	// Registry receives the bot's collectors. Nil creates a private one.
	Registry *prometheus.Registry
	// RecentSize bounds the in-memory ring of recent decisions. Default: 200.
	RecentSize int
	Logger     *slog.Logger
	// Clock and IDs are injectable for tests.
	Clock func() time.Time
	IDs   idgen.Generator
}

// Bot is the cycle orchestrator.
type Bot struct {
	feed       FeedSource
	store      DedupeStore
	query      string
	filter     FilterConfig
	classifier Classifier
	cooldown   *cooldown.Governor
	detector   *challenge.Detector
	sink       *outcome.Router
	metrics    *metrics.Metrics
	registry   *prometheus.Registry
	message    *template.Template
	interval   time.Duration
	loginWait  time.Duration
	remember   bool
	logger     *slog.Logger
	now        func() time.Time
	newID      idgen.Generator
	cycleID    idgen.Generator

	// Loop-only state.
	skipped     map[string]DecisionKind
	unknown     int
	unpersisted bool

	paused  atomic.Bool
	dryRun  atomic.Bool
	refresh atomic.Bool
	wake    chan struct{}

	mu         sync.Mutex
	snap       snapshot
	recent     []Decision
	recentSize int
}

type snapshot struct {
	state     string
	loggedIn  bool
	cycles    int
	lastCycle *CycleSummary
	counts    map[DecisionKind]int
	replied   int
	lastReply time.Time
	startedAt time.Time
	// persistPending is set while replied ids are not yet durable.
	persistPending bool
}

// New creates a Bot from opts.
func New(opts Options) (*Bot, error) {
	if opts.Feed == nil {
		return nil, fmt.Errorf("%w: feed source is required", ErrConfig)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: dedupe store is required", ErrConfig)
	}
	msg, err := parseMessage(opts.Message)
	if err != nil {
		return nil, fmt.Errorf("%w: reply message: %v", ErrConfig, err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.IDs == nil {
		opts.IDs = idgen.Default
	}
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = 1500 * time.Millisecond
	}
	if opts.RecentSize <= 0 {
		opts.RecentSize = 200
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	kinds := make([]string, len(outcome.Kinds))
	for i, k := range outcome.Kinds {
		kinds[i] = string(k)
	}
	m := metrics.New(opts.Registry, kinds)

	b := &Bot{
		feed:       opts.Feed,
		store:      opts.Store,
		query:      opts.Query,
		filter:     opts.Filter,
		classifier: opts.Classifier,
		cooldown:   cooldown.New(opts.Cooldown, cooldown.WithClock(opts.Clock)),
		sink:       outcome.NewRouter(opts.Logger, opts.Sinks...),
		metrics:    m,
		registry:   opts.Registry,
		message:    msg,
		interval:   opts.ScanInterval,
		loginWait:  opts.LoginTimeout,
		remember:   opts.RememberSkips,
		logger:     opts.Logger,
		now:        opts.Clock,
		newID:      idgen.Prefixed("dec_", opts.IDs),
		cycleID:    idgen.Prefixed("cyc_", opts.IDs),
		skipped:    make(map[string]DecisionKind),
		wake:       make(chan struct{}, 1),
		recentSize: opts.RecentSize,
	}
	b.detector = challenge.New(challenge.Config{
		PollInterval: opts.ChallengePollInterval,
		Logger:       opts.Logger,
		Now:          opts.Clock,
		OnTransition: func(_, to challenge.State) {
			m.ChallengeTransition(to.String(), to != challenge.StateNormal)
		},
	})
	b.dryRun.Store(opts.DryRun)
	b.snap = snapshot{
		state:     "starting",
		counts:    make(map[DecisionKind]int),
		replied:   opts.Store.Len(),
		startedAt: opts.Clock(),
	}
	m.Dedupe(opts.Store.Len())
	return b, nil
}

// Registry returns the Prometheus registry holding the bot's collectors.
func (b *Bot) Registry() *prometheus.Registry { return b.registry }

// Close closes the outcome sinks and the dedupe store.
func (b *Bot) Close() error {
	return errors.Join(b.sink.Close(), b.store.Close())
}

// Run waits for the feed login, then runs cycles until ctx is done. While a
// challenge is pending it blocks in the detector, without timeout. It
// returns ErrNotLoggedIn when the login wait fails and ctx.Err() on
// shutdown; per-post and per-cycle failures never end it.
func (b *Bot) Run(ctx context.Context) error {
	b.setState("logging_in")
	if err := b.waitLoggedIn(ctx); err != nil {
		b.setState("stopped")
		return err
	}
	b.mu.Lock()
	b.snap.loggedIn = true
	b.mu.Unlock()
	b.logger.Info("autoreply: logged in, starting cycles", "query", b.query, "interval", b.interval)

	for {
		if b.detector.State() != challenge.StateNormal {
			if err := b.detector.AwaitResolution(ctx, b.feed.PageSignal); err != nil {
				b.setState("stopped")
				return err
			}
		}

		b.RunCycle(ctx)
		if err := ctx.Err(); err != nil {
			b.setState("stopped")
			return err
		}

		t := time.NewTimer(b.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			b.setState("stopped")
			return ctx.Err()
		case <-b.wake:
			t.Stop()
		case <-t.C:
		}
	}
}

func (b *Bot) waitLoggedIn(ctx context.Context) error {
	lctx := ctx
	if b.loginWait > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, b.loginWait)
		defer cancel()
	}
	if err := b.feed.WaitLoggedIn(lctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrNotLoggedIn, err)
	}
	return nil
}

// RunCycle runs one scan cycle: search, then each post in feed order. It
// stops early, leaving the remaining posts untouched, on shutdown, pause,
// a challenge or a rate-limit notice. A cycle never fails; the summary
// says how it ended.
func (b *Bot) RunCycle(ctx context.Context) CycleSummary {
	start := b.now()
	sum := CycleSummary{CycleID: b.cycleID(), StartedAt: start}
	ctx = kit.WithCycleID(ctx, sum.CycleID)

	defer func() {
		sum.DurationMs = b.now().Sub(start).Milliseconds()
		result := sum.Stopped
		if result == "" {
			result = "ok"
		}
		b.metrics.Cycle(result, b.now().Sub(start))
		b.finishCycle(ctx, sum)
	}()

	if b.unpersisted {
		if err := b.persist(ctx); err != nil {
			b.logger.Error("autoreply: dedupe persist still failing, not searching",
				"cycle_id", sum.CycleID, "error", err)
			sum.Stopped = "persist_error"
			return sum
		}
		b.logger.Info("autoreply: dedupe persist recovered", "cycle_id", sum.CycleID, "ids", b.store.Len())
	}

	switch {
	case b.detector.State() != challenge.StateNormal:
		sum.Stopped = "challenge"
		return sum
	case b.paused.Load():
		sum.Stopped = "paused"
		return sum
	}

	if stop := b.checkPage(ctx); stop != "" {
		sum.Stopped = stop
		return sum
	}

	if b.refresh.CompareAndSwap(true, false) {
		if r, ok := b.feed.(Refresher); ok {
			if err := r.Refresh(ctx); err != nil {
				b.logger.Warn("autoreply: forced refresh failed", "error", err)
			} else {
				sum.Refreshed = true
			}
		}
	}

	posts, err := b.feed.Search(ctx, b.query)
	if err != nil {
		if ctx.Err() == nil {
			b.logger.Warn("autoreply: search failed, skipping cycle", "cycle_id", sum.CycleID, "error", err)
		}
		sum.Stopped = "search_error"
		return sum
	}
	sum.Found = len(posts)

	for i, post := range posts {
		if ctx.Err() != nil {
			sum.Stopped = "shutdown"
			return sum
		}
		if b.paused.Load() {
			sum.Stopped = "paused"
			return sum
		}
		if i > 0 {
			if stop := b.checkPage(ctx); stop != "" {
				sum.Stopped = stop
				b.logger.Info("autoreply: cycle stopped early",
					"cycle_id", sum.CycleID, "reason", stop, "processed", sum.Processed, "remaining", len(posts)-i)
				return sum
			}
		}

		d, ok := b.ProcessPost(ctx, post)
		if !ok {
			continue
		}
		sum.Processed++
		if d.Kind == Replied {
			sum.Replied++
		}
	}
	return sum
}

// unknownPagesBeforeStall is how many unreadable page checks in a row are
// treated as a challenge.
const unknownPagesBeforeStall = 3

// checkPage samples the page signal and returns a stop reason, or "".
func (b *Bot) checkPage(ctx context.Context) string {
	sig := b.feed.PageSignal(ctx)
	if sig != SignalUnknown {
		b.unknown = 0
	}
	switch sig {
	case SignalChallenge:
		b.detector.Observe(sig)
		return "challenge"
	case SignalRateLimited:
		b.logger.Warn("autoreply: platform rate limit notice, ending cycle early")
		return "rate_limited"
	case SignalUnknown:
		b.unknown++
		if b.unknown >= unknownPagesBeforeStall {
			b.logger.Warn("autoreply: page unreadable, treating as a challenge", "checks", b.unknown)
			b.unknown = 0
			b.detector.Observe(SignalChallenge)
			return "challenge"
		}
		b.logger.Warn("autoreply: page shows no expected content, ending cycle early", "checks", b.unknown)
		return "page_unknown"
	}
	return ""
}

// ProcessPost runs one post through the pipeline and emits its decision.
// It reports false when the post was not processed: a challenge is pending,
// or the post was already settled by a remembered permanent skip.
//
// Once started, a post runs to completion: shutdown is honoured only
// between posts, never halfway through a reply.
func (b *Bot) ProcessPost(ctx context.Context, post Post) (Decision, bool) {
	if b.detector.State() != challenge.StateNormal {
		return Decision{}, false
	}
	if b.remember {
		if _, ok := b.skipped[post.ID]; ok {
			return Decision{}, false
		}
	}

	pctx := kit.WithPostID(context.WithoutCancel(ctx), post.ID)
	d := b.decide(pctx, post)
	d.ID = b.newID()
	d.PostID = post.ID
	d.Author = post.Author
	d.CycleID = kit.GetCycleID(ctx)
	d.At = b.now()

	if b.remember && d.Kind.Permanent() {
		b.skipped[post.ID] = d.Kind
	}
	b.emit(pctx, d)
	return d, true
}

func (b *Bot) decide(ctx context.Context, post Post) Decision {
	if !post.RepliesOpen {
		return Decision{Kind: SkippedRepliesClosed, Reason: "replies are closed"}
	}
	if b.store.Contains(post.ID) {
		return Decision{Kind: SkippedAlreadyReplied, Reason: "already replied"}
	}

	switch v := keyword.Evaluate(post.Text, b.filter); v.Result {
	case keyword.RejectNegative:
		return Decision{Kind: SkippedNegativeKeyword, Reason: v.Reason}
	case keyword.RejectMissingPositive:
		return Decision{Kind: SkippedMissingPositiveKeyword, Reason: v.Reason}
	}

	durations := make(map[string]int64)
	if b.classifier != nil {
		t0 := b.now()
		v, err := b.classifier.Classify(ctx, keyword.Normalize(post.Text))
		elapsed := b.now().Sub(t0)
		durations["classify_ms"] = elapsed.Milliseconds()
		switch {
		case errors.Is(err, ErrClassifierTimeout):
			b.syncBreaker()
			b.metrics.Classified("timeout", elapsed)
			return Decision{Kind: FailedClassifierTimeout, Reason: err.Error(), Durations: durations}
		case err != nil:
			b.syncBreaker()
			b.metrics.Classified("error", elapsed)
			return Decision{Kind: FailedClassifier, Reason: err.Error(), Durations: durations}
		}
		b.metrics.Classified("ok", elapsed)
		b.syncBreaker()
		if !v.ShouldReply {
			return Decision{
				Kind:      SkippedClassifierRejected,
				Reason:    fmt.Sprintf("classified %q (%.2f)", v.Label, v.Confidence),
				Durations: durations,
			}
		}
	}

	if !b.cooldown.MayReplyNow() {
		return Decision{
			Kind:      SkippedCooldownActive,
			Reason:    fmt.Sprintf("cooldown active, %s remaining", b.cooldown.Remaining().Round(time.Second)),
			Durations: durations,
		}
	}

	var buf bytes.Buffer
	if err := b.message.Execute(&buf, post); err != nil {
		return Decision{Kind: FailedDispatch, Reason: "render message: " + err.Error(), Durations: durations}
	}
	message := buf.String()

	if b.dryRun.Load() {
		if c, ok := b.feed.(Composer); ok {
			if err := c.ComposeReply(ctx, post, message); err != nil {
				b.logger.Warn("autoreply: dry-run compose failed", "post_id", post.ID, "error", err)
			}
		}
		return Decision{Kind: SkippedDryRun, Reason: "dry run, reply not submitted", Durations: durations}
	}

	t0 := b.now()
	err := b.feed.DispatchReply(ctx, post, message)
	durations["dispatch_ms"] = b.now().Sub(t0).Milliseconds()
	if err != nil {
		return Decision{Kind: FailedDispatch, Reason: err.Error(), Durations: durations}
	}

	// The reply exists now: record it before anything else can happen.
	at := b.now()
	b.store.Record(post.ID)
	b.cooldown.RecordReply(at)
	d := Decision{Kind: Replied, Reason: "reply sent", Durations: durations}
	if err := b.persist(ctx); err != nil {
		b.logger.Error("autoreply: reply sent but dedupe persist failed, retrying before the next search",
			"post_id", post.ID, "error", err)
		d.Reason = "reply sent, persist failed: " + err.Error()
	}

	b.mu.Lock()
	b.snap.replied = b.store.Len()
	b.snap.lastReply = at
	b.mu.Unlock()
	b.metrics.Dedupe(b.store.Len())
	return d
}

// persist flushes the dedupe store. A failure is retried at the start of
// every cycle until it succeeds.
func (b *Bot) persist(ctx context.Context) error {
	err := b.store.Persist(context.WithoutCancel(ctx))
	b.unpersisted = err != nil
	b.mu.Lock()
	b.snap.persistPending = b.unpersisted
	b.mu.Unlock()
	if err != nil {
		b.metrics.PersistFailed()
	}
	return err
}

func (b *Bot) syncBreaker() {
	if br, ok := b.classifier.(breakerReporter); ok {
		b.metrics.Breaker(br.BreakerOpen())
	}
}

func (b *Bot) emit(ctx context.Context, d Decision) {
	b.metrics.Decision(string(d.Kind))

	level := slog.LevelDebug
	switch d.Kind {
	case Replied:
		level = slog.LevelInfo
	case FailedDispatch, FailedClassifier, FailedClassifierTimeout:
		level = slog.LevelWarn
	}
	b.logger.Log(ctx, level, "autoreply: decision",
		"post_id", d.PostID, "author", d.Author, "kind", string(d.Kind), "reason", d.Reason)

	if err := b.sink.Decision(ctx, d); err != nil {
		b.logger.Warn("autoreply: outcome sink failed", "post_id", d.PostID, "error", err)
	}

	b.mu.Lock()
	b.snap.counts[d.Kind]++
	b.recent = append(b.recent, d)
	if over := len(b.recent) - b.recentSize; over > 0 {
		b.recent = append(b.recent[:0:0], b.recent[over:]...)
	}
	b.mu.Unlock()
}

func (b *Bot) finishCycle(ctx context.Context, sum CycleSummary) {
	if err := b.sink.Cycle(context.WithoutCancel(ctx), sum); err != nil {
		b.logger.Warn("autoreply: cycle sink failed", "cycle_id", sum.CycleID, "error", err)
	}
	b.logger.Debug("autoreply: cycle done",
		"cycle_id", sum.CycleID, "found", sum.Found, "processed", sum.Processed,
		"replied", sum.Replied, "duration_ms", sum.DurationMs, "stopped", sum.Stopped)

	b.mu.Lock()
	b.snap.cycles++
	b.snap.lastCycle = &sum
	if b.snap.state != "stopped" {
		b.snap.state = "running"
	}
	b.mu.Unlock()
}

func (b *Bot) setState(s string) {
	b.mu.Lock()
	b.snap.state = s
	b.mu.Unlock()
}

func (b *Bot) poke() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}
