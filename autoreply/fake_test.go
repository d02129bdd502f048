package autoreply

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/replyd/idgen"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeFeed is an in-memory FeedSource.
type fakeFeed struct {
	mu          sync.Mutex
	posts       []Post
	signals     []Signal // consumed one per PageSignal call, then SignalNormal
	probe       func() Signal
	searchErr   error
	loginErr    error
	dispatchErr map[string]error
	onDispatch  func(Post)
	dispatched  []string
	dispatchAt  []time.Time
	composed    []string
	refreshes   int
	searches    int
	clock       *fakeClock
}

func (f *fakeFeed) Search(ctx context.Context, query string) ([]Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return append([]Post(nil), f.posts...), nil
}

func (f *fakeFeed) DispatchReply(ctx context.Context, post Post, message string) error {
	f.mu.Lock()
	hook := f.onDispatch
	err := f.dispatchErr[post.ID]
	f.mu.Unlock()
	if hook != nil {
		hook(post)
	}
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.dispatched = append(f.dispatched, post.ID)
	if f.clock != nil {
		f.dispatchAt = append(f.dispatchAt, f.clock.Now())
	}
	f.mu.Unlock()
	return nil
}

func (f *fakeFeed) ComposeReply(ctx context.Context, post Post, message string) error {
	f.mu.Lock()
	f.composed = append(f.composed, post.ID)
	f.mu.Unlock()
	return nil
}

func (f *fakeFeed) Refresh(ctx context.Context) error {
	f.mu.Lock()
	f.refreshes++
	f.mu.Unlock()
	return nil
}

func (f *fakeFeed) PageSignal(ctx context.Context) Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.signals) > 0 {
		s := f.signals[0]
		f.signals = f.signals[1:]
		return s
	}
	if f.probe != nil {
		return f.probe()
	}
	return SignalNormal
}

func (f *fakeFeed) WaitLoggedIn(ctx context.Context) error {
	if f.loginErr != nil {
		return f.loginErr
	}
	return nil
}

func (f *fakeFeed) Dispatched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dispatched...)
}

type fakeClassifier struct {
	verdict Verdict
	err     error
	calls   int
}

func (c *fakeClassifier) Classify(ctx context.Context, text string) (Verdict, error) {
	c.calls++
	return c.verdict, c.err
}

func post(id, text string) Post {
	return Post{ID: id, Author: "user" + id, Text: text, RepliesOpen: true}
}

// recorder collects emitted decisions in order.
type recorder struct {
	mu        sync.Mutex
	decisions []Decision
	cycles    []CycleSummary
}

func (r *recorder) sink() Sink {
	return NewCallbackSink(
		func(_ context.Context, d Decision) error {
			r.mu.Lock()
			r.decisions = append(r.decisions, d)
			r.mu.Unlock()
			return nil
		},
		func(_ context.Context, c CycleSummary) error {
			r.mu.Lock()
			r.cycles = append(r.cycles, c)
			r.mu.Unlock()
			return nil
		})
}

func (r *recorder) kinds() []DecisionKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DecisionKind, len(r.decisions))
	for i, d := range r.decisions {
		out[i] = d.Kind
	}
	return out
}

type harness struct {
	bot   *Bot
	feed  *fakeFeed
	clock *fakeClock
	rec   *recorder
	store DedupeStore
	path  string
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	clock := newClock()
	feed := &fakeFeed{clock: clock}
	rec := &recorder{}
	path := filepath.Join(t.TempDir(), "replied_ids.json")
	store, err := OpenDedupe(context.Background(), "file", path)
	if err != nil {
		t.Fatal(err)
	}
	opts := Options{
		Feed:          feed,
		Store:         store,
		Query:         "beli #jualbeli",
		Message:       "Hai @{{.Author}}, cek DM ya",
		Clock:         clock.Now,
		IDs:           idgen.Sequence(""),
		Sinks:         []Sink{rec.sink()},
		ScanInterval:  time.Millisecond,
		RememberSkips: false,
	}
	if mutate != nil {
		mutate(&opts)
	}
	b, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	return &harness{bot: b, feed: feed, clock: clock, rec: rec, store: opts.Store, path: path}
}

var errDispatch = errors.New("reply button unavailable")

// flakyStore fails its first fails Persist calls.
type flakyStore struct {
	DedupeStore
	fails    int
	persists int
}

func (s *flakyStore) Persist(ctx context.Context) error {
	s.persists++
	if s.fails > 0 {
		s.fails--
		return errors.New("disk full")
	}
	return s.DedupeStore.Persist(ctx)
}
