// Package xfeed drives the X (Twitter) web client through Chrome: search,
// reply, challenge detection and login. Source implements
// autoreply.FeedSource and is used from a single goroutine.
package xfeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/go-rod/rod"

	"github.com/hazyhaar/replyd/autoreply"
	"github.com/hazyhaar/replyd/xfeed/internal/browser"
)

// Options configures a Source.
type Options struct {
	// SearchURL is the search page. Empty builds one from the query passed
	// to Search.
	SearchURL string
	LoginURL  string

	RemoteURL      string
	UserDataDir    string
	Headless       bool
	BlockResources []string

	NavTimeout   time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	ClickTimeout    time.Duration
	ComposerTimeout time.Duration
	SubmitTimeout   time.Duration

	// MaxAge drops posts older than this. 0 keeps everything.
	MaxAge time.Duration
	// EmptyScansBeforeRefresh reloads the search page after this many
	// consecutive scans without a fresh post.
	EmptyScansBeforeRefresh int

	Logger *slog.Logger
	Now    func() time.Time
}

func (o *Options) defaults() {
	if o.LoginURL == "" {
		o.LoginURL = "https://x.com/login"
	}
	if o.NavTimeout <= 0 {
		o.NavTimeout = 15 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 1200 * time.Millisecond
	}
	if o.ClickTimeout <= 0 {
		o.ClickTimeout = 2500 * time.Millisecond
	}
	if o.ComposerTimeout <= 0 {
		o.ComposerTimeout = 3 * time.Second
	}
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = 4 * time.Second
	}
	if o.EmptyScansBeforeRefresh <= 0 {
		o.EmptyScansBeforeRefresh = 6
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// FromConfig maps the replyd configuration onto Options.
func FromConfig(cfg *autoreply.Config, logger *slog.Logger) Options {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return Options{
		SearchURL:               cfg.BuildSearchURL(),
		LoginURL:                cfg.Feed.LoginURL,
		RemoteURL:               cfg.Feed.Remote,
		UserDataDir:             cfg.Feed.UserDataDir,
		Headless:                cfg.Feed.Headless,
		BlockResources:          cfg.Feed.BlockResources,
		NavTimeout:              cfg.Feed.NavTimeout,
		MaxRetries:              cfg.Feed.MaxRetries,
		RetryBackoff:            ms(cfg.Feed.RetryBackoffMs),
		ClickTimeout:            ms(cfg.Reply.ClickTimeoutMs),
		ComposerTimeout:         ms(cfg.Reply.ComposerTimeoutMs),
		SubmitTimeout:           ms(cfg.Reply.SubmitTimeoutMs),
		MaxAge:                  time.Duration(cfg.Scan.MaxAgeHours) * time.Hour,
		EmptyScansBeforeRefresh: cfg.Scan.EmptyScansBeforeRefresh,
		Logger:                  logger,
	}
}

// Source is the rod-backed feed.
type Source struct {
	opts  Options
	mgr   *browser.Manager
	page  *rod.Page
	retry retrypolicy.RetryPolicy[any]
	log   *slog.Logger

	onSearch   bool
	emptyScans int
}

var (
	_ autoreply.FeedSource = (*Source)(nil)
	_ autoreply.Composer   = (*Source)(nil)
	_ autoreply.Refresher  = (*Source)(nil)
)

// Open starts the browser and opens the working page.
func Open(ctx context.Context, opts Options) (*Source, error) {
	opts.defaults()
	mgr := browser.NewManager(browser.Config{
		RemoteURL:      opts.RemoteURL,
		UserDataDir:    opts.UserDataDir,
		Headless:       opts.Headless,
		BlockResources: opts.BlockResources,
		Logger:         opts.Logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return nil, err
	}
	page, err := mgr.NewPage()
	if err != nil {
		mgr.Close()
		return nil, err
	}
	return &Source{
		opts:  opts,
		mgr:   mgr,
		page:  page,
		retry: newNavRetry(opts.MaxRetries, opts.RetryBackoff, opts.Logger),
		log:   opts.Logger,
	}, nil
}

// Close closes the page and the browser.
func (s *Source) Close() error {
	return errors.Join(s.page.Close(), s.mgr.Close())
}

// Search returns the posts currently visible on the search page, newest
// first as the page shows them, then scrolls for the next call.
func (s *Source) Search(ctx context.Context, query string) ([]autoreply.Post, error) {
	target := s.searchURL(query)
	if !s.onSearch || s.emptyScans >= s.opts.EmptyScansBeforeRefresh {
		if s.onSearch {
			s.log.Info("xfeed: no fresh posts, reloading search", "empty_scans", s.emptyScans)
		}
		if err := s.gotoResilient(ctx, target); err != nil {
			s.onSearch = false
			return nil, err
		}
		s.onSearch = true
		s.emptyScans = 0
	}

	wctx, cancel := context.WithTimeout(ctx, s.opts.NavTimeout)
	_, err := s.page.Context(wctx).Element("article")
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.emptyScans++
		return nil, nil
	}

	raw, err := s.scanArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("xfeed: scan: %w", err)
	}
	posts := toPosts(raw, s.opts.Now(), s.opts.MaxAge)
	s.scroll(ctx)

	if len(posts) == 0 {
		s.emptyScans++
	} else {
		s.emptyScans = 0
	}
	return posts, nil
}

// Refresh reloads the search page on the next Search.
func (s *Source) Refresh(ctx context.Context) error {
	s.onSearch = false
	return nil
}

func (s *Source) searchURL(query string) string {
	if s.opts.SearchURL != "" {
		return s.opts.SearchURL
	}
	return SearchURL(query, "recent_search_click", true)
}

// SearchURL builds an x.com search URL for query.
func SearchURL(query, src string, live bool) string {
	v := url.Values{}
	v.Set("q", query)
	if src != "" {
		v.Set("src", src)
	}
	if live {
		v.Set("f", "live")
	}
	return "https://x.com/search?" + v.Encode()
}

func (s *Source) scroll(ctx context.Context) {
	if _, err := s.page.Context(ctx).Eval(`() => window.scrollBy(0, Math.round(window.innerHeight * 0.9))`); err != nil {
		s.log.Debug("xfeed: scroll failed", "error", err)
	}
}
