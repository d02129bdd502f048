package autoreply

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hazyhaar/replyd/autoreply/internal/classify"
	"github.com/hazyhaar/replyd/autoreply/internal/outcome"
)

// NewClassifier builds the classifier gateway described by cfg, or returns
// nil when classification is disabled. A missing API key is an error
// wrapping ErrNoAPIKey.
func NewClassifier(cfg ClassifierConfig, logger *slog.Logger) (Classifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	svc, err := classify.NewService(classify.ServiceConfig{
		Provider:   cfg.Provider,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		RatePerSec: cfg.RatePerSec,
		APIKeyEnv:  cfg.APIKeyEnv,
		TokensFile: cfg.TokensFile,
	})
	if err != nil {
		return nil, err
	}
	return classify.NewGateway(svc, classify.Config{
		Timeout:     time.Duration(cfg.TimeoutMs) * time.Millisecond,
		Labels:      cfg.Labels,
		TargetLabel: cfg.TargetLabel,
		Threshold:   cfg.Threshold,

		BreakerFailures: cfg.BreakerFailures,
		BreakerWindow:   cfg.BreakerWindow,
		BreakerDelay:    cfg.BreakerDelay,
		Logger:          logger,
	}), nil
}

// NewSinks builds the outcome sinks selected by cfg.
func NewSinks(cfg OutcomeConfig, logger *slog.Logger) ([]Sink, error) {
	var sinks []Sink
	closeAll := func() {
		for _, s := range sinks {
			s.Close()
		}
	}

	if cfg.DecisionsPath != "" || cfg.CyclesPath != "" {
		f, err := outcome.OpenFile(cfg.DecisionsPath, cfg.CyclesPath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, f)
	}
	if cfg.SQLitePath != "" {
		s, err := outcome.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, outcome.NewWebhook(cfg.WebhookURL, outcome.WithWebhookLogger(logger)))
	}
	if cfg.Stdout {
		sinks = append(sinks, outcome.NewStdout(nil))
	}
	return sinks, nil
}

// FeedOpener opens the feed once every other startup dependency is ready.
type FeedOpener func(ctx context.Context) (FeedSource, error)

// NewFromConfig validates cfg, loads the dedupe store, builds the classifier
// gateway and outcome sinks, and only then calls openFeed, so a corrupt
// store or a missing key fails before any browser starts. Every error is a
// fatal startup condition. Extra sinks are appended to the configured ones.
// The caller owns the opened feed.
func NewFromConfig(ctx context.Context, cfg *Config, openFeed FeedOpener, reg *prometheus.Registry, logger *slog.Logger, extra ...Sink) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	classifier, err := NewClassifier(cfg.Classifier, logger)
	if err != nil {
		return nil, fmt.Errorf("autoreply: classifier: %w", err)
	}

	store, err := OpenDedupe(ctx, cfg.Dedupe.Backend, cfg.Dedupe.Path)
	if err != nil {
		return nil, fmt.Errorf("autoreply: dedupe: %w", err)
	}
	logger.Info("autoreply: dedupe store loaded",
		"backend", cfg.Dedupe.Backend, "path", cfg.Dedupe.Path, "ids", store.Len())

	sinks, err := NewSinks(cfg.Outcome, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("autoreply: outcome sinks: %w", err)
	}
	sinks = append(sinks, extra...)
	release := func() {
		store.Close()
		for _, s := range sinks {
			s.Close()
		}
	}

	feed, err := openFeed(ctx)
	if err != nil {
		release()
		return nil, fmt.Errorf("autoreply: feed: %w", err)
	}

	b, err := New(Options{
		Feed:                  feed,
		Store:                 store,
		Query:                 cfg.SearchQuery(),
		Filter:                cfg.FilterConfig(),
		Classifier:            classifier,
		Cooldown:              cfg.Cooldown(),
		Message:               cfg.Reply.Message,
		ScanInterval:          cfg.ScanInterval(),
		ChallengePollInterval: cfg.Challenge.PollInterval,
		LoginTimeout:          cfg.Feed.LoginTimeout,
		RememberSkips:         cfg.RememberSkips(),
		DryRun:                cfg.Reply.DryRun,
		Sinks:                 sinks,
		Registry:              reg,
		Logger:                logger,
	})
	if err != nil {
		release()
		return nil, err
	}
	return b, nil
}

// CheckText evaluates text against the filter and classifier described by
// cfg, without a feed.
func CheckText(ctx context.Context, cfg *Config, text string, logger *slog.Logger) (CheckResult, error) {
	c, err := NewClassifier(cfg.Classifier, logger)
	if err != nil {
		return CheckResult{}, err
	}
	return check(ctx, cfg.FilterConfig(), c, text), nil
}
