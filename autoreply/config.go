package autoreply

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/replyd/autoreply/internal/classify"
	"github.com/hazyhaar/replyd/autoreply/internal/dedupe"
	"github.com/hazyhaar/replyd/autoreply/internal/keyword"
)

// Config is the replyd configuration file.
type Config struct {
	Search          SearchConfig     `yaml:"search"`
	Keywords        KeywordsConfig   `yaml:"keywords"`
	Classifier      ClassifierConfig `yaml:"classifier"`
	CooldownSeconds int              `yaml:"cooldown_seconds"`
	Reply           ReplyConfig      `yaml:"reply"`
	Scan            ScanConfig       `yaml:"scan"`
	Challenge       ChallengeConfig  `yaml:"challenge"`
	Feed            FeedConfig       `yaml:"feed"`
	Dedupe          DedupeConfig     `yaml:"dedupe"`
	Outcome         OutcomeConfig    `yaml:"outcome"`
	Status          StatusConfig     `yaml:"status"`
	LogLevel        string           `yaml:"log_level"`
}

// SearchConfig builds the search query. URL, when set, is used verbatim.
type SearchConfig struct {
	Query   string `yaml:"query"`
	Keyword string `yaml:"keyword"`
	Hashtag string `yaml:"hashtag"`
	Src     string `yaml:"src"`
	Live    *bool  `yaml:"live"`
	URL     string `yaml:"url"`
}

type KeywordsConfig struct {
	Positive  []string `yaml:"positive"`
	Negative  []string `yaml:"negative"`
	Match     string   `yaml:"match"` // substring | word
	MinLength int      `yaml:"min_length"`
}

type ClassifierConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Provider    string   `yaml:"provider"` // openai | zeroshot
	Model       string   `yaml:"model"`
	BaseURL     string   `yaml:"base_url"`
	Labels      []string `yaml:"labels"`
	TargetLabel string   `yaml:"target_label"`
	Threshold   float64  `yaml:"threshold"`
	TimeoutMs   int      `yaml:"timeout_ms"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	TokensFile  string   `yaml:"tokens_file"`
	RatePerSec  float64  `yaml:"rate_per_sec"`
	// BreakerFailures failures out of BreakerWindow calls open the circuit
	// for BreakerDelay. Zero values take the gateway defaults (5 of 10, 30s).
	BreakerFailures uint          `yaml:"breaker_failures"`
	BreakerWindow   uint          `yaml:"breaker_window"`
	BreakerDelay    time.Duration `yaml:"breaker_delay"`
}

type ReplyConfig struct {
	// Message is a text/template rendered with the Post.
	Message           string `yaml:"message"`
	DryRun            bool   `yaml:"dry_run"`
	ClickTimeoutMs    int    `yaml:"click_timeout_ms"`
	ComposerTimeoutMs int    `yaml:"composer_timeout_ms"`
	SubmitTimeoutMs   int    `yaml:"submit_timeout_ms"`
}

type ScanConfig struct {
	IntervalMs              int   `yaml:"interval_ms"`
	MaxAgeHours             int   `yaml:"max_age_hours"`
	EmptyScansBeforeRefresh int   `yaml:"empty_scans_before_refresh"`
	RememberSkips           *bool `yaml:"remember_skips"`
}

type ChallengeConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

type FeedConfig struct {
	UserDataDir    string        `yaml:"user_data_dir"`
	Headless       bool          `yaml:"headless"`
	Remote         string        `yaml:"remote"`
	LoginURL       string        `yaml:"login_url"`
	LoginTimeout   time.Duration `yaml:"login_timeout"`
	NavTimeout     time.Duration `yaml:"nav_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBackoffMs int           `yaml:"retry_backoff_ms"`
	// BlockResources lists resource types the page drops: images, fonts,
	// media, stylesheets.
	BlockResources []string `yaml:"block_resources"`
}

type DedupeConfig struct {
	Backend string `yaml:"backend"` // file | sqlite
	Path    string `yaml:"path"`
}

// OutcomeConfig selects outcome sinks. Empty paths disable the matching sink.
type OutcomeConfig struct {
	DecisionsPath string `yaml:"decisions_path"`
	CyclesPath    string `yaml:"cycles_path"`
	SQLitePath    string `yaml:"sqlite_path"`
	WebhookURL    string `yaml:"webhook_url"`
	Stdout        bool   `yaml:"stdout"`
}

type StatusConfig struct {
	Addr string `yaml:"addr"`
}

// LoadFile reads a YAML configuration file and applies defaults. It does
// not validate; call Validate.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Search.Src == "" {
		c.Search.Src = "recent_search_click"
	}
	if c.Search.Live == nil {
		c.Search.Live = boolPtr(true)
	}
	if c.Keywords.Match == "" {
		c.Keywords.Match = "substring"
	}
	if c.Classifier.Provider == "" {
		c.Classifier.Provider = classify.ProviderOpenAI
	}
	if len(c.Classifier.Labels) == 0 {
		c.Classifier.Labels = classify.DefaultLabels
	}
	if c.Classifier.TargetLabel == "" {
		c.Classifier.TargetLabel = classify.DefaultTargetLabel
	}
	if c.Classifier.Threshold == 0 {
		c.Classifier.Threshold = classify.DefaultThreshold
	}
	if c.Classifier.TimeoutMs <= 0 {
		c.Classifier.TimeoutMs = int(classify.DefaultTimeout / time.Millisecond)
	}
	if c.Reply.ClickTimeoutMs <= 0 {
		c.Reply.ClickTimeoutMs = 2500
	}
	if c.Reply.ComposerTimeoutMs <= 0 {
		c.Reply.ComposerTimeoutMs = 3000
	}
	if c.Reply.SubmitTimeoutMs <= 0 {
		c.Reply.SubmitTimeoutMs = 4000
	}
	if c.Scan.IntervalMs <= 0 {
		c.Scan.IntervalMs = 1500
	}
	if c.Scan.MaxAgeHours <= 0 {
		c.Scan.MaxAgeHours = 3
	}
	if c.Scan.EmptyScansBeforeRefresh <= 0 {
		c.Scan.EmptyScansBeforeRefresh = 6
	}
	if c.Scan.RememberSkips == nil {
		c.Scan.RememberSkips = boolPtr(true)
	}
	if c.Challenge.PollInterval <= 0 {
		c.Challenge.PollInterval = 30 * time.Second
	}
	if c.Feed.UserDataDir == "" {
		c.Feed.UserDataDir = "bot_session"
	}
	if c.Feed.LoginURL == "" {
		c.Feed.LoginURL = "https://x.com/login"
	}
	if c.Feed.LoginTimeout <= 0 {
		c.Feed.LoginTimeout = 120 * time.Second
	}
	if c.Feed.NavTimeout <= 0 {
		c.Feed.NavTimeout = 15 * time.Second
	}
	if c.Feed.MaxRetries <= 0 {
		c.Feed.MaxRetries = 3
	}
	if c.Feed.RetryBackoffMs <= 0 {
		c.Feed.RetryBackoffMs = 1200
	}
	if c.Dedupe.Backend == "" {
		c.Dedupe.Backend = dedupe.BackendFile
	}
	if c.Dedupe.Path == "" {
		if c.Dedupe.Backend == dedupe.BackendSQLite {
			c.Dedupe.Path = "replied_ids.db"
		} else {
			c.Dedupe.Path = "replied_ids.json"
		}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports every problem found, joined, each wrapping ErrConfig.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrConfig}, args...)...))
	}

	if c.Search.URL == "" && c.Search.Query == "" && c.Search.Keyword == "" && c.Search.Hashtag == "" {
		bad("search: one of url, query, keyword or hashtag is required")
	}
	if c.Search.URL != "" {
		if u, err := url.Parse(c.Search.URL); err != nil || u.Scheme == "" || u.Host == "" {
			bad("search.url %q is not an absolute URL", c.Search.URL)
		}
	}
	if strings.TrimSpace(c.Reply.Message) == "" {
		bad("reply.message is required")
	} else if _, err := parseMessage(c.Reply.Message); err != nil {
		bad("reply.message: %v", err)
	}
	if _, err := parseMatchMode(c.Keywords.Match); err != nil {
		bad("keywords.match: %v", err)
	}
	if c.Keywords.MinLength < 0 {
		bad("keywords.min_length must be >= 0")
	}
	if c.CooldownSeconds < 0 {
		bad("cooldown_seconds must be >= 0")
	}
	if c.Classifier.Enabled {
		switch c.Classifier.Provider {
		case classify.ProviderOpenAI, classify.ProviderZeroShot:
		default:
			bad("classifier.provider %q: want openai or zeroshot", c.Classifier.Provider)
		}
		if c.Classifier.Threshold <= 0 || c.Classifier.Threshold > 1 {
			bad("classifier.threshold %v must be in (0, 1]", c.Classifier.Threshold)
		}
		if w := c.Classifier.BreakerWindow; w > 0 && c.Classifier.BreakerFailures > w {
			bad("classifier.breaker_failures %d exceeds breaker_window %d", c.Classifier.BreakerFailures, w)
		}
		if !containsFold(c.Classifier.Labels, c.Classifier.TargetLabel) {
			bad("classifier.target_label %q is not one of labels %v", c.Classifier.TargetLabel, c.Classifier.Labels)
		}
	}
	switch c.Dedupe.Backend {
	case dedupe.BackendFile, dedupe.BackendSQLite:
	default:
		bad("dedupe.backend %q: want file or sqlite", c.Dedupe.Backend)
	}
	return errors.Join(errs...)
}

// BuildSearchURL returns the search page URL: Search.URL when set, else
// https://x.com/search?q=<query>&src=<src>[&f=live], where query defaults to
// "<keyword> #<hashtag>".
func (c *Config) BuildSearchURL() string {
	if c.Search.URL != "" {
		return c.Search.URL
	}
	v := url.Values{}
	v.Set("q", c.SearchQuery())
	v.Set("src", c.Search.Src)
	if c.Search.Live == nil || *c.Search.Live {
		v.Set("f", "live")
	}
	return "https://x.com/search?" + v.Encode()
}

// SearchQuery returns the query text.
func (c *Config) SearchQuery() string {
	if c.Search.Query != "" {
		return c.Search.Query
	}
	var parts []string
	if k := strings.TrimSpace(c.Search.Keyword); k != "" {
		parts = append(parts, k)
	}
	if h := strings.TrimPrefix(strings.TrimSpace(c.Search.Hashtag), "#"); h != "" {
		parts = append(parts, "#"+h)
	}
	return strings.Join(parts, " ")
}

// FilterConfig returns the keyword prefilter configuration.
func (c *Config) FilterConfig() FilterConfig {
	mode, _ := parseMatchMode(c.Keywords.Match)
	return keyword.Config{
		Positive:  c.Keywords.Positive,
		Negative:  c.Keywords.Negative,
		Mode:      mode,
		MinLength: c.Keywords.MinLength,
	}
}

// RememberSkips reports whether permanent skips are remembered in memory.
func (c *Config) RememberSkips() bool {
	return c.Scan.RememberSkips == nil || *c.Scan.RememberSkips
}

func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Scan.IntervalMs) * time.Millisecond
}

func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

func parseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(s) {
	case "", "substring":
		return keyword.MatchSubstring, nil
	case "word":
		return keyword.MatchWord, nil
	default:
		return keyword.MatchSubstring, fmt.Errorf("unknown mode %q", s)
	}
}

func parseMessage(s string) (*template.Template, error) {
	return template.New("reply").Option("missingkey=error").Parse(s)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func boolPtr(b bool) *bool { return &b }
