package autoreply

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const sampleConfig = `
search:
  keyword: beli
  hashtag: "#jualbeli"
keywords:
  positive: [beli, cari]
  negative: [giveaway]
  match: word
cooldown_seconds: 90
reply:
  message: "Hai @{{.Author}}, cek DM ya"
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.ScanInterval() != 1500*time.Millisecond {
		t.Errorf("scan interval = %s", cfg.ScanInterval())
	}
	if cfg.Cooldown() != 90*time.Second {
		t.Errorf("cooldown = %s", cfg.Cooldown())
	}
	if !cfg.RememberSkips() {
		t.Error("remember_skips defaults to true")
	}
	if cfg.Dedupe.Backend != "file" || cfg.Dedupe.Path != "replied_ids.json" {
		t.Errorf("dedupe = %+v", cfg.Dedupe)
	}
	if cfg.Classifier.TimeoutMs != 4000 || cfg.Classifier.TargetLabel != "pembeli" {
		t.Errorf("classifier defaults = %+v", cfg.Classifier)
	}
	if cfg.Challenge.PollInterval != 30*time.Second {
		t.Errorf("challenge poll = %s", cfg.Challenge.PollInterval)
	}

	f := cfg.FilterConfig()
	if f.Mode != MatchWord {
		t.Errorf("match mode = %v, want word", f.Mode)
	}
	if diff := cmp.Diff([]string{"giveaway"}, f.Negative); diff != "" {
		t.Errorf("negative (-want +got):\n%s", diff)
	}
}

func TestParse_SQLiteDedupeDefaultPath(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig + "dedupe:\n  backend: sqlite\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Dedupe.Path != "replied_ids.db" {
		t.Fatalf("path = %q", cfg.Dedupe.Path)
	}
}

func TestParse_RememberSkipsExplicitFalse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig + "scan:\n  remember_skips: false\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RememberSkips() {
		t.Fatal("explicit false must survive defaults")
	}
}

func TestParse_BadYAML(t *testing.T) {
	if _, err := Parse([]byte("search: [unclosed")); !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	// WHAT: All problems come back joined, each wrapping ErrConfig.
	cfg, err := Parse([]byte(`
keywords:
  match: fuzzy
cooldown_seconds: -1
classifier:
  enabled: true
  provider: bert
  threshold: 1.5
  target_label: tetangga
dedupe:
  backend: redis
`))
	if err != nil {
		t.Fatal(err)
	}
	err = cfg.Validate()
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
	for _, want := range []string{
		"search:", "reply.message", "keywords.match", "cooldown_seconds",
		"classifier.provider", "classifier.threshold", "classifier.target_label", "dedupe.backend",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %q:\n%v", want, err)
		}
	}
}

func TestValidate_BadMessageTemplate(t *testing.T) {
	cfg, _ := Parse([]byte("search:\n  query: beli\nreply:\n  message: \"{{.Author\"\n"))
	if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestBuildSearchURL(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "keyword and hashtag",
			yaml: "search:\n  keyword: beli\n  hashtag: jualbeli\n",
			want: "https://x.com/search?f=live&q=beli+%23jualbeli&src=recent_search_click",
		},
		{
			name: "top results",
			yaml: "search:\n  query: cari laptop\n  live: false\n",
			want: "https://x.com/search?q=cari+laptop&src=recent_search_click",
		},
		{
			name: "explicit url",
			yaml: "search:\n  url: https://x.com/search?q=custom\n  keyword: ignored\n",
			want: "https://x.com/search?q=custom",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg, err := Parse([]byte(c.yaml))
			if err != nil {
				t.Fatal(err)
			}
			if got := cfg.BuildSearchURL(); got != c.want {
				t.Fatalf("got %s\nwant %s", got, c.want)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replyd.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SearchQuery() != "beli #jualbeli" {
		t.Fatalf("query = %q", cfg.SearchQuery())
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file must fail")
	}
}

func TestParse_BreakerTuning(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig + "classifier:\n  enabled: true\n  breaker_failures: 3\n  breaker_window: 4\n  breaker_delay: 45s\n"))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	c := cfg.Classifier
	if c.BreakerFailures != 3 || c.BreakerWindow != 4 || c.BreakerDelay != 45*time.Second {
		t.Fatalf("breaker = %d/%d %s", c.BreakerFailures, c.BreakerWindow, c.BreakerDelay)
	}

	cfg.Classifier.BreakerFailures = 5
	if err := cfg.Validate(); !errors.Is(err, ErrConfig) || !strings.Contains(err.Error(), "breaker_failures") {
		t.Fatalf("err = %v, want breaker_failures error", err)
	}
}
