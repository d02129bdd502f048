package autoreply

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func buildConfig(t *testing.T, extra string) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg, err := Parse([]byte(sampleConfig + "dedupe:\n  path: " + filepath.Join(dir, "replied_ids.json") + "\n" + extra))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestNewFromConfig_FeedOpensLast(t *testing.T) {
	// WHAT: Fatal startup errors surface before the feed is opened.
	// WHY: A corrupt store or a missing key must not start a browser first.
	cases := []struct {
		name  string
		setup func(t *testing.T, cfg *Config)
		want  error
	}{
		{
			name: "corrupt dedupe store",
			setup: func(t *testing.T, cfg *Config) {
				if err := os.WriteFile(cfg.Dedupe.Path, []byte("{not json"), 0o600); err != nil {
					t.Fatal(err)
				}
			},
			want: ErrCorruptStore,
		},
		{
			name: "missing api key",
			setup: func(t *testing.T, cfg *Config) {
				t.Setenv("REPLYD_BUILD_TEST_KEY", "")
				cfg.Classifier.Enabled = true
				cfg.Classifier.Provider = "openai"
				cfg.Classifier.APIKeyEnv = "REPLYD_BUILD_TEST_KEY"
			},
			want: ErrNoAPIKey,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := buildConfig(t, "")
			c.setup(t, cfg)
			opened := false
			_, err := NewFromConfig(context.Background(), cfg, func(context.Context) (FeedSource, error) {
				opened = true
				return &fakeFeed{}, nil
			}, nil, nil)
			if !errors.Is(err, c.want) {
				t.Fatalf("err = %v, want %v", err, c.want)
			}
			if opened {
				t.Fatal("feed opened before startup checks passed")
			}
		})
	}
}

func TestNewFromConfig_FeedErrorIsFatal(t *testing.T) {
	cfg := buildConfig(t, "")
	boom := errors.New("chrome not found")
	_, err := NewFromConfig(context.Background(), cfg, func(context.Context) (FeedSource, error) {
		return nil, boom
	}, nil, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestNewFromConfig_LoadsStore(t *testing.T) {
	cfg := buildConfig(t, "")
	if err := os.WriteFile(cfg.Dedupe.Path, []byte(`["11","12"]`), 0o600); err != nil {
		t.Fatal(err)
	}
	b, err := NewFromConfig(context.Background(), cfg, func(context.Context) (FeedSource, error) {
		return &fakeFeed{}, nil
	}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if got := b.Status().RepliedIDs; got != 2 {
		t.Fatalf("replied ids = %d, want 2", got)
	}
}
