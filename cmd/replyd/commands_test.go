package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, extra string) (cfgPath, dir string) {
	t.Helper()
	dir = t.TempDir()
	cfgPath = filepath.Join(dir, "replyd.yaml")
	body := `search:
  keyword: beli
  hashtag: jualbeli
keywords:
  positive: [beli]
  negative: [giveaway]
reply:
  message: "Hai @{{.Author}}"
dedupe:
  path: ` + filepath.Join(dir, "replied_ids.json") + "\n" + extra
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return cfgPath, dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCheckCommand(t *testing.T) {
	cfg, _ := writeConfig(t, "")

	out, err := execute(t, "check", "-c", cfg, "mau", "beli", "giveaway")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"filter": "reject_negative"`) || !strings.Contains(out, `"would_reply": false`) {
		t.Fatalf("unexpected output:\n%s", out)
	}

	out, err = execute(t, "check", "-c", cfg, "mau beli hp")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"would_reply": true`) {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRepliedImportAndList(t *testing.T) {
	// WHAT: Imported ids land in the replied set and list back in order.
	cfg, dir := writeConfig(t, "")
	src := filepath.Join(dir, "ids.txt")
	os.WriteFile(src, []byte("# seeded by hand\n100\n200\n\n100\n"), 0o644)

	out, err := execute(t, "replied", "import", "-c", cfg, src)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "imported 2 new ids (2 total)") {
		t.Fatalf("import output: %s", out)
	}

	out, err = execute(t, "replied", "list", "-c", cfg, "--limit", "0")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"100", "200"}, strings.Fields(out)); diff != "" {
		t.Fatalf("list (-want +got):\n%s", diff)
	}
}

func TestParseIDList(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{`[1790000000000000001, 42]`, []string{"1790000000000000001", "42"}},
		{`["a1", "b2"]`, []string{"a1", "b2"}},
		{"1\n 2 \n# note\n3", []string{"1", "2", "3"}},
	}
	for _, c := range cases {
		got, err := parseIDList([]byte(c.in))
		if err != nil {
			t.Fatalf("parseIDList(%q): %v", c.in, err)
		}
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("parseIDList(%q) (-want +got):\n%s", c.in, diff)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	cfg, _ := writeConfig(t, "")
	out, err := execute(t, "config", "validate", "-c", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "config ok") || !strings.Contains(out, "q=beli+%23jualbeli") {
		t.Fatalf("output: %s", out)
	}

	bad, _ := writeConfig(t, "classifier:\n  enabled: true\n  provider: bert\n")
	if _, err := execute(t, "config", "validate", "-c", bad); err == nil {
		t.Fatal("invalid config must fail validation")
	}
}
