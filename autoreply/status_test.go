package autoreply

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func statusServer(t *testing.T, h *harness) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h.bot.Handler())
	t.Cleanup(func() {
		srv.Close()
		http.DefaultClient.CloseIdleConnections()
	})
	return srv
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestHandler_HealthAndStatus(t *testing.T) {
	h := newHarness(t, nil)
	h.feed.posts = []Post{post("1", "beli")}
	h.bot.RunCycle(context.Background())
	srv := statusServer(t, h)

	resp := getJSON(t, srv.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Trace-ID") == "" {
		t.Error("responses carry a trace id")
	}

	var st Status
	getJSON(t, srv.URL+"/status", &st)
	if st.State != "running" || st.Cycles != 1 || st.RepliedIDs != 1 {
		t.Fatalf("status = %+v", st)
	}
	if st.Decisions[Replied] != 1 {
		t.Fatalf("decision counts = %v", st.Decisions)
	}
	if st.Challenge != "normal" {
		t.Fatalf("challenge = %q", st.Challenge)
	}
}

func TestHandler_Decisions(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Filter = FilterConfig{Negative: []string{"giveaway"}} })
	h.feed.posts = []Post{post("1", "giveaway"), post("2", "beli"), post("3", "beli")}
	h.bot.RunCycle(context.Background())
	srv := statusServer(t, h)

	var body struct {
		Decisions []Decision `json:"decisions"`
	}
	getJSON(t, srv.URL+"/decisions?limit=2", &body)
	if len(body.Decisions) != 2 {
		t.Fatalf("got %d decisions, want 2", len(body.Decisions))
	}
	if body.Decisions[0].PostID != "2" || body.Decisions[1].PostID != "3" {
		t.Fatalf("want the two most recent, oldest first: %+v", body.Decisions)
	}
}

func TestHandler_Control(t *testing.T) {
	h := newHarness(t, nil)
	srv := statusServer(t, h)

	post := func(path string) (*http.Response, ControlResult) {
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var res ControlResult
		json.NewDecoder(resp.Body).Decode(&res)
		return resp, res
	}

	resp, res := post("/control/pause")
	if resp.StatusCode != http.StatusOK || !res.Paused {
		t.Fatalf("pause: %d %+v", resp.StatusCode, res)
	}
	if !h.bot.Status().Paused {
		t.Fatal("bot not paused")
	}

	_, res = post("/control/dry-run?value=true")
	if !res.DryRun {
		t.Fatal("dry-run=true not applied")
	}
	_, res = post("/control/dry-run")
	if res.DryRun {
		t.Fatal("dry-run without value toggles")
	}

	resp, _ = post("/control/explode")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown action = %d, want 400", resp.StatusCode)
	}
}

func TestHandler_ControlRequiresPost(t *testing.T) {
	h := newHarness(t, nil)
	srv := statusServer(t, h)
	resp := getJSON(t, srv.URL+"/control/pause", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET /control/pause = %d, want 405", resp.StatusCode)
	}
	if h.bot.Status().Paused {
		t.Fatal("GET must not change state")
	}
}

func TestHandler_Metrics(t *testing.T) {
	h := newHarness(t, nil)
	h.feed.posts = []Post{post("1", "beli")}
	h.bot.RunCycle(context.Background())
	srv := statusServer(t, h)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`replyd_decisions_total{kind="replied"} 1`,
		`replyd_cycles_total{result="ok"} 1`,
		`replyd_dedupe_ids 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
