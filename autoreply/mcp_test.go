package autoreply

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testMCPImpl = &mcp.Implementation{Name: "replyd-test", Version: "0.1.0"}

func mcpSession(t *testing.T, b *Bot) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	b.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		cancel()
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() {
		session.Close()
		cancel()
		<-done
	})
	return session
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text, result.IsError
}

func TestMCP_Status(t *testing.T) {
	h := newHarness(t, nil)
	session := mcpSession(t, h.bot)

	text, isErr := mcpCallTool(t, session, "replyd_status", map[string]any{})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var st Status
	if err := json.Unmarshal([]byte(text), &st); err != nil {
		t.Fatal(err)
	}
	if st.Query != "beli #jualbeli" || st.Challenge != "normal" {
		t.Fatalf("status = %+v", st)
	}
}

func TestMCP_RecentDecisionsByKind(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Filter = FilterConfig{Negative: []string{"giveaway"}} })
	h.feed.posts = []Post{post("1", "giveaway"), post("2", "beli"), post("3", "giveaway lagi")}
	h.bot.RunCycle(context.Background())
	session := mcpSession(t, h.bot)

	text, _ := mcpCallTool(t, session, "replyd_recent_decisions", map[string]any{"kind": "skipped_negative_keyword"})
	var resp struct {
		Decisions []Decision `json:"decisions"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Decisions) != 2 || resp.Decisions[0].PostID != "1" || resp.Decisions[1].PostID != "3" {
		t.Fatalf("decisions = %+v", resp.Decisions)
	}
}

func TestMCP_CheckText(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Filter = FilterConfig{Positive: []string{"beli"}, Negative: []string{"giveaway"}}
	})
	session := mcpSession(t, h.bot)

	text, _ := mcpCallTool(t, session, "replyd_check_text", map[string]any{"text": "Mau BELI laptop giveaway"})
	var res CheckResult
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		t.Fatal(err)
	}
	if res.Filter != "reject_negative" || res.Keyword != "giveaway" || res.WouldReply {
		t.Fatalf("check = %+v", res)
	}

	if _, isErr := mcpCallTool(t, session, "replyd_check_text", map[string]any{"text": ""}); !isErr {
		t.Fatal("empty text must be a tool error")
	}
}

func TestMCP_Control(t *testing.T) {
	h := newHarness(t, nil)
	session := mcpSession(t, h.bot)

	text, isErr := mcpCallTool(t, session, "replyd_control", map[string]any{"action": "pause"})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	if !h.bot.Status().Paused {
		t.Fatal("pause not applied")
	}
	if _, isErr := mcpCallTool(t, session, "replyd_control", map[string]any{"action": "nope"}); !isErr {
		t.Fatal("unknown action must be a tool error")
	}
}
