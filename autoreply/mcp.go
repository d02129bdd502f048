package autoreply

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/replyd/kit"
)

// RegisterMCP registers the bot's tools on an MCP server.
func (b *Bot) RegisterMCP(srv *mcp.Server) {
	b.registerStatusTool(srv)
	b.registerDecisionsTool(srv)
	b.registerCheckTool(srv)
	b.registerControlTool(srv)
}

func (b *Bot) mcpEndpoint(name string, ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Logging(b.logger, name))(ep)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (b *Bot) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "replyd_status",
		Description: "Current auto-reply status: loop state, challenge state, counters, cooldown.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(_ context.Context, _ any) (any, error) {
		return b.Status(), nil
	}
	kit.RegisterMCPTool(srv, tool, b.mcpEndpoint(tool.Name, endpoint), kit.DecodeArgs[struct{}]())
}

type decisionsReq struct {
	Limit int    `json:"limit"`
	Kind  string `json:"kind"`
}

func (b *Bot) registerDecisionsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "replyd_recent_decisions",
		Description: "Most recent per-post decisions, oldest first, optionally filtered by kind.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Maximum decisions to return (default 20)"},
			"kind":  map[string]any{"type": "string", "description": "Only this decision kind, e.g. replied"},
		}, nil),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*decisionsReq)
		if r.Limit <= 0 {
			r.Limit = 20
		}
		all := b.Recent(0)
		out := make([]Decision, 0, r.Limit)
		for i := len(all) - 1; i >= 0 && len(out) < r.Limit; i-- {
			if r.Kind == "" || string(all[i].Kind) == r.Kind {
				out = append(out, all[i])
			}
		}
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
		return map[string]any{"decisions": out}, nil
	}
	kit.RegisterMCPTool(srv, tool, b.mcpEndpoint(tool.Name, endpoint), kit.DecodeArgs[decisionsReq]())
}

type checkReq struct {
	Text string `json:"text"`
}

func (b *Bot) registerCheckTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "replyd_check_text",
		Description: "Run a text through the keyword filter and classifier without replying.",
		InputSchema: inputSchema(map[string]any{
			"text": map[string]any{"type": "string", "description": "Post text to evaluate"},
		}, []string{"text"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*checkReq)
		if r.Text == "" {
			return nil, errors.New("text is required")
		}
		return b.Check(ctx, r.Text), nil
	}
	kit.RegisterMCPTool(srv, tool, b.mcpEndpoint(tool.Name, endpoint), kit.DecodeArgs[checkReq]())
}

type controlReq struct {
	Action string `json:"action"`
	Value  string `json:"value"`
}

func (b *Bot) registerControlTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "replyd_control",
		Description: "Apply a control action: pause, resume, dry-run (value true/false, empty toggles), refresh, recheck.",
		InputSchema: inputSchema(map[string]any{
			"action": map[string]any{"type": "string", "enum": []string{"pause", "resume", "dry-run", "refresh", "recheck"}},
			"value":  map[string]any{"type": "string", "description": "For dry-run: true or false"},
		}, []string{"action"}),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*controlReq)
		return b.control(r.Action, r.Value)
	}
	kit.RegisterMCPTool(srv, tool, b.mcpEndpoint(tool.Name, endpoint), kit.DecodeArgs[controlReq]())
}
