package viewer

import (
	"context"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testMCPImpl = &mcp.Implementation{Name: "a11yview-test", Version: "0.1.0"}

func mcpSession(t *testing.T, v *Viewer) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	v.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	var text string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			text += tc.Text
		}
	}
	return text, res.IsError
}

func TestMCP_EnableStatusDisable(t *testing.T) {
	v, top := newTestViewer(t)
	session := mcpSession(t, v)

	text, isErr := mcpCallTool(t, session, "a11yview_enable", map[string]any{
		"configId":          "issues",
		"visualizationType": "issues",
	})
	if isErr {
		t.Fatalf("enable: tool error: %s", text)
	}
	top.Settle()

	text, isErr = mcpCallTool(t, session, "a11yview_status", map[string]any{})
	if isErr {
		t.Fatalf("status: tool error: %s", text)
	}
	if !strings.Contains(text, `"issues":true`) {
		t.Fatalf("status: issues not enabled: %s", text)
	}

	text, isErr = mcpCallTool(t, session, "a11yview_disable", map[string]any{
		"configId":          "issues",
		"visualizationType": "issues",
	})
	if isErr {
		t.Fatalf("disable: tool error: %s", text)
	}
	top.Settle()

	text, _ = mcpCallTool(t, session, "a11yview_status", map[string]any{})
	if !strings.Contains(text, `"issues":false`) {
		t.Fatalf("status: issues still enabled: %s", text)
	}
}

func TestMCP_EnableMissingArgs(t *testing.T) {
	v, _ := newTestViewer(t)
	session := mcpSession(t, v)

	text, isErr := mcpCallTool(t, session, "a11yview_enable", map[string]any{
		"configId": "issues",
	})
	if !isErr {
		t.Fatalf("enable without type: expected tool error, got %s", text)
	}
}
