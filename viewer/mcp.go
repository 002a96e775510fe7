package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the viewer's control surface as MCP tools.
func (v *Viewer) RegisterMCP(srv *mcp.Server) {
	v.registerEnableTool(srv)
	v.registerDisableTool(srv)
	v.registerStatusTool(srv)
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

type toggleReq struct {
	ConfigID          string `json:"configId"`
	VisualizationType string `json:"visualizationType"`
	ResultsPath       string `json:"resultsPath,omitempty"`
}

func (r *toggleReq) validate() error {
	if r.ConfigID == "" || r.VisualizationType == "" {
		return errors.New("configId and visualizationType are required")
	}
	return nil
}

func (v *Viewer) registerEnableTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "a11yview_enable",
		Description: "Enable an accessibility visualization across all frames, optionally seeded from a scan-results JSON file.",
		InputSchema: inputSchema(map[string]any{
			"configId":          map[string]any{"type": "string", "description": "Visualization configId (type or type:step)"},
			"visualizationType": map[string]any{"type": "string", "description": "Visualization type (issues, headings, landmarks, tabStops, color)"},
			"resultsPath":       map[string]any{"type": "string", "description": "Optional path to a scan-results JSON file"},
		}, []string{"configId", "visualizationType"}),
	}

	addTool(srv, tool, func(_ context.Context, r *toggleReq) (any, error) {
		if err := r.validate(); err != nil {
			return nil, err
		}
		if r.ResultsPath != "" {
			instances, err := LoadResults(r.ResultsPath)
			if err != nil {
				return nil, err
			}
			if err := v.Enable(r.ConfigID, r.VisualizationType, instances); err != nil {
				return nil, err
			}
			return map[string]any{"enabled": r.ConfigID, "instances": len(instances)}, nil
		}
		if err := v.Enable(r.ConfigID, r.VisualizationType, nil); err != nil {
			return nil, err
		}
		return map[string]any{"enabled": r.ConfigID}, nil
	})
}

func (v *Viewer) registerDisableTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "a11yview_disable",
		Description: "Disable an accessibility visualization across all frames.",
		InputSchema: inputSchema(map[string]any{
			"configId":          map[string]any{"type": "string", "description": "Visualization configId"},
			"visualizationType": map[string]any{"type": "string", "description": "Visualization type"},
		}, []string{"configId", "visualizationType"}),
	}

	addTool(srv, tool, func(_ context.Context, r *toggleReq) (any, error) {
		if err := r.validate(); err != nil {
			return nil, err
		}
		if err := v.Disable(r.ConfigID, r.VisualizationType); err != nil {
			return nil, err
		}
		return map[string]any{"disabled": r.ConfigID}, nil
	})
}

func (v *Viewer) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "a11yview_status",
		Description: "Report the enabled state of every registered visualization configId.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	addTool(srv, tool, func(_ context.Context, _ *toggleReq) (any, error) {
		return map[string]any{"visualizations": v.Status()}, nil
	})
}

// addTool wires a typed endpoint as an MCP tool: decode arguments, run,
// marshal the response as text content. Endpoint errors become tool
// errors, never protocol errors.
func addTool(srv *mcp.Server, tool *mcp.Tool, endpoint func(context.Context, *toggleReq) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r toggleReq
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				var res mcp.CallToolResult
				res.SetError(fmt.Errorf("invalid arguments: %w", err))
				return &res, nil
			}
		}

		resp, err := endpoint(ctx, &r)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}
