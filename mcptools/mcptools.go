// Package mcptools exposes the feature mapping engine and its feedback
// loop as MCP tools, so operators can probe mappings and curate the
// catalog from an MCP client.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/stickermatch/catalog"
	"github.com/hazyhaar/stickermatch/featmap"
	"github.com/hazyhaar/stickermatch/learn"
)

// endpoint is a typed tool handler wired through registerTool.
type endpoint func(ctx context.Context, req any) (any, error)

// registerTool registers an endpoint as an MCP tool. The decode function
// extracts the typed request from req.Params.Arguments; tool-level
// failures land in the result's error slot, not in the protocol error.
func registerTool(srv *mcp.Server, tool *mcp.Tool, ep endpoint, decode func(*mcp.CallToolRequest) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		decoded, err := decode(req)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("invalid arguments: %w", err))
			return &res, nil
		}

		resp, err := ep(ctx, decoded)
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

// Tools bundles the components the MCP surface operates on.
type Tools struct {
	Engine  *featmap.Engine
	Catalog *catalog.Catalog
	Learner *learn.Learner
	Logger  *slog.Logger
}

// Register mounts all stickermatch tools on the MCP server.
func (t *Tools) Register(srv *mcp.Server) {
	if t.Logger == nil {
		t.Logger = slog.Default()
	}
	t.registerMapFeature(srv)
	t.registerAddAlias(srv)
	t.registerRecordCorrection(srv)
	t.registerSuggestImprovements(srv)
	t.registerApplySuggestions(srv)
	t.registerCatalogStats(srv)
}

// --- map_feature ---

type mapFeatureReq struct {
	Text      string  `json:"text"`
	Section   string  `json:"section,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

func (t *Tools) registerMapFeature(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "map_feature",
		Description: "Map a raw window sticker feature string to a checkbox label, with confidence and match source.",
		InputSchema: inputSchema(map[string]any{
			"text":      map[string]any{"type": "string", "description": "Raw feature text"},
			"section":   map[string]any{"type": "string", "description": "Optional sticker section hint (e.g. Safety)"},
			"threshold": map[string]any{"type": "number", "description": "Confidence threshold override (0 uses catalog default)"},
		}, []string{"text"}),
	}

	ep := func(ctx context.Context, req any) (any, error) {
		r := req.(*mapFeatureReq)
		f := featmap.ExtractedFeature{Text: r.Text, Section: r.Section}
		return t.Engine.MapFeature(t.Catalog, f, r.Threshold), nil
	}

	registerTool(srv, tool, ep, func(req *mcp.CallToolRequest) (any, error) {
		var r mapFeatureReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &r, nil
	})
}

// --- add_alias ---

type addAliasReq struct {
	Label string `json:"label"`
	Alias string `json:"alias"`
}

func (t *Tools) registerAddAlias(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "add_alias",
		Description: "Add a surface-text alias to a checkbox label in the feature catalog.",
		InputSchema: inputSchema(map[string]any{
			"label": map[string]any{"type": "string", "description": "Checkbox label"},
			"alias": map[string]any{"type": "string", "description": "Alias text to add"},
		}, []string{"label", "alias"}),
	}

	ep := func(ctx context.Context, req any) (any, error) {
		r := req.(*addAliasReq)
		added := t.Catalog.AddAlias(r.Label, r.Alias)
		return map[string]bool{"added": added}, nil
	}

	registerTool(srv, tool, ep, func(req *mcp.CallToolRequest) (any, error) {
		var r addAliasReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &r, nil
	})
}

// --- record_correction ---

type recordCorrectionReq struct {
	FeatureText    string `json:"feature_text"`
	PreviousLabel  string `json:"previous_label,omitempty"`
	CorrectedLabel string `json:"corrected_label"`
}

func (t *Tools) registerRecordCorrection(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "record_correction",
		Description: "Record a human correction for a feature mapping; takes effect immediately as an alias.",
		InputSchema: inputSchema(map[string]any{
			"feature_text":    map[string]any{"type": "string", "description": "The sticker text that was mismapped"},
			"previous_label":  map[string]any{"type": "string", "description": "Label it wrongly mapped to, if any"},
			"corrected_label": map[string]any{"type": "string", "description": "The correct checkbox label"},
		}, []string{"feature_text", "corrected_label"}),
	}

	ep := func(ctx context.Context, req any) (any, error) {
		r := req.(*recordCorrectionReq)
		if err := t.Learner.RecordCorrection(ctx, r.FeatureText, r.PreviousLabel, r.CorrectedLabel); err != nil {
			return nil, err
		}
		return map[string]string{"status": "recorded"}, nil
	}

	registerTool(srv, tool, ep, func(req *mcp.CallToolRequest) (any, error) {
		var r recordCorrectionReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &r, nil
	})
}

// --- suggest_improvements ---

func (t *Tools) registerSuggestImprovements(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "suggest_improvements",
		Description: "List pending catalog suggestions derived from consistent correction history.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	ep := func(ctx context.Context, _ any) (any, error) {
		return t.Learner.SuggestImprovements(ctx)
	}

	registerTool(srv, tool, ep, func(*mcp.CallToolRequest) (any, error) {
		return nil, nil
	})
}

// --- apply_suggestions ---

func (t *Tools) registerApplySuggestions(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "apply_suggestions",
		Description: "Apply all pending suggestions to the catalog; returns the number of mutations.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	ep := func(ctx context.Context, _ any) (any, error) {
		applied, err := t.Learner.ApplySuggestions(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int{"applied": applied}, nil
	}

	registerTool(srv, tool, ep, func(*mcp.CallToolRequest) (any, error) {
		return nil, nil
	})
}

// --- catalog_stats ---

func (t *Tools) registerCatalogStats(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "catalog_stats",
		Description: "Summarize the feature catalog: label count, alias count, threshold.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	ep := func(_ context.Context, _ any) (any, error) {
		labels := t.Catalog.Labels()
		aliases := 0
		for _, l := range labels {
			aliases += len(t.Catalog.Aliases(l))
		}
		return map[string]any{
			"labels":    len(labels),
			"aliases":   aliases,
			"threshold": t.Catalog.Threshold(),
		}, nil
	}

	registerTool(srv, tool, ep, func(*mcp.CallToolRequest) (any, error) {
		return nil, nil
	})
}

// Serve runs the tools on a stdio MCP transport until ctx is cancelled.
func (t *Tools) Serve(ctx context.Context, name, version string) error {
	srv := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)
	t.Register(srv)
	return srv.Run(ctx, &mcp.StdioTransport{})
}
