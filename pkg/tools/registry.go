package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/osmosemcp/pkg/config"
	"github.com/NERVsystems/osmosemcp/pkg/core"
	"github.com/NERVsystems/osmosemcp/pkg/i18n"
	"github.com/NERVsystems/osmosemcp/pkg/languages"
	"github.com/NERVsystems/osmosemcp/pkg/monitoring"
	"github.com/NERVsystems/osmosemcp/pkg/osm"
	"github.com/NERVsystems/osmosemcp/pkg/tracing"
)

// Deps are the shared, read-only components the tools operate on.
type Deps struct {
	Languages  *languages.Registry
	Negotiator *i18n.Negotiator
	Config     *config.Config
	OSM        *osm.Client
}

// Registry contains all tool definitions and handlers
type Registry struct {
	logger  *slog.Logger
	factory *core.ToolFactory
	deps    Deps
}

// NewRegistry creates a new tool registry
func NewRegistry(logger *slog.Logger, deps Deps) *Registry {
	return &Registry{
		logger:  logger,
		factory: core.NewToolFactory(),
		deps:    deps,
	}
}

// ToolDefinition represents an Osmose MCP tool definition.
type ToolDefinition struct {
	Name        string
	Description string
	Tool        mcp.Tool
	Handler     ToolHandler
}

// GetToolDefinitions returns the list of all available tools.
func (r *Registry) GetToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		r.getVersionTool(),

		// Languages and translations
		r.listLanguagesTool(),
		r.selectTranslationTool(),
		r.selectUILanguageTool(),

		r.parseDateTool(),
		r.fetchElementTool(),
		r.frontendConfigTool(),
	}
}

// RegisterTools registers all tools with the MCP server.
func (r *Registry) RegisterTools(mcpServer *server.MCPServer) {
	for _, def := range r.GetToolDefinitions() {
		r.logger.Info("registering tool", "name", def.Name)
		mcpServer.AddTool(def.Tool, server.ToolHandlerFunc(r.wrapWithTracing(def.Name, def.Handler)))
	}
}

// wrapWithTracing wraps a tool handler with OpenTelemetry tracing and metrics
func (r *Registry) wrapWithTracing(toolName string, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		spanName := fmt.Sprintf("mcp.tool.%s", toolName)
		ctx, span := tracing.StartSpan(ctx, spanName,
			trace.WithAttributes(attribute.String(tracing.AttrMCPToolName, toolName)),
		)
		defer span.End()

		startTime := time.Now()
		result, err := handler(ctx, req)
		duration := time.Since(startTime)
		durationMs := duration.Milliseconds()

		status := tracing.StatusSuccess
		switch {
		case err != nil:
			status = tracing.StatusError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case result != nil && result.IsError:
			status = tracing.StatusError
			span.SetStatus(codes.Error, "tool returned an error result")
		default:
			span.SetStatus(codes.Ok, "")
		}

		resultSize := 0
		if result != nil && result.Content != nil {
			if data, marshalErr := json.Marshal(result.Content); marshalErr == nil {
				resultSize = len(data)
			}
		}

		span.SetAttributes(tracing.MCPToolAttributes(toolName, status, durationMs, resultSize)...)
		monitoring.RecordMCPRequest(toolName, duration, status == tracing.StatusSuccess)

		r.logger.Debug("tool execution traced",
			"tool", toolName,
			"duration_ms", durationMs,
			"status", status,
			"result_size", resultSize,
		)

		return result, err
	}
}

// Handler returns the traced handler of the named tool.
func (r *Registry) Handler(name string) (ToolHandler, bool) {
	for _, def := range r.GetToolDefinitions() {
		if def.Name == name {
			return r.wrapWithTracing(def.Name, def.Handler), true
		}
	}
	return nil, false
}

// GetToolNames returns a list of all tool names.
func (r *Registry) GetToolNames() []string {
	defs := r.GetToolDefinitions()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}
