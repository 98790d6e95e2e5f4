// Package tools provides the Osmose MCP tools implementations.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmosemcp/pkg/core"
)

// ToolHandler is the signature mcp-go expects for tool handlers.
type ToolHandler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// InputParser is a generic function to parse request arguments into a strongly typed struct
func InputParser[T any](req mcp.CallToolRequest) (T, *mcp.CallToolResult, error) {
	var input T

	inputJSON, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return input, ErrorResponse(fmt.Sprintf("Invalid input format: %v", err)), err
	}

	if err := json.Unmarshal(inputJSON, &input); err != nil {
		return input, core.NewValidationError(core.ErrInvalidInput, fmt.Sprintf("Failed to parse input: %v", err)).ToMCPResult(), err
	}

	return input, nil, nil
}

// WithParsedInput is a higher-order function that handles request parsing and error handling.
// A *core.MCPError returned by handler is passed to the client as is.
func WithParsedInput[T any](
	logger *slog.Logger,
	handlerName string,
	handler func(ctx context.Context, input T, logger *slog.Logger) (interface{}, error),
) ToolHandler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger := logger.With("tool", handlerName)

		input, errResult, err := InputParser[T](req)
		if err != nil {
			logger.Error("failed to parse input", "error", err)
			return errResult, nil
		}

		result, err := handler(ctx, input, logger)
		if err != nil {
			var mcpErr *core.MCPError
			if errors.As(err, &mcpErr) {
				logger.Debug("tool rejected request", "code", mcpErr.Code, "message", mcpErr.Message)
				return mcpErr.ToMCPResult(), nil
			}
			logger.Error("handler error", "error", err)
			return ErrorResponse(fmt.Sprintf("Failed to process request: %v", err)), nil
		}

		resultBytes, err := json.Marshal(result)
		if err != nil {
			logger.Error("failed to marshal result", "error", err)
			return ErrorResponse("Failed to generate result"), nil
		}

		return mcp.NewToolResultText(string(resultBytes)), nil
	}
}

// ErrorResponse returns a plain-text error result.
func ErrorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}
