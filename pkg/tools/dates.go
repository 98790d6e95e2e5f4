package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmosemcp/pkg/core"
)

// ParseDateInput is the input of parse_date.
type ParseDateInput struct {
	Date string `json:"date"`
}

// ParseDateOutput is the result of parse_date.
type ParseDateOutput struct {
	Input     string `json:"input"`
	Date      string `json:"date"`
	Timestamp string `json:"timestamp"`
}

func (r *Registry) parseDateTool() ToolDefinition {
	desc := "Parse a date written as YYYY-MM-DD, YYYY-MM or YYYY. Missing month and day default to 1."
	return ToolDefinition{
		Name:        "parse_date",
		Description: desc,
		Tool: mcp.NewTool("parse_date",
			mcp.WithDescription(desc),
			mcp.WithString("date",
				mcp.Required(),
				mcp.Description("The date to parse, for example 2020-05"),
			),
		),
		Handler: WithParsedInput(r.logger, "parse_date", handleParseDate),
	}
}

func handleParseDate(_ context.Context, input ParseDateInput, _ *slog.Logger) (interface{}, error) {
	t, err := core.ValidateDate(input.Date)
	if err != nil {
		return nil, err
	}
	return ParseDateOutput{
		Input:     input.Date,
		Date:      t.Format("2006-01-02"),
		Timestamp: t.Format(time.RFC3339),
	}, nil
}
