package tools

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmosemcp/pkg/core"
	"github.com/NERVsystems/osmosemcp/pkg/monitoring"
	"github.com/NERVsystems/osmosemcp/pkg/osm"
	"github.com/NERVsystems/osmosemcp/pkg/osm/osmxml"
)

// FetchElementInput is the input of fetch_osm_element.
type FetchElementInput struct {
	Type    string `json:"type"`
	ID      int64  `json:"id"`
	Full    bool   `json:"full"`
	Explain bool   `json:"explain"`
}

// FetchElementOutput is the result of fetch_osm_element. Only Found is set
// when the element could not be fetched, plus Reason if requested.
type FetchElementOutput struct {
	Found   bool              `json:"found"`
	Type    string            `json:"type,omitempty"`
	ID      int64             `json:"id,omitempty"`
	URL     string            `json:"url,omitempty"`
	Element *osmxml.Element   `json:"element,omitempty"`
	Nodes   []*osmxml.Element `json:"nodes,omitempty"`
	Reason  *core.MCPError    `json:"reason,omitempty"`
}

func (r *Registry) fetchElementTool() ToolDefinition {
	desc := "Fetch one node, way or relation from the OSM API. " +
		"With full=true a way is returned with its nodes. Returns {\"found\": false} when the element is unavailable."
	return ToolDefinition{
		Name:        "fetch_osm_element",
		Description: desc,
		Tool: r.factory.CreateElementTool("fetch_osm_element", desc,
			mcp.WithBoolean("full",
				mcp.Description("Include the nodes of a way"),
				mcp.DefaultBool(false),
			),
			mcp.WithBoolean("explain",
				mcp.Description("Report why an unavailable element could not be fetched"),
				mcp.DefaultBool(false),
			),
		),
		Handler: WithParsedInput(r.logger, "fetch_osm_element", r.handleFetchElement),
	}
}

func (r *Registry) handleFetchElement(ctx context.Context, input FetchElementInput, logger *slog.Logger) (interface{}, error) {
	t, err := core.ValidateElementRefWithLog(logger, input.Type, input.ID)
	if err != nil {
		return nil, err
	}

	client := r.deps.OSM
	data, err := client.FetchData(ctx, t, input.ID, input.Full)
	if err != nil {
		out := FetchElementOutput{Found: false}
		if reason := core.FetchFailure(err); reason != nil {
			var fe *osm.FetchError
			if errors.As(err, &fe) {
				monitoring.RecordElementFetch(string(t), string(fe.Kind))
			}
			if input.Explain {
				out.Reason = reason
			}
		}
		logger.Debug("element unavailable", "type", t, "id", input.ID, "error", err)
		return out, nil
	}

	monitoring.RecordElementFetch(string(t), "found")

	out := FetchElementOutput{
		Found:   true,
		Type:    string(t),
		ID:      input.ID,
		URL:     client.ElementURL(t, input.ID, input.Full),
		Element: data.First(t.Kind()),
	}
	if t == osm.Way && input.Full {
		out.Nodes = data[osmxml.KindNode]
	}
	return out, nil
}
