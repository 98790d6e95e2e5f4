package core

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// ToolFactory builds tool definitions with the parameter conventions shared
// by the Osmose tools.
type ToolFactory struct{}

// NewToolFactory creates a new tool factory
func NewToolFactory() *ToolFactory {
	return &ToolFactory{}
}

// CreateBasicTool creates a tool without parameters
func (f *ToolFactory) CreateBasicTool(name, description string) mcp.Tool {
	return mcp.NewTool(name, mcp.WithDescription(description))
}

// CreateLanguageTool creates a tool taking a client's language preferences,
// either as an ordered list of codes or as a raw Accept-Language header.
func (f *ToolFactory) CreateLanguageTool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	base := []mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithArray("languages",
			mcp.Description("Preferred language codes, most preferred first (for example [\"pt_BR\", \"fr\"])"),
		),
		mcp.WithString("accept_language",
			mcp.Description("HTTP Accept-Language header, used when languages is not given"),
		),
	}
	return mcp.NewTool(name, append(base, opts...)...)
}

// CreateElementTool creates a tool addressing one OSM element
func (f *ToolFactory) CreateElementTool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	base := []mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Element type"),
			mcp.Enum("node", "way", "relation"),
		),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Element identifier"),
		),
	}
	return mcp.NewTool(name, append(base, opts...)...)
}
