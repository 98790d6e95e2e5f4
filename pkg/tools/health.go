package tools

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/NERVsystems/osmosemcp/pkg/version"
)

// VersionInfo represents version information for the service
type VersionInfo struct {
	Version     string            `json:"version"`
	Commit      string            `json:"commit,omitempty"`
	BuildDate   string            `json:"build_date,omitempty"`
	GoVersion   string            `json:"go_version,omitempty"`
	VCSRevision string            `json:"vcs_revision,omitempty"`
	VCSTime     string            `json:"vcs_time,omitempty"`
	Settings    map[string]string `json:"settings,omitempty"`
}

func (r *Registry) getVersionTool() ToolDefinition {
	return ToolDefinition{
		Name:        "get_version",
		Description: "Get the version and build information of the Osmose MCP service",
		Tool:        r.factory.CreateBasicTool("get_version", "Get the version and build information of the Osmose MCP service"),
		Handler:     WithParsedInput(r.logger, "get_version", handleGetVersion),
	}
}

func handleGetVersion(_ context.Context, _ struct{}, _ *slog.Logger) (interface{}, error) {
	info := version.Info()
	out := VersionInfo{
		Version:   info["version"],
		Commit:    info["commit"],
		BuildDate: info["build_date"],
		GoVersion: info["go_version"],
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				out.VCSRevision = setting.Value
			case "vcs.time":
				out.VCSTime = setting.Value
			default:
				if out.Settings == nil {
					out.Settings = make(map[string]string)
				}
				out.Settings[setting.Key] = setting.Value
			}
		}
	}

	return out, nil
}
