package tools

import (
	"context"
	"log/slog"

	"github.com/NERVsystems/osmosemcp/pkg/config"
)

// FrontendConfigOutput is the result of get_frontend_config. The database
// password is masked in every field.
type FrontendConfigOutput struct {
	Config     config.Config `json:"config"`
	KeywordDSN string        `json:"keyword_dsn"`
	URIDSN     string        `json:"uri_dsn"`
}

func (r *Registry) frontendConfigTool() ToolDefinition {
	desc := "Show the Osmose frontend deployment configuration: database parameters, site URL and OSM endpoints. The password is masked."
	return ToolDefinition{
		Name:        "get_frontend_config",
		Description: desc,
		Tool:        r.factory.CreateBasicTool("get_frontend_config", desc),
		Handler:     WithParsedInput(r.logger, "get_frontend_config", r.handleFrontendConfig),
	}
}

func (r *Registry) handleFrontendConfig(_ context.Context, _ struct{}, _ *slog.Logger) (interface{}, error) {
	red := r.deps.Config.Redacted()
	return FrontendConfigOutput{
		Config:     red,
		KeywordDSN: red.KeywordDSN(),
		URIDSN:     red.URIDSN(),
	}, nil
}
