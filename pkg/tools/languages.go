package tools

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/NERVsystems/osmosemcp/pkg/i18n"
	"github.com/NERVsystems/osmosemcp/pkg/languages"
	"github.com/NERVsystems/osmosemcp/pkg/monitoring"
	"github.com/NERVsystems/osmosemcp/pkg/tracing"
)

// LanguagePreferences is the input shared by the negotiation tools.
// A missing languages list is distinct from an empty one.
type LanguagePreferences struct {
	Languages      []string `json:"languages"`
	AcceptLanguage string   `json:"accept_language"`
}

// preferred returns the ordered preference list, nil when the client gave
// neither a list nor a header.
func (p LanguagePreferences) preferred() []string {
	if p.Languages != nil {
		return p.Languages
	}
	if p.AcceptLanguage != "" {
		langs := i18n.ParseAcceptLanguage(p.AcceptLanguage)
		if langs == nil {
			langs = []string{}
		}
		return langs
	}
	return nil
}

// LanguageListOutput is the result of list_languages.
type LanguageListOutput struct {
	Languages []languages.Entry `json:"languages"`
	Count     int               `json:"count"`
}

func (r *Registry) listLanguagesTool() ToolDefinition {
	return ToolDefinition{
		Name:        "list_languages",
		Description: "List the interface languages supported by the Osmose frontend with their display name and text direction",
		Tool:        r.factory.CreateBasicTool("list_languages", "List the interface languages supported by the Osmose frontend with their display name and text direction"),
		Handler:     WithParsedInput(r.logger, "list_languages", r.handleListLanguages),
	}
}

func (r *Registry) handleListLanguages(_ context.Context, _ struct{}, _ *slog.Logger) (interface{}, error) {
	entries := r.deps.Languages.Entries()
	return LanguageListOutput{Languages: entries, Count: len(entries)}, nil
}

// SelectTranslationInput is the input of select_translation.
type SelectTranslationInput struct {
	Translations i18n.Translations `json:"translations"`
	LanguagePreferences
}

// SelectTranslationOutput is the result of select_translation. Translations
// is null when there was nothing to select from.
type SelectTranslationOutput struct {
	Translations i18n.Translations `json:"translations"`
	Text         string            `json:"text,omitempty"`
	Negotiated   bool              `json:"negotiated"`
}

func (r *Registry) selectTranslationTool() ToolDefinition {
	desc := "Pick the best translation of a message for a client's preferred languages. " +
		"Without preferences the translations are returned unchanged; otherwise the result holds a single \"auto\" entry."
	return ToolDefinition{
		Name:        "select_translation",
		Description: desc,
		Tool: r.factory.CreateLanguageTool("select_translation", desc,
			mcp.WithObject("translations",
				mcp.Required(),
				mcp.Description("Map of language code to translated text, for example {\"en\": \"Hello\", \"fr\": \"Bonjour\"}"),
			),
		),
		Handler: WithParsedInput(r.logger, "select_translation", r.handleSelectTranslation),
	}
}

func (r *Registry) handleSelectTranslation(_ context.Context, input SelectTranslationInput, logger *slog.Logger) (interface{}, error) {
	langs := input.preferred()
	selected := r.deps.Negotiator.Select(input.Translations, langs)

	out := SelectTranslationOutput{Translations: selected}
	switch {
	case selected == nil:
		monitoring.RecordTranslationSelection("empty")
	case langs == nil:
		monitoring.RecordTranslationSelection("passthrough")
	default:
		out.Negotiated = true
		out.Text = selected[i18n.AutoKey]
		monitoring.RecordTranslationSelection("negotiated")
	}

	logger.Debug("translation selected", "preferences", langs, "negotiated", out.Negotiated)
	return out, nil
}

// UILanguageOutput is the result of select_ui_language.
type UILanguageOutput struct {
	Language  string              `json:"language"`
	Name      string              `json:"name"`
	Direction languages.Direction `json:"direction"`
}

func (r *Registry) selectUILanguageTool() ToolDefinition {
	desc := "Choose the interface language for a client from its preferred languages or Accept-Language header. " +
		"Exact matches win over primary subtag matches; English is the default."
	return ToolDefinition{
		Name:        "select_ui_language",
		Description: desc,
		Tool:        r.factory.CreateLanguageTool("select_ui_language", desc),
		Handler:     WithParsedInput(r.logger, "select_ui_language", r.handleSelectUILanguage),
	}
}

func (r *Registry) handleSelectUILanguage(ctx context.Context, input LanguagePreferences, _ *slog.Logger) (interface{}, error) {
	var code string
	if input.Languages == nil && input.AcceptLanguage != "" {
		code = r.deps.Negotiator.UILanguageForHeader(input.AcceptLanguage)
	} else {
		// no preferences at all yield the default UI language
		code = r.deps.Negotiator.BestUILanguage(input.Languages)
	}

	monitoring.RecordUILanguage(code)
	tracing.SetAttributes(ctx, attribute.String(tracing.AttrI18nLanguage, code))

	reg := r.deps.Languages
	name, _ := reg.Name(code)
	return UILanguageOutput{
		Language:  code,
		Name:      name,
		Direction: reg.Direction(code),
	}, nil
}
