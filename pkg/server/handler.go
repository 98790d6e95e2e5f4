package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmosemcp/pkg/tools"
)

// Handler serves the tools as plain HTTP GET endpoints for the frontend:
//
//	GET /api/languages
//	GET /api/ui-language[?lang=pt-BR&lang=fr]   (Accept-Language when no lang)
//	GET /api/date?date=2020-05
//	GET /api/element/{type}/{id}[?full=true]
type Handler struct {
	logger   *slog.Logger
	handlers map[string]tools.ToolHandler
	mux      *http.ServeMux
}

// NewHandler creates a handler dispatching to the tools of registry.
func NewHandler(logger *slog.Logger, registry *tools.Registry) *Handler {
	h := &Handler{
		logger:   logger,
		handlers: make(map[string]tools.ToolHandler),
		mux:      http.NewServeMux(),
	}
	for _, name := range registry.GetToolNames() {
		if handler, ok := registry.Handler(name); ok {
			h.handlers[name] = handler
		}
	}

	h.mux.HandleFunc("GET /api/languages", h.handleLanguages)
	h.mux.HandleFunc("GET /api/ui-language", h.handleUILanguage)
	h.mux.HandleFunc("GET /api/date", h.handleDate)
	h.mux.HandleFunc("GET /api/element/{type}/{id}", h.handleElement)
	return h
}

// ServeHTTP implements the http.Handler interface
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleLanguages(w http.ResponseWriter, r *http.Request) {
	h.callTool(w, r, "list_languages", map[string]any{})
}

func (h *Handler) handleUILanguage(w http.ResponseWriter, r *http.Request) {
	args := map[string]any{}
	if langs := r.URL.Query()["lang"]; len(langs) > 0 {
		args["languages"] = langs
	} else if header := r.Header.Get("Accept-Language"); header != "" {
		args["accept_language"] = header
	}
	h.callTool(w, r, "select_ui_language", args)
}

func (h *Handler) handleDate(w http.ResponseWriter, r *http.Request) {
	h.callTool(w, r, "parse_date", map[string]any{"date": r.URL.Query().Get("date")})
}

func (h *Handler) handleElement(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid element id", http.StatusBadRequest)
		return
	}
	full, _ := strconv.ParseBool(r.URL.Query().Get("full"))

	h.callTool(w, r, "fetch_osm_element", map[string]any{
		"type": r.PathValue("type"),
		"id":   id,
		"full": full,
	})
}

// callTool runs a tool and writes its JSON text content. Tool errors become
// 400 responses.
func (h *Handler) callTool(w http.ResponseWriter, r *http.Request, name string, args map[string]any) {
	start := time.Now()
	handler, ok := h.handlers[name]
	if !ok {
		http.Error(w, "tool not available", http.StatusNotFound)
		return
	}

	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}

	result, err := handler(r.Context(), req)
	if err != nil {
		h.logger.Error("tool call failed", "tool", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var content string
	for _, c := range result.Content {
		if text, ok := c.(mcp.TextContent); ok {
			content = text.Text
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	status := http.StatusOK
	if result.IsError {
		status = http.StatusBadRequest
	}
	w.WriteHeader(status)

	if _, err := w.Write([]byte(content)); err != nil {
		h.logger.Error("failed to write response", "tool", name, "error", err)
		return
	}

	h.logger.Debug("api request served",
		"tool", name,
		"status", status,
		"duration", time.Since(start))
}
