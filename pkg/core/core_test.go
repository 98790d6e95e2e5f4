package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmosemcp/pkg/osm"
)

func TestValidateElementRef(t *testing.T) {
	tests := []struct {
		name     string
		typeName string
		id       int64
		want     osm.ElementType
		wantCode ErrorCode
	}{
		{"node", "node", 1, osm.Node, ""},
		{"way", "way", 42, osm.Way, ""},
		{"relation", "relation", 7, osm.Relation, ""},
		{"missing type", "", 1, "", ErrMissingParameter},
		{"unknown type", "area", 1, "", ErrInvalidElement},
		{"zero id", "node", 0, "", ErrInvalidIdentifier},
		{"negative id", "way", -3, "", ErrInvalidIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateElementRef(tt.typeName, tt.id)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tt.want {
					t.Errorf("type = %q, want %q", got, tt.want)
				}
				return
			}

			var mcpErr *MCPError
			if !errors.As(err, &mcpErr) {
				t.Fatalf("error %v is not an *MCPError", err)
			}
			if mcpErr.Code != string(tt.wantCode) {
				t.Errorf("code = %s, want %s", mcpErr.Code, tt.wantCode)
			}
		})
	}
}

func TestValidateDate(t *testing.T) {
	got, err := ValidateDate("2020-05")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s := got.Format("2006-01-02"); s != "2020-05-01" {
		t.Errorf("date = %s, want 2020-05-01", s)
	}

	tests := []struct {
		input    string
		wantCode ErrorCode
	}{
		{"", ErrEmptyParameter},
		{"May 2020", ErrInvalidFormat},
		{"2020-13", ErrInvalidFormat},
	}
	for _, tt := range tests {
		_, err := ValidateDate(tt.input)
		var mcpErr *MCPError
		if !errors.As(err, &mcpErr) {
			t.Fatalf("ValidateDate(%q) error %v is not an *MCPError", tt.input, err)
		}
		if mcpErr.Code != string(tt.wantCode) {
			t.Errorf("ValidateDate(%q) code = %s, want %s", tt.input, mcpErr.Code, tt.wantCode)
		}
	}
}

func TestFetchFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"gone", &osm.FetchError{Kind: osm.FailureStatus, StatusCode: http.StatusGone}, ErrNotFound},
		{"server error", &osm.FetchError{Kind: osm.FailureStatus, StatusCode: http.StatusInternalServerError}, ErrInternalError},
		{"rate limited", &osm.FetchError{Kind: osm.FailureStatus, StatusCode: http.StatusTooManyRequests}, ErrRateLimit},
		{"transport", &osm.FetchError{Kind: osm.FailureTransport, Err: errors.New("dial tcp")}, ErrNetworkError},
		{"parse", &osm.FetchError{Kind: osm.FailureParse, Err: errors.New("bad xml")}, ErrParseError},
		{"empty", &osm.FetchError{Kind: osm.FailureEmpty}, ErrNotFound},
		{"wrapped", fmt.Errorf("outer: %w", &osm.FetchError{Kind: osm.FailureEmpty}), ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FetchFailure(tt.err)
			if got == nil {
				t.Fatal("FetchFailure returned nil")
			}
			if got.Code != string(tt.want) {
				t.Errorf("code = %s, want %s", got.Code, tt.want)
			}
		})
	}

	if FetchFailure(errors.New("other")) != nil {
		t.Error("FetchFailure should ignore non-fetch errors")
	}
}

func TestToMCPResult(t *testing.T) {
	result := NewError(ErrInvalidFormat, "bad date").
		WithQuery("May 2020").
		WithSuggestions("2006-01-02").
		ToMCPResult()

	if !result.IsError {
		t.Fatal("result should be an error")
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want mcp.TextContent", result.Content[0])
	}

	var decoded MCPError
	if err := json.Unmarshal([]byte(text.Text), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Code != "INVALID_FORMAT" || decoded.Query != "May 2020" || len(decoded.Suggestions) != 1 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestMCPErrorString(t *testing.T) {
	err := NewError(ErrNotFound, "missing")
	if got := err.Error(); got != "NOT_FOUND: missing" {
		t.Errorf("Error() = %q", got)
	}
	err.WithGuidance("Try again.")
	if got := err.Error(); got != "NOT_FOUND: missing. Try again." {
		t.Errorf("Error() = %q", got)
	}
}

func TestToolFactory(t *testing.T) {
	f := NewToolFactory()

	elem := f.CreateElementTool("fetch_osm_element", "Fetch", mcp.WithBoolean("full"))
	if elem.Name != "fetch_osm_element" {
		t.Errorf("Name = %q", elem.Name)
	}
	for _, prop := range []string{"type", "id", "full"} {
		if _, ok := elem.InputSchema.Properties[prop]; !ok {
			t.Errorf("element tool missing property %q", prop)
		}
	}
	if len(elem.InputSchema.Required) != 2 {
		t.Errorf("Required = %v, want type and id", elem.InputSchema.Required)
	}

	lang := f.CreateLanguageTool("select_ui_language", "Select")
	for _, prop := range []string{"languages", "accept_language"} {
		if _, ok := lang.InputSchema.Properties[prop]; !ok {
			t.Errorf("language tool missing property %q", prop)
		}
	}
}
