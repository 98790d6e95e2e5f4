// Package core provides shared utilities for the Osmose MCP tools.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmosemcp/pkg/osm"
)

// ErrorCode defines standard error codes for MCP tools
type ErrorCode string

// Standard error codes
const (
	// Input validation errors
	ErrInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrEmptyParameter    ErrorCode = "EMPTY_PARAMETER"
	ErrMissingParameter  ErrorCode = "MISSING_PARAMETER"
	ErrInvalidParameter  ErrorCode = "INVALID_PARAMETER"
	ErrInvalidFormat     ErrorCode = "INVALID_FORMAT"
	ErrInvalidElement    ErrorCode = "INVALID_ELEMENT_TYPE"
	ErrInvalidIdentifier ErrorCode = "INVALID_IDENTIFIER"

	// Service errors
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrServiceTimeout     ErrorCode = "SERVICE_TIMEOUT"
	ErrRateLimit          ErrorCode = "RATE_LIMIT"
	ErrNetworkError       ErrorCode = "NETWORK_ERROR"

	// Data errors
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrParseError    ErrorCode = "PARSE_ERROR"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// MCPError represents a detailed error structure for MCP tool responses
type MCPError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Query       string   `json:"query,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Guidance    string   `json:"guidance,omitempty"`
}

// Error implements the error interface
func (e MCPError) Error() string {
	if e.Guidance != "" {
		return fmt.Sprintf("%s: %s. %s", e.Code, e.Message, e.Guidance)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a new MCPError with the given code and message
func NewError(code ErrorCode, message string) *MCPError {
	return &MCPError{
		Code:    string(code),
		Message: message,
	}
}

// WithQuery adds the offending input to the error
func (e *MCPError) WithQuery(query string) *MCPError {
	e.Query = query
	return e
}

// WithGuidance adds guidance information to the error
func (e *MCPError) WithGuidance(guidance string) *MCPError {
	e.Guidance = guidance
	return e
}

// WithSuggestions adds suggestions to the error
func (e *MCPError) WithSuggestions(suggestions ...string) *MCPError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// ToMCPResult converts the error to an MCP tool result
func (e *MCPError) ToMCPResult() *mcp.CallToolResult {
	errorJSON, err := json.Marshal(e)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ERROR: %s - %s", e.Code, e.Message))
	}

	return mcp.NewToolResultError(string(errorJSON))
}

// ServiceError creates an error for remote service failures
func ServiceError(service string, statusCode int, message string) *MCPError {
	var code ErrorCode
	var guidance string

	switch statusCode {
	case http.StatusNotFound, http.StatusGone:
		code = ErrNotFound
		guidance = "The element does not exist or has been deleted."
	case http.StatusTooManyRequests:
		code = ErrRateLimit
		guidance = "The service is rate-limited. Please try again in a few moments."
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		code = ErrServiceTimeout
		guidance = "The request timed out. Please try again later."
	case http.StatusBadRequest:
		code = ErrInvalidInput
		guidance = "The request was invalid. Check your parameters and try again."
	case http.StatusInternalServerError:
		code = ErrInternalError
		guidance = "The server encountered an error. This is likely temporary, please try again later."
	default:
		code = ErrServiceUnavailable
		guidance = "The service is temporarily unavailable. Please try again later."
	}

	return NewError(code, fmt.Sprintf("%s service error: %s", service, message)).
		WithGuidance(guidance)
}

// FetchFailure describes why an element fetch produced nothing. It returns
// nil for errors that are not fetch failures.
func FetchFailure(err error) *MCPError {
	var fe *osm.FetchError
	if !errors.As(err, &fe) {
		return nil
	}

	switch fe.Kind {
	case osm.FailureStatus:
		return ServiceError("OSM API", fe.StatusCode, fe.Error())
	case osm.FailureTransport:
		return NewError(ErrNetworkError, fe.Error()).
			WithGuidance("Check connectivity to the OSM API and try again.")
	case osm.FailureParse:
		return NewError(ErrParseError, fe.Error()).
			WithGuidance("The API returned a document that is not OSM XML.")
	case osm.FailureEmpty:
		return NewError(ErrNotFound, fe.Error())
	default:
		return NewError(ErrInvalidInput, fe.Error())
	}
}

// NewValidationError creates an error for validation failures
func NewValidationError(code ErrorCode, message string) *MCPError {
	return NewError(code, message).
		WithGuidance("Please correct the parameters and try again.")
}
