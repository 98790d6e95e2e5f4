package core

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/NERVsystems/osmosemcp/pkg/dates"
	"github.com/NERVsystems/osmosemcp/pkg/osm"
)

// ValidateElementRef checks an element type name and identifier.
func ValidateElementRef(typeName string, id int64) (osm.ElementType, error) {
	if strings.TrimSpace(typeName) == "" {
		return "", NewValidationError(ErrMissingParameter, "type is required").
			WithSuggestions(string(osm.Node), string(osm.Way), string(osm.Relation))
	}
	t, err := osm.ParseElementType(typeName)
	if err != nil {
		return "", NewValidationError(ErrInvalidElement, fmt.Sprintf("unknown element type %q", typeName)).
			WithQuery(typeName).
			WithSuggestions(string(osm.Node), string(osm.Way), string(osm.Relation))
	}
	if id <= 0 {
		return "", NewValidationError(ErrInvalidIdentifier, fmt.Sprintf("element id must be positive, got %d", id))
	}
	return t, nil
}

// ValidateDate parses a date argument, reporting the accepted layouts on
// failure.
func ValidateDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, NewValidationError(ErrEmptyParameter, "date must not be empty").
			WithSuggestions(dates.Layouts...)
	}
	t, err := dates.Parse(s)
	if err != nil {
		return time.Time{}, NewError(ErrInvalidFormat, err.Error()).
			WithQuery(s).
			WithGuidance("Use YYYY-MM-DD, YYYY-MM or YYYY.").
			WithSuggestions(dates.Layouts...)
	}
	return t, nil
}

// ValidateElementRefWithLog validates an element reference and logs failures.
func ValidateElementRefWithLog(logger *slog.Logger, typeName string, id int64) (osm.ElementType, error) {
	t, err := ValidateElementRef(typeName, id)
	if err != nil {
		logger.Error("invalid element reference", "type", typeName, "id", id, "error", err)
	}
	return t, err
}
