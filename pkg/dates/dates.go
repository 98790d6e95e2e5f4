// Package dates parses the partial dates accepted by the issue filters.
package dates

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidFormat is returned when a string matches none of the layouts.
var ErrInvalidFormat = errors.New("invalid date format")

// Layouts are tried in order, most specific first. Month and day take one
// or two digits.
var Layouts = []string{
	"2006-1-2",
	"2006-1",
	"2006",
}

// Parse parses s as a full date, a year and month, or a year alone.
// Missing month and day default to 1. The result is in UTC.
func Parse(s string) (time.Time, error) {
	for _, layout := range Layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
}
