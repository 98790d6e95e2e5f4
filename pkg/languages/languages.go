// Package languages provides the table of user interface languages supported
// by the Osmose frontend.
package languages

import (
	"errors"
	"fmt"
)

// Direction is the writing direction of a language.
type Direction string

const (
	LTR Direction = "ltr"
	RTL Direction = "rtl"
)

// ErrDuplicateCode is returned by New when two entries share a code.
var ErrDuplicateCode = errors.New("duplicate language code")

// Entry describes one supported language.
type Entry struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`      // display label, usually in native script
	Direction Direction `json:"direction"` // empty means LTR
}

// Registry is an immutable, ordered set of languages.
// It is safe for concurrent use.
type Registry struct {
	entries []Entry
	index   map[string]int
}

// New builds a registry from entries, preserving their order.
// Entries without a direction are treated as left-to-right.
func New(entries ...Entry) (*Registry, error) {
	r := &Registry{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if _, ok := r.index[e.Code]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, e.Code)
		}
		if e.Direction == "" {
			e.Direction = LTR
		}
		r.index[e.Code] = len(r.entries)
		r.entries = append(r.entries, e)
	}
	return r, nil
}

// Allowed returns the ordered language codes.
func (r *Registry) Allowed() []string {
	codes := make([]string, len(r.entries))
	for i, e := range r.entries {
		codes[i] = e.Code
	}
	return codes
}

// Entries returns a copy of the ordered entries.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of languages.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Has reports whether code is a registered language.
func (r *Registry) Has(code string) bool {
	_, ok := r.index[code]
	return ok
}

// Lookup returns the entry for code.
func (r *Registry) Lookup(code string) (Entry, bool) {
	i, ok := r.index[code]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Name returns the display name for code.
func (r *Registry) Name(code string) (string, bool) {
	e, ok := r.Lookup(code)
	return e.Name, ok
}

// Direction returns the writing direction for code, LTR when unknown.
func (r *Registry) Direction(code string) Direction {
	if e, ok := r.Lookup(code); ok {
		return e.Direction
	}
	return LTR
}

// Position returns the index of code in registry order.
func (r *Registry) Position(code string) (int, bool) {
	i, ok := r.index[code]
	return i, ok
}
