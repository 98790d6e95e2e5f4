// Package osm fetches elements from the OpenStreetMap editing API.
package osm

import (
	"fmt"

	"github.com/NERVsystems/osmosemcp/pkg/osm/osmxml"
)

// ElementType is an OSM primitive type.
type ElementType string

const (
	Node     ElementType = "node"
	Way      ElementType = "way"
	Relation ElementType = "relation"
)

// ParseElementType validates s as an element type.
func ParseElementType(s string) (ElementType, error) {
	switch t := ElementType(s); t {
	case Node, Way, Relation:
		return t, nil
	}
	return "", fmt.Errorf("invalid element type %q (must be node, way or relation)", s)
}

// Kind maps the type to its XML element name.
func (t ElementType) Kind() osmxml.ElementKind {
	return osmxml.ElementKind(t)
}

// FailureKind classifies why a fetch failed.
type FailureKind string

const (
	FailureRequest   FailureKind = "request"   // the request could not be built
	FailureTransport FailureKind = "transport" // DNS, connection, TLS, context
	FailureStatus    FailureKind = "status"    // non-2xx response
	FailureParse     FailureKind = "parse"     // body is not OSM XML
	FailureEmpty     FailureKind = "empty"     // no element of the requested type
)

// FetchError describes a failed fetch.
type FetchError struct {
	Kind       FailureKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Kind == FailureStatus:
		return fmt.Sprintf("fetching %s: HTTP status %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetching %s: %s: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetching %s: %s", e.URL, e.Kind)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
