// Package osmxml reads OSM XML documents (API 0.6) as a stream of element
// events and collects them into plain attribute maps.
package osmxml

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmxml"
)

// Handler receives the events produced by Read. Child callbacks (Tag,
// NodeRef, Member) always arrive between the StartElement and EndElement of
// their parent.
type Handler interface {
	StartElement(kind ElementKind, attrs map[string]string) error
	Tag(key, value string) error
	NodeRef(ref int64) error
	Member(m Member) error
	EndElement(kind ElementKind) error
}

// ElementKind is the name of a top-level OSM element.
type ElementKind string

const (
	KindNode      ElementKind = "node"
	KindWay       ElementKind = "way"
	KindRelation  ElementKind = "relation"
	KindChangeset ElementKind = "changeset"
)

// Member is a relation member.
type Member struct {
	Type string `json:"type"`
	Ref  int64  `json:"ref"`
	Role string `json:"role"`
}

// ErrNoRoot is returned when the document has no <osm> root element.
var ErrNoRoot = errors.New("osmxml: missing <osm> root element")

// Read streams r and reports each node, way, relation and changeset to h.
// Other top-level elements (<bounds>, <note>, <user>) are ignored.
func Read(ctx context.Context, r io.Reader, h Handler) error {
	root := &rootSniffer{r: r}
	scanner := osmxml.New(ctx, root)
	defer scanner.Close()

	for scanner.Scan() {
		if err := emit(scanner.Object(), h); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("osmxml: %w", err)
	}
	if !root.seen {
		return ErrNoRoot
	}
	return nil
}

func emit(obj osm.Object, h Handler) error {
	switch o := obj.(type) {
	case *osm.Node:
		attrs := common(int64(o.ID), o.Version, int64(o.ChangesetID), o.User, int64(o.UserID), o.Visible, o.Timestamp)
		attrs["lat"] = formatFloat(o.Lat)
		attrs["lon"] = formatFloat(o.Lon)
		return element(KindNode, attrs, o.Tags, h, nil)

	case *osm.Way:
		attrs := common(int64(o.ID), o.Version, int64(o.ChangesetID), o.User, int64(o.UserID), o.Visible, o.Timestamp)
		return element(KindWay, attrs, o.Tags, h, func() error {
			for _, n := range o.Nodes {
				if err := h.NodeRef(int64(n.ID)); err != nil {
					return err
				}
			}
			return nil
		})

	case *osm.Relation:
		attrs := common(int64(o.ID), o.Version, int64(o.ChangesetID), o.User, int64(o.UserID), o.Visible, o.Timestamp)
		return element(KindRelation, attrs, o.Tags, h, func() error {
			for _, m := range o.Members {
				if err := h.Member(Member{Type: string(m.Type), Ref: m.Ref, Role: m.Role}); err != nil {
					return err
				}
			}
			return nil
		})

	case *osm.Changeset:
		attrs := map[string]string{
			"id":   strconv.FormatInt(int64(o.ID), 10),
			"open": strconv.FormatBool(o.Open),
		}
		setString(attrs, "user", o.User)
		setInt(attrs, "uid", int64(o.UserID))
		setTime(attrs, "created_at", o.CreatedAt)
		setTime(attrs, "closed_at", o.ClosedAt)
		setInt(attrs, "changes_count", int64(o.ChangesCount))
		setInt(attrs, "comments_count", int64(o.CommentsCount))
		if o.MinLat != 0 || o.MaxLat != 0 || o.MinLon != 0 || o.MaxLon != 0 {
			attrs["min_lat"] = formatFloat(o.MinLat)
			attrs["min_lon"] = formatFloat(o.MinLon)
			attrs["max_lat"] = formatFloat(o.MaxLat)
			attrs["max_lon"] = formatFloat(o.MaxLon)
		}
		return element(KindChangeset, attrs, o.Tags, h, nil)
	}
	return nil
}

// element reports start, children, tags and end in that order.
func element(kind ElementKind, attrs map[string]string, tags osm.Tags, h Handler, children func() error) error {
	if err := h.StartElement(kind, attrs); err != nil {
		return err
	}
	if children != nil {
		if err := children(); err != nil {
			return err
		}
	}
	for _, t := range tags {
		if err := h.Tag(t.Key, t.Value); err != nil {
			return err
		}
	}
	return h.EndElement(kind)
}

func common(id int64, version int, changeset int64, user string, uid int64, visible bool, ts time.Time) map[string]string {
	attrs := map[string]string{
		"id":      strconv.FormatInt(id, 10),
		"visible": strconv.FormatBool(visible),
	}
	setInt(attrs, "version", int64(version))
	setInt(attrs, "changeset", changeset)
	setString(attrs, "user", user)
	setInt(attrs, "uid", uid)
	setTime(attrs, "timestamp", ts)
	return attrs
}

func setString(attrs map[string]string, key, v string) {
	if v != "" {
		attrs[key] = v
	}
}

func setInt(attrs map[string]string, key string, v int64) {
	if v != 0 {
		attrs[key] = strconv.FormatInt(v, 10)
	}
}

func setTime(attrs map[string]string, key string, t time.Time) {
	if !t.IsZero() {
		attrs[key] = t.UTC().Format(time.RFC3339)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var rootTag = []byte("<osm")

// rootSniffer passes bytes through and records whether an <osm> or
// <osmChange> start tag went by. The scanner silently skips documents
// without one, such as HTML error pages.
type rootSniffer struct {
	r    io.Reader
	seen bool
	tail []byte
}

func (s *rootSniffer) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if !s.seen && n > 0 {
		buf := append(s.tail, p[:n]...)
		s.seen = bytes.Contains(buf, rootTag)
		if keep := len(rootTag) - 1; len(buf) > keep {
			buf = buf[len(buf)-keep:]
		}
		s.tail = append([]byte(nil), buf...)
	}
	return n, err
}
