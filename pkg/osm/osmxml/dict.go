package osmxml

import (
	"context"
	"io"
	"strconv"
)

// Element is one node, way or relation: its XML attributes plus children.
type Element struct {
	Attrs   map[string]string `json:"attrs"`
	Tags    map[string]string `json:"tag"`
	Nodes   []int64           `json:"nd,omitempty"`
	Members []Member          `json:"member,omitempty"`
}

// ID returns the element id, 0 if absent or malformed.
func (e *Element) ID() int64 {
	id, _ := strconv.ParseInt(e.Attrs["id"], 10, 64)
	return id
}

// Data groups decoded elements by kind in document order.
type Data map[ElementKind][]*Element

// First returns the first element of kind, nil if there is none.
func (d Data) First(kind ElementKind) *Element {
	if elems := d[kind]; len(elems) > 0 {
		return elems[0]
	}
	return nil
}

// Len returns the number of elements across all kinds.
func (d Data) Len() int {
	n := 0
	for _, elems := range d {
		n += len(elems)
	}
	return n
}

// DictWriter is a Handler that collects elements into Data.
type DictWriter struct {
	Data    Data
	current *Element
}

// NewDictWriter returns an empty writer.
func NewDictWriter() *DictWriter {
	return &DictWriter{Data: make(Data)}
}

func (w *DictWriter) StartElement(kind ElementKind, attrs map[string]string) error {
	w.current = &Element{
		Attrs: attrs,
		Tags:  make(map[string]string),
	}
	return nil
}

func (w *DictWriter) Tag(key, value string) error {
	if w.current != nil {
		w.current.Tags[key] = value
	}
	return nil
}

func (w *DictWriter) NodeRef(ref int64) error {
	if w.current != nil {
		w.current.Nodes = append(w.current.Nodes, ref)
	}
	return nil
}

func (w *DictWriter) Member(m Member) error {
	if w.current != nil {
		w.current.Members = append(w.current.Members, m)
	}
	return nil
}

func (w *DictWriter) EndElement(kind ElementKind) error {
	if w.current != nil {
		w.Data[kind] = append(w.Data[kind], w.current)
		w.current = nil
	}
	return nil
}

// Decode reads a whole document into Data.
func Decode(ctx context.Context, r io.Reader) (Data, error) {
	w := NewDictWriter()
	if err := Read(ctx, r, w); err != nil {
		return nil, err
	}
	return w.Data, nil
}
