package description

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Tree is a generic XML element: child element local names are keys,
// repeated siblings collapse to []any of Tree, attributes are merged in
// as string values, and text content lives under "#text". Namespace
// prefixes are discarded; UPnP documents are matched by local name only.
type Tree map[string]any

// textKey is where an element's character data is stored.
const textKey = "#text"

// ParseXML parses a document into its generic tree form. The returned
// tree has one key: the root element's local name.
func ParseXML(data []byte) (Tree, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	// Devices emit all sorts of charset declarations; pass bytes through.
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	root := Tree{}
	stack := []Tree{root}
	var texts []*strings.Builder
	texts = append(texts, &strings.Builder{})

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xml parse error: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			element := Tree{}
			for _, attr := range t.Attr {
				if attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns" {
					continue
				}
				element[attr.Name.Local] = attr.Value
			}
			addChild(stack[len(stack)-1], t.Name.Local, element)
			stack = append(stack, element)
			texts = append(texts, &strings.Builder{})

		case xml.EndElement:
			if len(stack) < 2 {
				return nil, fmt.Errorf("xml parse error: unbalanced end element %s", t.Name.Local)
			}
			element := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			text := strings.TrimSpace(texts[len(texts)-1].String())
			texts = texts[:len(texts)-1]
			if text != "" {
				element[textKey] = text
			}

		case xml.CharData:
			texts[len(texts)-1].Write(t)
		}
	}

	if len(stack) != 1 {
		return nil, fmt.Errorf("xml parse error: unclosed elements")
	}
	if len(root) == 0 {
		return nil, fmt.Errorf("xml parse error: empty document")
	}
	return root, nil
}

// addChild inserts a child element, collapsing repeated siblings into a
// []any in document order.
func addChild(parent Tree, name string, child Tree) {
	switch existing := parent[name].(type) {
	case nil:
		parent[name] = child
	case Tree:
		parent[name] = []any{existing, child}
	case []any:
		parent[name] = append(existing, child)
	}
}

// Child returns the first child element with the given local name, or nil.
func (t Tree) Child(name string) Tree {
	switch v := t[name].(type) {
	case Tree:
		return v
	case []any:
		if len(v) > 0 {
			if first, ok := v[0].(Tree); ok {
				return first
			}
		}
	}
	return nil
}

// Children returns every child element with the given local name, in
// document order. A single child yields a one-element slice.
func (t Tree) Children(name string) []Tree {
	switch v := t[name].(type) {
	case Tree:
		return []Tree{v}
	case []any:
		out := make([]Tree, 0, len(v))
		for _, item := range v {
			if child, ok := item.(Tree); ok {
				out = append(out, child)
			}
		}
		return out
	}
	return nil
}

// Text returns the text content of the named child element, or "".
func (t Tree) Text(name string) string {
	child := t.Child(name)
	if child == nil {
		return ""
	}
	return child.OwnText()
}

// OwnText returns this element's text content, or "".
func (t Tree) OwnText() string {
	if s, ok := t[textKey].(string); ok {
		return s
	}
	return ""
}

// Attr returns the named attribute merged into this element, or "".
func (t Tree) Attr(name string) string {
	if s, ok := t[name].(string); ok {
		return s
	}
	return ""
}
