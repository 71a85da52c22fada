package transform

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// Node is a read-only XML element tree given to templates as .Source.
// Every method is safe on a nil *Node and returns a zero value.
type Node struct {
	Name     string
	Attrs    map[string]string
	Children []*Node
	text     strings.Builder
}

// ParseNode reads the root element of an XML document.
func ParseNode(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var stack []*Node
	var root *Node

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name.Local}
			if len(t.Attr) > 0 {
				n.Attrs = make(map[string]string, len(t.Attr))
				for _, a := range t.Attr {
					n.Attrs[a.Name.Local] = a.Value
				}
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			// text content of an element includes that of its descendants
			for _, open := range stack {
				open.text.Write(t)
			}
		}
	}
	if root == nil {
		return nil, errors.New("no root element")
	}
	return root, nil
}

// Find returns the first element at a slash-separated path of child names
// below n. An empty path returns n.
func (n *Node) Find(path string) *Node {
	all := n.FindAll(path)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// FindAll returns every element at path, in document order.
func (n *Node) FindAll(path string) []*Node {
	if n == nil {
		return nil
	}
	current := []*Node{n}
	for _, step := range strings.Split(strings.Trim(path, "/"), "/") {
		if step == "" {
			continue
		}
		var next []*Node
		for _, c := range current {
			for _, child := range c.Children {
				if step == "*" || child.Name == step {
					next = append(next, child)
				}
			}
		}
		current = next
	}
	return current
}

// Text returns the trimmed text content of the element at path,
// including text of its descendants.
func (n *Node) Text(path string) string {
	found := n.Find(path)
	if found == nil {
		return ""
	}
	return strings.TrimSpace(found.text.String())
}

// Attr returns the value of an attribute of n.
func (n *Node) Attr(name string) string {
	if n == nil {
		return ""
	}
	return n.Attrs[name]
}
