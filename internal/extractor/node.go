package extractor

import (
	"encoding/xml"
	"strings"
)

// node is a generic element tree decoded from one top-level document element.
type node struct {
	XMLName xml.Name
	Text    string `xml:",chardata"`
	Nodes   []node `xml:",any"`
}

// child returns the first direct child with the given local name.
func (n *node) child(name string) *node {
	if n == nil {
		return nil
	}
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Local == name {
			return &n.Nodes[i]
		}
	}
	return nil
}

// find returns the first descendant with the given local name in document order.
func (n *node) find(name string) *node {
	if n == nil {
		return nil
	}
	for i := range n.Nodes {
		c := &n.Nodes[i]
		if c.XMLName.Local == name {
			return c
		}
		if found := c.find(name); found != nil {
			return found
		}
	}
	return nil
}

// findAll returns every descendant with the given local name in document order.
// Matches are not searched for nested matches of the same name.
func (n *node) findAll(name string) []*node {
	if n == nil {
		return nil
	}
	var out []*node
	for i := range n.Nodes {
		c := &n.Nodes[i]
		if c.XMLName.Local == name {
			out = append(out, c)
			continue
		}
		out = append(out, c.findAll(name)...)
	}
	return out
}

// get returns the trimmed text of a direct child, falling back to the first
// descendant of that name. Missing elements yield "".
func (n *node) get(name string) string {
	if c := n.child(name); c != nil {
		return strings.TrimSpace(c.Text)
	}
	if c := n.find(name); c != nil {
		return strings.TrimSpace(c.Text)
	}
	return ""
}

// path follows a chain of descendant lookups and returns the final text.
func (n *node) path(names ...string) string {
	cur := n
	for _, name := range names[:len(names)-1] {
		cur = cur.find(name)
		if cur == nil {
			return ""
		}
	}
	return cur.get(names[len(names)-1])
}
