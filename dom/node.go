// Package dom wraps parsed HTML in a small node type so extraction code
// depends on selection, traversal and text helpers rather than on a DOM
// library's object model.
package dom

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Node is a handle to one element (or the document root) of a parsed tree.
// Two handles are equal exactly when they refer to the same parsed node, so
// Node can be used as a map key for identity de-duplication.
type Node struct {
	n *html.Node
}

// Parse reads an HTML document and returns its root node.
func Parse(r io.Reader) (Node, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Node{}, err
	}
	return FromSelection(doc.Selection), nil
}

// ParseString parses an in-memory HTML document.
func ParseString(s string) (Node, error) {
	return Parse(strings.NewReader(s))
}

// FromSelection wraps the first node of a goquery selection, which is what
// colly hands out as HTMLElement.DOM.
func FromSelection(sel *goquery.Selection) Node {
	if sel == nil || len(sel.Nodes) == 0 {
		return Node{}
	}
	return Node{n: sel.Nodes[0]}
}

// IsZero reports whether the handle points at nothing. Lookups that find no
// match return the zero Node.
func (x Node) IsZero() bool {
	return x.n == nil
}

// Tag returns the lower-case element name, or "" for non-elements.
func (x Node) Tag() string {
	if x.n == nil || x.n.Type != html.ElementNode {
		return ""
	}
	return x.n.Data
}

// Attr returns the value of an attribute.
func (x Node) Attr(key string) (string, bool) {
	if x.n == nil {
		return "", false
	}
	for _, a := range x.n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// ClassString returns the class attribute with its tokens joined by single
// spaces.
func (x Node) ClassString() string {
	class, _ := x.Attr("class")
	return strings.Join(strings.Fields(class), " ")
}

// HasClass reports whether the class attribute carries the given token.
func (x Node) HasClass(class string) bool {
	attr, _ := x.Attr("class")
	for _, token := range strings.Fields(attr) {
		if token == class {
			return true
		}
	}
	return false
}

// Text returns the node's descendant text. Each text fragment is trimmed,
// empty fragments are dropped, and the rest are joined by a single space.
func (x Node) Text() string {
	if x.n == nil {
		return ""
	}
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(x.n)
	return strings.Join(parts, " ")
}

func (x Node) selection() *goquery.Selection {
	return goquery.NewDocumentFromNode(x.n).Selection
}

// Find returns the descendants matching a CSS selector in document order.
func (x Node) Find(selector string) []Node {
	if x.n == nil {
		return nil
	}
	return wrap(x.selection().Find(selector))
}

// FindMatcher is Find with a precompiled matcher.
func (x Node) FindMatcher(m goquery.Matcher) []Node {
	if x.n == nil {
		return nil
	}
	return wrap(x.selection().FindMatcher(m))
}

// First returns the first descendant matching selector, or the zero Node.
func (x Node) First(selector string) Node {
	if x.n == nil {
		return Node{}
	}
	return FromSelection(x.selection().Find(selector).First())
}

// FirstMatcher is First with a precompiled matcher.
func (x Node) FirstMatcher(m goquery.Matcher) Node {
	if x.n == nil {
		return Node{}
	}
	return FromSelection(x.selection().FindMatcher(m).First())
}

// Closest returns the nearest proper ancestor with the given tag.
func (x Node) Closest(tag string) Node {
	if x.n == nil {
		return Node{}
	}
	for p := x.n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == tag {
			return Node{n: p}
		}
	}
	return Node{}
}

// NextElementSibling skips text and comment siblings.
func (x Node) NextElementSibling() Node {
	if x.n == nil {
		return Node{}
	}
	for s := x.n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return Node{n: s}
		}
	}
	return Node{}
}

// FindNext walks the elements that follow x in document order, starting with
// x's own descendants, and returns the first one accepted by match. The walk
// never leaves the subtree rooted at within; a zero within means the whole
// document.
func (x Node) FindNext(within Node, match func(Node) bool) Node {
	if x.n == nil {
		return Node{}
	}
	for n := following(x.n, within.n); n != nil; n = following(n, within.n) {
		if n.Type != html.ElementNode {
			continue
		}
		if candidate := (Node{n: n}); match(candidate) {
			return candidate
		}
	}
	return Node{}
}

// Contains reports whether other lies inside x's subtree (x included).
func (x Node) Contains(other Node) bool {
	if x.n == nil || other.n == nil {
		return false
	}
	for n := other.n; n != nil; n = n.Parent {
		if n == x.n {
			return true
		}
	}
	return false
}

// following returns the pre-order successor of n, bounded by root.
func following(n, root *html.Node) *html.Node {
	if n.FirstChild != nil {
		return n.FirstChild
	}
	for ; n != nil && n != root; n = n.Parent {
		if n.NextSibling != nil {
			return n.NextSibling
		}
	}
	return nil
}

// IsTag returns a FindNext predicate accepting elements with the given tag.
func IsTag(tag string) func(Node) bool {
	return func(n Node) bool {
		return n.Tag() == tag
	}
}

func wrap(sel *goquery.Selection) []Node {
	if sel == nil || len(sel.Nodes) == 0 {
		return nil
	}
	out := make([]Node, len(sel.Nodes))
	for i, n := range sel.Nodes {
		out[i] = Node{n: n}
	}
	return out
}
