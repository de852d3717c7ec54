package dom

import (
	"testing"
)

const fixture = `<html><body>
<div id="outer" class="card  bg-white">
  <h2><a href="/restaurant/a">Alpha <b>Haus</b></a></h2>
  <!-- note -->
  <p class="x">first</p>
  <span>between</span>
  <div class="box"><span class="inner">deep</span></div>
</div>
<div id="after"><p>outside</p></div>
</body></html>`

func mustParse(t *testing.T, s string) Node {
	t.Helper()
	doc, err := ParseString(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestNodeTextJoinsTrimmedFragments(t *testing.T) {
	doc := mustParse(t, fixture)
	link := doc.First("h2 a")
	if got := link.Text(); got != "Alpha Haus" {
		t.Fatalf("text = %q, want %q", got, "Alpha Haus")
	}
}

func TestNodeClassHelpers(t *testing.T) {
	doc := mustParse(t, fixture)
	outer := doc.First("#outer")
	if got := outer.ClassString(); got != "card bg-white" {
		t.Fatalf("class string = %q", got)
	}
	if !outer.HasClass("bg-white") || outer.HasClass("bg") {
		t.Fatalf("HasClass mismatch for %q", outer.ClassString())
	}
}

func TestNodeIdentity(t *testing.T) {
	doc := mustParse(t, fixture)
	a := doc.First("#outer")
	b := doc.Find("div")[0]
	if a != b {
		t.Fatalf("expected handles to the same node to be equal")
	}
	seen := map[Node]struct{}{a: {}}
	if _, ok := seen[b]; !ok {
		t.Fatalf("expected identity lookup to hit")
	}
	if a == doc.First("#after") {
		t.Fatalf("distinct nodes compared equal")
	}
}

func TestNodeClosestAndSiblings(t *testing.T) {
	doc := mustParse(t, fixture)
	link := doc.First("h2 a")
	if got := link.Closest("div"); got != doc.First("#outer") {
		t.Fatalf("closest div mismatch")
	}
	h2 := doc.First("h2")
	next := h2.NextElementSibling()
	if next.Tag() != "p" || next.Text() != "first" {
		t.Fatalf("next sibling = %s %q", next.Tag(), next.Text())
	}
	if !doc.First("#after").NextElementSibling().IsZero() {
		t.Fatalf("expected no sibling after last div")
	}
}

func TestNodeFindNextIsBounded(t *testing.T) {
	doc := mustParse(t, fixture)
	outer := doc.First("#outer")
	span := doc.First("#outer > span")

	inner := span.FindNext(outer, func(n Node) bool { return n.HasClass("inner") })
	if inner.Text() != "deep" {
		t.Fatalf("expected inner span, got %q", inner.Text())
	}

	p := span.FindNext(outer, IsTag("p"))
	if !p.IsZero() {
		t.Fatalf("walk escaped the bounding subtree: %q", p.Text())
	}
	p = span.FindNext(Node{}, IsTag("p"))
	if p.Text() != "outside" {
		t.Fatalf("unbounded walk = %q, want outside", p.Text())
	}
}

func TestNodeFindNextIncludesDescendants(t *testing.T) {
	doc := mustParse(t, fixture)
	box := doc.First("div.box")
	got := box.FindNext(Node{}, IsTag("span"))
	if got.Text() != "deep" {
		t.Fatalf("expected own descendant first, got %q", got.Text())
	}
	if !box.Contains(got) || got.Contains(box) {
		t.Fatalf("contains relation wrong")
	}
}

func TestZeroNodeIsSafe(t *testing.T) {
	var n Node
	if n.Text() != "" || n.Tag() != "" || n.ClassString() != "" {
		t.Fatalf("zero node should yield empty values")
	}
	if len(n.Find("p")) != 0 || !n.First("p").IsZero() || !n.Closest("div").IsZero() {
		t.Fatalf("zero node lookups should be empty")
	}
	if !n.FindNext(Node{}, IsTag("p")).IsZero() || !n.NextElementSibling().IsZero() {
		t.Fatalf("zero node traversal should be empty")
	}
}
