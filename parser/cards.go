package parser

import (
	"github.com/andybalholm/cascadia"

	"github.com/aluiziolira/speisekarte-scraper/dom"
)

var (
	cardSelector           = cascadia.MustCompile("div.bg-white.shadow-md")
	restaurantLinkSelector = cascadia.MustCompile(`h2 a[href*="/restaurant/"]`)
)

// FindCards returns one node per restaurant card on a listing page. Cards are
// found by their visual classes; when no such card exists each restaurant
// heading link is walked up to its nearest div instead. The result is
// de-duplicated by node identity in first-seen order.
func FindCards(doc dom.Node) []dom.Node {
	cards, _ := FirstOf(
		func() ([]dom.Node, bool) { return cardsByClass(doc) },
		func() ([]dom.Node, bool) { return cardsByLink(doc) },
	)
	return uniqueNodes(cards)
}

func cardsByClass(doc dom.Node) ([]dom.Node, bool) {
	var cards []dom.Node
	for _, div := range doc.FindMatcher(cardSelector) {
		if !div.FirstMatcher(restaurantLinkSelector).IsZero() {
			cards = append(cards, div)
		}
	}
	return cards, len(cards) > 0
}

func cardsByLink(doc dom.Node) ([]dom.Node, bool) {
	var cards []dom.Node
	for _, link := range doc.FindMatcher(restaurantLinkSelector) {
		if parent := link.Closest("div"); !parent.IsZero() {
			cards = append(cards, parent)
		}
	}
	return cards, len(cards) > 0
}

func uniqueNodes(nodes []dom.Node) []dom.Node {
	seen := make(map[dom.Node]struct{}, len(nodes))
	out := make([]dom.Node, 0, len(nodes))
	for _, n := range nodes {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
