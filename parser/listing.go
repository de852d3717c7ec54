package parser

import (
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"

	"github.com/aluiziolira/speisekarte-scraper/dom"
	"github.com/aluiziolira/speisekarte-scraper/models"
)

var (
	titleLinkSelector   = cascadia.MustCompile("h2 a[href]")
	shortTextSelector   = cascadia.MustCompile("p.text-sm, p.text-xs")
	smallTextSelector   = cascadia.MustCompile("p.text-sm")
	paragraphSelector   = cascadia.MustCompile("p")
	heartSelector       = cascadia.MustCompile("i.fa-heart")
	textBlockSelector   = cascadia.MustCompile("span, p, div")
	floatLeftSelector   = cascadia.MustCompile(".float-left")
	floatRightSelector  = cascadia.MustCompile(".float-right")
	uppercaseSelector   = cascadia.MustCompile(".uppercase")
	truncationSelector  = cascadia.MustCompile(".text-ellipsis, .ellipsis")
	descriptionClasses  = []string{"leading-relaxed", "font-normal", "text-left"}
	relaxedLeadingClass = "leading-relaxed"
)

// ListingPage is what one city listing page yields.
type ListingPage struct {
	Records []*models.Restaurant
	// DetailURLs holds one entry per record with a resolvable restaurant URL.
	DetailURLs []string
}

// ParseListingPage extracts a partial record for every card on a listing
// page and stamps each with the city and page URL.
func (e *Extractor) ParseListingPage(doc dom.Node, pageURL string) ListingPage {
	city := ""
	if u, err := url.Parse(pageURL); err == nil {
		city = CityNameFromPath(u.Path)
	}

	var page ListingPage
	for _, card := range FindCards(doc) {
		rec := e.ParseListingCard(card)
		rec.City = city
		rec.PageURL = optional(pageURL)
		page.Records = append(page.Records, rec)
		if rec.RestaurantURL != nil {
			page.DetailURLs = append(page.DetailURLs, *rec.RestaurantURL)
		}
	}
	return page
}

// ParseListingCard turns one card into a partial record. City and PageURL are
// left to the caller.
func (e *Extractor) ParseListingCard(card dom.Node) *models.Restaurant {
	rec := &models.Restaurant{}

	if link := card.FirstMatcher(titleLinkSelector); !link.IsZero() {
		rec.Title = optional(link.Text())
		if href, _ := link.Attr("href"); strings.TrimSpace(href) != "" {
			rec.RestaurantURL = optional(e.absoluteURL(strings.TrimSpace(href)))
		}
	}

	rec.Desc1 = firstText(func() (string, bool) { return e.shortDescription(card) })
	rec.StarCount = len(card.FindMatcher(heartSelector))
	if n, ok := e.recommendations(card); ok {
		rec.Empfehlungen = &n
	}
	rec.Desc2 = firstText(
		func() (string, bool) { return e.styledDescription(card) },
		func() (string, bool) { return e.sentenceDescription(card) },
	)

	dish, _ := FirstOf(
		func() (favouriteDish, bool) { return e.labelledDish(card) },
		func() (favouriteDish, bool) { return unlabelledDish(card) },
	)
	rec.FavouriteDishName = optional(dish.name)
	rec.FavouriteDishPrice = optional(dish.price)
	rec.FavouriteDishIngredients = optional(dish.ingredients)

	return rec
}

// shortDescription is the first small paragraph that is not a status badge.
func (e *Extractor) shortDescription(card dom.Node) (string, bool) {
	for _, p := range card.FindMatcher(shortTextSelector) {
		t := p.Text()
		if t == "" || e.patterns.statusOrMarker.MatchString(t) {
			continue
		}
		return t, true
	}
	return "", false
}

func (e *Extractor) recommendations(card dom.Node) (int, bool) {
	for _, el := range card.FindMatcher(textBlockSelector) {
		if t := el.Text(); strings.Contains(t, e.vocab.RecommendationMarker) {
			return e.RecommendationCount(t)
		}
	}
	return 0, false
}

// styledDescription looks for the paragraph styling used by real
// descriptions.
func (e *Extractor) styledDescription(card dom.Node) (string, bool) {
	for _, p := range card.FindMatcher(smallTextSelector) {
		if !hasAllClasses(p, descriptionClasses) {
			continue
		}
		if t := p.Text(); t != "" && !e.patterns.status.MatchString(t) {
			return t, true
		}
	}
	return "", false
}

// sentenceDescription accepts any relaxed-leading paragraph that reads like a
// sentence: it holds a comma or at least three words. Short UI labels share
// the class and are skipped.
func (e *Extractor) sentenceDescription(card dom.Node) (string, bool) {
	for _, p := range card.FindMatcher(paragraphSelector) {
		if !strings.Contains(p.ClassString(), relaxedLeadingClass) {
			continue
		}
		t := p.Text()
		if t == "" || e.patterns.statusOrMarker.MatchString(t) {
			continue
		}
		if strings.Contains(t, ",") || len(strings.Fields(t)) >= 3 {
			return t, true
		}
	}
	return "", false
}

func hasAllClasses(n dom.Node, classes []string) bool {
	cls := n.ClassString()
	for _, c := range classes {
		if !strings.Contains(cls, c) {
			return false
		}
	}
	return true
}

type favouriteDish struct {
	name        string
	price       string
	ingredients string
}

// labelledDish reads the dish box that follows the "favourite dish" label.
// It gives up when there is no label or no box after it.
func (e *Extractor) labelledDish(card dom.Node) (favouriteDish, bool) {
	label := e.dishLabel(card)
	if label.IsZero() {
		return favouriteDish{}, false
	}
	box, _ := FirstOf(
		func() (dom.Node, bool) {
			n := label.FindNext(card, func(n dom.Node) bool {
				return n.Tag() == "div" && strings.Contains(n.ClassString(), "shadow-md")
			})
			return n, !n.IsZero()
		},
		func() (dom.Node, bool) {
			n := label.FindNext(card, dom.IsTag("div"))
			return n, !n.IsZero()
		},
	)
	if box.IsZero() {
		return favouriteDish{}, false
	}

	var dish favouriteDish
	if left := box.FirstMatcher(floatLeftSelector); !left.IsZero() {
		dish.name = StripPrice(left.Text())
	}
	if right := box.FirstMatcher(floatRightSelector); !right.IsZero() {
		dish.price, _ = ExtractPrice(right.Text())
	}
	after := box.FindNext(card, func(n dom.Node) bool {
		return strings.Contains(n.ClassString(), "ellipsis")
	})
	if t := after.Text(); t != "" && !HasPrice(t) {
		dish.ingredients = t
	}
	return dish, true
}

func (e *Extractor) dishLabel(card dom.Node) dom.Node {
	if e.vocab.FavouriteDishLabel == "" {
		return dom.Node{}
	}
	for _, el := range card.FindMatcher(textBlockSelector) {
		if strings.Contains(el.Text(), e.vocab.FavouriteDishLabel) {
			return el
		}
	}
	return dom.Node{}
}

// unlabelledDish infers the dish from styling alone: an uppercase element
// carries the name (and sometimes the price), a truncated line the
// ingredients.
func unlabelledDish(card dom.Node) (favouriteDish, bool) {
	var dish favouriteDish
	if upper := card.FirstMatcher(uppercaseSelector); !upper.IsZero() {
		dish.name = upper.Text()
		if price, ok := ExtractPrice(dish.name); ok {
			dish.price = price
			dish.name = StripPrice(dish.name)
		}
	}
	for _, el := range card.FindMatcher(truncationSelector) {
		if t := el.Text(); t != "" && !HasPrice(t) {
			dish.ingredients = t
			break
		}
	}
	return dish, true
}
