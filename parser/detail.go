package parser

import (
	"strings"

	"github.com/andybalholm/cascadia"

	"github.com/aluiziolira/speisekarte-scraper/dom"
	"github.com/aluiziolira/speisekarte-scraper/models"
)

// maxSectionSiblings bounds how far past a heading the section body may be.
const maxSectionSiblings = 5

var (
	ratingSelector    = cascadia.MustCompile("span.text-4xl.font-bold.text-speisekarte-red-100")
	headingSelector   = cascadia.MustCompile("h2, h3, p, div")
	hoursLineSelector = cascadia.MustCompile("div, p, li, span")
	chipSelector      = cascadia.MustCompile("span")
	mapSelector       = cascadia.MustCompile("#detail-map")
)

// EnrichDetail fills the detail-only fields of a record produced from a
// listing card. The record is updated in place.
func (e *Extractor) EnrichDetail(doc dom.Node, rec *models.Restaurant) *models.Restaurant {
	if rec == nil {
		return nil
	}
	rec.RatingExact = e.ExtractRating(doc)
	rec.OpeningHours = e.ExtractOpeningHours(doc)
	rec.Services = e.ExtractServices(doc)
	rec.Address = e.ExtractAddress(doc)
	return rec
}

// ExtractRating returns the rating with a period as decimal separator.
func (e *Extractor) ExtractRating(doc dom.Node) *string {
	rating := firstText(
		func() (string, bool) {
			t := Normalize(doc.FirstMatcher(ratingSelector).Text())
			return t, t != ""
		},
		func() (string, bool) {
			m := e.patterns.rating.FindStringSubmatch(doc.Text())
			if m == nil {
				return "", false
			}
			return m[1], true
		},
	)
	if rating == nil {
		return nil
	}
	s := strings.ReplaceAll(*rating, ",", ".")
	return &s
}

// ExtractOpeningHours collects the weekday lines below the opening hours
// heading, falling back to the JSON-LD openingHours list.
func (e *Extractor) ExtractOpeningHours(doc dom.Node) *string {
	return firstText(
		func() (string, bool) {
			container := sectionBody(e.findHeading(doc, e.vocab.OpeningHoursLabel))
			var lines []string
			for _, el := range container.FindMatcher(hoursLineSelector) {
				t := el.Text()
				if t == "" {
					continue
				}
				if e.patterns.weekday.MatchString(t) || (e.vocab.ClosedDayMarker != "" && strings.Contains(t, e.vocab.ClosedDayMarker)) {
					lines = append(lines, t)
				}
			}
			return strings.Join(lines, " "), len(lines) > 0
		},
		func() (string, bool) {
			ld := ReadStructuredData(doc)
			if ld == nil {
				return "", false
			}
			var lines []string
			switch hours := ld["openingHours"].(type) {
			case []any:
				for _, h := range hours {
					if s, ok := h.(string); ok {
						if s = Normalize(s); s != "" {
							lines = append(lines, s)
						}
					}
				}
			case string:
				if s := Normalize(hours); s != "" {
					lines = append(lines, s)
				}
			}
			return strings.Join(lines, " "), len(lines) > 0
		},
	)
}

// ExtractServices joins the chips listed under the services heading.
func (e *Extractor) ExtractServices(doc dom.Node) *string {
	container := sectionBody(e.findHeading(doc, e.vocab.ServicesLabel))
	var chips []string
	for _, span := range container.FindMatcher(chipSelector) {
		if t := Normalize(span.Text()); t != "" {
			chips = append(chips, t)
		}
	}
	if len(chips) == 0 {
		return nil
	}
	return optional(strings.Join(chips, " "))
}

// ExtractAddress tries the map section, then the address heading, then the
// JSON-LD postal address.
func (e *Extractor) ExtractAddress(doc dom.Node) *string {
	return firstText(
		func() (string, bool) {
			t := doc.FirstMatcher(mapSelector).FirstMatcher(paragraphSelector).Text()
			return t, Normalize(t) != ""
		},
		func() (string, bool) {
			for _, label := range e.vocab.AddressLabels {
				head := e.findHeading(doc, label)
				if head.IsZero() {
					continue
				}
				t := head.FindNext(dom.Node{}, dom.IsTag("p")).Text()
				return t, Normalize(t) != ""
			}
			return "", false
		},
		func() (string, bool) {
			ld := ReadStructuredData(doc)
			if ld == nil {
				return "", false
			}
			switch addr := ld["address"].(type) {
			case map[string]any:
				var parts []string
				for _, key := range []string{"streetAddress", "postalCode", "addressLocality"} {
					if v := stringField(addr, key); v != "" {
						parts = append(parts, v)
					}
				}
				return strings.Join(parts, ", "), len(parts) > 0
			case string:
				return addr, Normalize(addr) != ""
			}
			return "", false
		},
	)
}

// findHeading returns the first h2, h3, p or div whose whitespace-collapsed
// text equals label, ignoring case. Substring matches do not count.
func (e *Extractor) findHeading(doc dom.Node, label string) dom.Node {
	want := Normalize(label)
	if want == "" {
		return dom.Node{}
	}
	for _, n := range doc.FindMatcher(headingSelector) {
		if strings.EqualFold(Normalize(n.Text()), want) {
			return n
		}
	}
	return dom.Node{}
}

// sectionBody is the first div among the next few element siblings of a
// heading.
func sectionBody(head dom.Node) dom.Node {
	sib := head.NextElementSibling()
	for i := 0; i < maxSectionSiblings && !sib.IsZero(); i++ {
		if sib.Tag() == "div" {
			return sib
		}
		sib = sib.NextElementSibling()
	}
	return dom.Node{}
}

// ExtractRating reads the rating with the default extractor.
func ExtractRating(doc dom.Node) *string { return defaultExtractor.ExtractRating(doc) }

// ExtractOpeningHours reads opening hours with the default extractor.
func ExtractOpeningHours(doc dom.Node) *string { return defaultExtractor.ExtractOpeningHours(doc) }

// ExtractServices reads service chips with the default extractor.
func ExtractServices(doc dom.Node) *string { return defaultExtractor.ExtractServices(doc) }

// ExtractAddress reads the address with the default extractor.
func ExtractAddress(doc dom.Node) *string { return defaultExtractor.ExtractAddress(doc) }
