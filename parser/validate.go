package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/speisekarte-scraper/models"
)

// ValidateRestaurant ensures a record satisfies the invariants of emitted
// output: a city is always present and the popularity count is never negative.
func ValidateRestaurant(r *models.Restaurant) error {
	if r == nil {
		return fmt.Errorf("restaurant is nil")
	}
	if strings.TrimSpace(r.City) == "" {
		return fmt.Errorf("restaurant missing city for %s", r.Key())
	}
	if r.StarCount < 0 {
		return fmt.Errorf("restaurant has negative star count %d for %s", r.StarCount, r.Key())
	}
	return nil
}
