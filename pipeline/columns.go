package pipeline

import (
	"strconv"
	"time"

	"github.com/aluiziolira/speisekarte-scraper/models"
)

// Columns is the output column order shared by the CSV and SQL writers.
var Columns = []string{
	"city",
	"title",
	"restaurant_url",
	"desc_1",
	"star_count",
	"empfehlungen",
	"desc_2",
	"favourite_dish_name",
	"favourite_dish_price",
	"favourite_dish_ingredients",
	"page_url",
	"rating_exact",
	"opening_hours",
	"services",
	"address",
	"scraped_at",
}

// values returns one entry per column; missing fields are nil.
func values(r *models.Restaurant) []any {
	return []any{
		r.City,
		nullable(r.Title),
		nullable(r.RestaurantURL),
		nullable(r.Desc1),
		r.StarCount,
		nullableInt(r.Empfehlungen),
		nullable(r.Desc2),
		nullable(r.FavouriteDishName),
		nullable(r.FavouriteDishPrice),
		nullable(r.FavouriteDishIngredients),
		nullable(r.PageURL),
		nullable(r.RatingExact),
		nullable(r.OpeningHours),
		nullable(r.Services),
		nullable(r.Address),
		r.ScrapedAt.UTC().Format(time.RFC3339),
	}
}

// csvRow renders values as strings, missing fields as empty cells.
func csvRow(r *models.Restaurant) []string {
	vals := values(r)
	row := make([]string, len(vals))
	for i, v := range vals {
		switch v := v.(type) {
		case string:
			row[i] = v
		case int:
			row[i] = strconv.Itoa(v)
		}
	}
	return row
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}
