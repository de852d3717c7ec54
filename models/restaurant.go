// Package models defines data structures for the scraper.
package models

import "time"

// Restaurant is one directory entry. It is created from a listing card and
// later enriched in place from the restaurant's detail page. Nil pointers
// mean the value was not found on the page.
type Restaurant struct {
	City          string  `csv:"city" json:"city"`
	Title         *string `csv:"title" json:"title"`
	RestaurantURL *string `csv:"restaurant_url" json:"restaurant_url"`
	Desc1         *string `csv:"desc_1" json:"desc_1"`
	StarCount     int     `csv:"star_count" json:"star_count"`
	Empfehlungen  *int    `csv:"empfehlungen" json:"empfehlungen"`
	Desc2         *string `csv:"desc_2" json:"desc_2"`

	FavouriteDishName        *string `csv:"favourite_dish_name" json:"favourite_dish_name"`
	FavouriteDishPrice       *string `csv:"favourite_dish_price" json:"favourite_dish_price"`
	FavouriteDishIngredients *string `csv:"favourite_dish_ingredients" json:"favourite_dish_ingredients"`

	PageURL *string `csv:"page_url" json:"page_url"`

	RatingExact  *string `csv:"rating_exact" json:"rating_exact"`
	OpeningHours *string `csv:"opening_hours" json:"opening_hours"`
	Services     *string `csv:"services" json:"services"`
	Address      *string `csv:"address" json:"address"`

	ScrapedAt time.Time `csv:"scraped_at" json:"scraped_at"`
}

// Key identifies the record for logs and de-duplication. It is the restaurant
// URL when known, otherwise the title, otherwise empty.
func (r *Restaurant) Key() string {
	if r == nil {
		return ""
	}
	if r.RestaurantURL != nil {
		return *r.RestaurantURL
	}
	if r.Title != nil {
		return *r.Title
	}
	return ""
}

// ScraperResult holds the overall result of a scraping operation
type ScraperResult struct {
	StartTime    time.Time
	EndTime      time.Time
	TotalCount   int
	ErrorCount   int
	FailedURLs   []string
	ErrorsByType map[string]int
	RetryCount   int
	RequestCount int
	PageCount    int
	DetailCount  int
}
