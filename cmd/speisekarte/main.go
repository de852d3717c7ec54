// Package main provides the speisekarte command line scraper.
//
// Usage:
//
//	speisekarte crawl --letters ab --format sqlite --output out/restaurants.db
//	speisekarte parse --kind listing --page-url https://www.speisekarte.de/aachen/restaurants page.html
package main

func main() {
	Execute()
}
