package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/aluiziolira/speisekarte-scraper/models"
)

const listingHTML = `<html><body>
<div class="bg-white shadow-md">
<h2><a href="/restaurant/zum-hirsch">Zum Hirsch</a></h2>
<i class="fa fa-heart"></i><i class="fa fa-heart"></i>
<span class="text-xs">12 Empfehlungen</span>
</div>
<div class="bg-white shadow-md">
<h2><a href="/restaurant/la-piazza">La Piazza</a></h2>
</div>
</body></html>`

const aachenURL = "https://www.speisekarte.de/aachen/restaurants"

const detailHTML = `<html><body>
<span class="text-4xl font-bold text-speisekarte-red-100">4,5</span>
</body></html>`

func runParseCmd(t *testing.T, args ...string) []models.Restaurant {
	t.Helper()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(append([]string{"parse"}, args...))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("parse: %v", err)
	}

	var records []models.Restaurant
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var rec models.Restaurant
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("decode %q: %v", scanner.Text(), err)
		}
		records = append(records, rec)
	}
	return records
}

func TestParseListingFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := writeFile(t, dir, "a.html", listingHTML)
	second := writeFile(t, dir, "b.html", listingHTML)

	records := runParseCmd(t, "--page-url", aachenURL, "-j", "2", first, second)
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}

	got := records[0]
	if got.City != "Aachen" {
		t.Errorf("City = %q", got.City)
	}
	if got.Title == nil || *got.Title != "Zum Hirsch" {
		t.Errorf("Title = %v", got.Title)
	}
	if got.RestaurantURL == nil || *got.RestaurantURL != "https://www.speisekarte.de/restaurant/zum-hirsch" {
		t.Errorf("RestaurantURL = %v", got.RestaurantURL)
	}
	if got.StarCount != 2 {
		t.Errorf("StarCount = %d", got.StarCount)
	}
	if records[1].Title == nil || *records[1].Title != "La Piazza" {
		t.Errorf("input order lost: second record %v", records[1].Title)
	}
}

func TestParseDetailFile(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "detail.html", detailHTML)
	records := runParseCmd(t, "--kind", "detail", "--city", " Aachen ", "--page-url", "https://www.speisekarte.de/restaurant/x", path)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].RatingExact == nil || *records[0].RatingExact != "4.5" {
		t.Errorf("RatingExact = %v", records[0].RatingExact)
	}
	if records[0].City != "Aachen" {
		t.Errorf("City = %q", records[0].City)
	}
	if records[0].RestaurantURL == nil || *records[0].RestaurantURL != "https://www.speisekarte.de/restaurant/x" {
		t.Errorf("RestaurantURL = %v", records[0].RestaurantURL)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	listing := writeFile(t, dir, "listing.html", listingHTML)
	detail := writeFile(t, dir, "detail.html", detailHTML)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "no files", args: []string{"parse"}},
		{name: "unknown kind", args: []string{"parse", "--kind", "menu", "x.html"}, wantErr: "unknown page kind"},
		{name: "missing file", args: []string{"parse", "--page-url", aachenURL, "does-not-exist.html"}},
		{name: "listing without page url", args: []string{"parse", listing}, wantErr: "--page-url is required"},
		{name: "detail without city", args: []string{"parse", "--kind", "detail", detail}, wantErr: "--city is required"},
		{name: "page url without city", args: []string{"parse", "--page-url", "https://www.speisekarte.de/", listing}, wantErr: "missing city"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cmd := NewRootCmd()
			var out bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tt.args)
			err := cmd.Execute()
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
			if out.Len() != 0 {
				t.Errorf("records written despite error: %s", out.String())
			}
		})
	}
}
