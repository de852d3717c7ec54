package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/speisekarte-scraper/config"
	"github.com/aluiziolira/speisekarte-scraper/models"
	"github.com/aluiziolira/speisekarte-scraper/pipeline"
)

const testBase = "http://example.test"

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = testBase
	cfg.Letters = "a"
	cfg.Parallelism = 2
	cfg.Delay = 0
	cfg.RespectRobotsTxt = false
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 5 * time.Millisecond
	cfg.PipelineBufferSize = 16
	cfg.BatchSize = 1
	return cfg
}

func testRequest(t *testing.T, raw string) *colly.Request {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return &colly.Request{URL: u, Ctx: colly.NewContext()}
}

func TestRetryManagerScheduleRespectsLimit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Hour
	cfg.RetryBackoffMax = time.Hour

	rm := newRetryManager(cfg, NewMetrics())
	req := testRequest(t, "http://example.com/page")

	if !rm.Schedule(req) {
		t.Fatalf("first retry should be scheduled")
	}
	if !rm.Schedule(req) {
		t.Fatalf("second retry should be scheduled")
	}
	if rm.Schedule(req) {
		t.Fatalf("third retry should not be scheduled")
	}

	rm.Stop()
	if got := rm.TotalRetries(); got != 2 {
		t.Fatalf("total retries = %d, want 2", got)
	}
	if rm.Wait() {
		t.Fatalf("stopped manager should have no pending timers")
	}
}

func TestRetryManagerDisabledAndCancelled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxRetries = 0
	if newRetryManager(cfg, nil).Schedule(testRequest(t, "http://example.com/a")) {
		t.Fatalf("retries disabled, nothing should be scheduled")
	}

	cfg.MaxRetries = 3
	rm := newRetryManager(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rm.SetContext(ctx)
	if rm.Schedule(testRequest(t, "http://example.com/a")) {
		t.Fatalf("cancelled context should prevent retries")
	}
}

func TestRetryManagerBackoffCapped(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RetryBackoff = 200 * time.Millisecond
	cfg.RetryBackoffMax = 500 * time.Millisecond

	rm := newRetryManager(cfg, NewMetrics())

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 200 * time.Millisecond},
		{attempt: 2, want: 400 * time.Millisecond},
		{attempt: 3, want: 500 * time.Millisecond},
		{attempt: 40, want: 500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := rm.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
		retryable  bool
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, expected: "timeout", retryable: true},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, expected: "timeout", retryable: true},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, expected: "connection", retryable: true},
		{name: "forbidden", statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "gone", statusCode: http.StatusGone, expected: "not_found"},
		{name: "rate limited", statusCode: http.StatusTooManyRequests, expected: "rate_limited", retryable: true},
		{name: "server", err: errors.New("Service Unavailable"), statusCode: http.StatusServiceUnavailable, expected: "server", retryable: true},
		{name: "other", err: errors.New("some other error"), expected: "other", retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classifyError("http://example.test/x", tt.err, tt.statusCode)
			var err error
			if classified != nil {
				err = classified
			}
			if got := errorTypeLabel(err); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
			if classified != nil && classified.Retryable() != tt.retryable {
				t.Fatalf("retryable = %v, want %v", classified.Retryable(), tt.retryable)
			}
			if classified != nil && tt.err != nil && !errors.Is(classified, tt.err) {
				t.Fatalf("classified error should wrap the cause")
			}
		})
	}
}

func TestScraperHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			cfg := testConfig()
			cfg.MaxRetries = 0

			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", testBase+"/staedteverzeichnis/a", httpmock.NewStringResponder(tt.status, ""))

			s, err := NewScraper(cfg)
			if err != nil {
				t.Fatalf("new scraper: %v", err)
			}
			s.collector.WithTransport(transport)

			writer := &collectingWriter{}
			p := pipeline.NewPipeline(context.Background(), writer, cfg)
			p.Start(1)

			result, err := s.Run(context.Background(), p)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if err := p.Close(); err != nil {
				t.Fatalf("close pipeline: %v", err)
			}

			if got := result.ErrorsByType[tt.expected]; got == 0 {
				t.Fatalf("expected %q classification for status %d, got %v", tt.expected, tt.status, result.ErrorsByType)
			}
			if len(result.FailedURLs) != 1 || result.RetryCount != 0 {
				t.Fatalf("failed=%v retries=%d", result.FailedURLs, result.RetryCount)
			}
		})
	}
}

type collectingWriter struct {
	mu      sync.Mutex
	records []*models.Restaurant
}

func (cw *collectingWriter) Write(records []*models.Restaurant) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.records = append(cw.records, records...)
	return nil
}

func (cw *collectingWriter) Close() error {
	return nil
}

func (cw *collectingWriter) Validate() error {
	return nil
}

func (cw *collectingWriter) byTitle() map[string]*models.Restaurant {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	out := make(map[string]*models.Restaurant, len(cw.records))
	for _, rec := range cw.records {
		if rec.Title != nil {
			out[*rec.Title] = rec
		}
	}
	return out
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	return httpmock.ResponderFromResponse(resp)
}

func directoryPage(paths ...string) string {
	body := `<html><body><div class="grid">`
	for _, p := range paths {
		body += fmt.Sprintf(`<a href="%s">%s</a>`, p, p)
	}
	return body + `</div><a href="/impressum">Impressum</a></body></html>`
}

func listingCard(href, title string) string {
	return fmt.Sprintf(`<div class="bg-white shadow-md">
<h2><a href="%s">%s</a></h2>
<i class="fa fa-heart"></i>
<span class="text-xs">12 Empfehlungen</span>
</div>`, href, title)
}

func detailPage(rating, address string) string {
	return `<html><body>
<span class="text-4xl font-bold text-speisekarte-red-100">` + rating + `</span>
<h2>Öffnungszeiten</h2><div><p>Montag 11:00–22:00</p></div>
<div id="detail-map"><p>` + address + `</p></div>
</body></html>`
}

func TestScraper_Integration(t *testing.T) {
	cfg := testConfig()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBase+"/staedteverzeichnis/a",
		htmlResponder(directoryPage("/aachen/restaurants", "/aalen/restaurants")))
	transport.RegisterResponder("GET", testBase+"/staedteverzeichnis/a?page=2",
		htmlResponder(directoryPage("/aachen/restaurants")))

	transport.RegisterResponder("GET", testBase+"/aachen/restaurants",
		htmlResponder("<html><body>"+
			listingCard("/restaurant/zgh-123", "Zum Goldenen Hirsch")+
			listingCard("/restaurant/gone", "Verschwunden")+
			listingCard("https://other.example/restaurant/q", "Anderswo")+
			"</body></html>"))
	transport.RegisterResponder("GET", testBase+"/aachen/restaurants?page=2",
		htmlResponder("<html><body><p>Keine weiteren Restaurants</p></body></html>"))
	transport.RegisterResponder("GET", testBase+"/aalen/restaurants",
		htmlResponder("<html><body>"+listingCard("/restaurant/aal-1", "Aalener Stube")+"</body></html>"))
	transport.RegisterResponder("GET", testBase+"/aalen/restaurants?page=2",
		htmlResponder("<html><body></body></html>"))

	transport.RegisterResponder("GET", testBase+"/restaurant/zgh-123",
		htmlResponder(detailPage("4,5", "Markt 1, 52062 Aachen")))
	transport.RegisterResponder("GET", testBase+"/restaurant/gone",
		httpmock.NewStringResponder(http.StatusNotFound, "not here"))

	var flaky int32
	transport.RegisterResponder("GET", testBase+"/restaurant/aal-1",
		func(req *http.Request) (*http.Response, error) {
			if atomic.AddInt32(&flaky, 1) == 1 {
				return httpmock.NewStringResponse(http.StatusServiceUnavailable, "busy"), nil
			}
			return htmlResponder(detailPage("3,9", "Markt 2, 73430 Aalen"))(req)
		})

	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(transport)

	writer := &collectingWriter{}
	p := pipeline.NewPipeline(context.Background(), writer, cfg)
	p.Start(2)

	result, err := s.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}

	records := writer.byTitle()
	if len(records) != 4 {
		titles := make([]string, 0, len(records))
		for title := range records {
			titles = append(titles, title)
		}
		sort.Strings(titles)
		t.Fatalf("records=%v, want 4 (requests=%d errors=%v failed=%v)", titles, result.RequestCount, result.ErrorsByType, result.FailedURLs)
	}

	hirsch := records["Zum Goldenen Hirsch"]
	if hirsch == nil || hirsch.City != "Aachen" {
		t.Fatalf("unexpected hirsch record: %+v", hirsch)
	}
	if hirsch.RatingExact == nil || *hirsch.RatingExact != "4.5" {
		t.Fatalf("rating not enriched: %v", hirsch.RatingExact)
	}
	if hirsch.Address == nil || *hirsch.Address != "Markt 1, 52062 Aachen" {
		t.Fatalf("address not enriched: %v", hirsch.Address)
	}
	if hirsch.PageURL == nil || *hirsch.PageURL != testBase+"/aachen/restaurants" {
		t.Fatalf("page_url = %v", hirsch.PageURL)
	}
	if hirsch.Empfehlungen == nil || *hirsch.Empfehlungen != 12 || hirsch.StarCount != 1 {
		t.Fatalf("listing fields lost: %+v", hirsch)
	}

	for _, title := range []string{"Verschwunden", "Anderswo"} {
		rec := records[title]
		if rec == nil {
			t.Fatalf("missing partial record %q", title)
		}
		if rec.City != "Aachen" || rec.RatingExact != nil || rec.OpeningHours != nil {
			t.Fatalf("partial record %q should keep listing fields only: %+v", title, rec)
		}
	}

	stube := records["Aalener Stube"]
	if stube == nil || stube.City != "Aalen" {
		t.Fatalf("unexpected aalen record: %+v", stube)
	}
	if stube.RatingExact == nil || *stube.RatingExact != "3.9" {
		t.Fatalf("retried detail should enrich the carried record, got %v", stube.RatingExact)
	}

	if result.RetryCount != 1 {
		t.Fatalf("retries = %d, want 1", result.RetryCount)
	}
	if result.ErrorsByType["not_found"] != 1 || result.ErrorsByType["server"] != 1 {
		t.Fatalf("errors by type = %v", result.ErrorsByType)
	}
	if len(result.FailedURLs) != 1 || result.FailedURLs[0] != testBase+"/restaurant/gone" {
		t.Fatalf("failed urls = %v", result.FailedURLs)
	}
	if result.PageCount != 6 {
		t.Fatalf("pages = %d, want 6", result.PageCount)
	}
	if result.DetailCount != 2 {
		t.Fatalf("detail pages = %d, want 2", result.DetailCount)
	}
	if result.TotalCount != 4 {
		t.Fatalf("total = %d, want 4", result.TotalCount)
	}
}

func TestScraperRetryExhaustedEmitsPartialRecord(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.MaxCityPages = 1

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBase+"/staedteverzeichnis/a",
		htmlResponder(directoryPage("/berlin/restaurants")))
	transport.RegisterResponder("GET", testBase+"/staedteverzeichnis/a?page=2",
		htmlResponder(directoryPage()))
	transport.RegisterResponder("GET", testBase+"/berlin/restaurants",
		htmlResponder("<html><body>"+listingCard("/restaurant/down", "Immer Zu")+"</body></html>"))
	transport.RegisterResponder("GET", testBase+"/restaurant/down",
		httpmock.NewStringResponder(http.StatusBadGateway, "bad gateway"))

	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(transport)

	writer := &collectingWriter{}
	p := pipeline.NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	result, err := s.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}

	rec := writer.byTitle()["Immer Zu"]
	if rec == nil {
		t.Fatalf("partial record not emitted (errors=%v)", result.ErrorsByType)
	}
	if rec.City != "Berlin" || rec.RatingExact != nil {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if result.RetryCount != 1 || result.ErrorsByType["server"] != 2 {
		t.Fatalf("retries=%d errors=%v", result.RetryCount, result.ErrorsByType)
	}
}

func TestScraperDuplicateListingKeepsEnrichedRecord(t *testing.T) {
	cfg := testConfig()
	cfg.MaxCityPages = 1

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBase+"/staedteverzeichnis/a",
		htmlResponder(directoryPage("/aachen/restaurants")))
	transport.RegisterResponder("GET", testBase+"/staedteverzeichnis/a?page=2",
		htmlResponder(directoryPage("/aachen/restaurants")))
	transport.RegisterResponder("GET", testBase+"/aachen/restaurants",
		htmlResponder("<html><body>"+
			listingCard("/restaurant/zgh-123", "Zum Goldenen Hirsch")+
			listingCard("/restaurant/zgh-123", "Zum Goldenen Hirsch")+
			"</body></html>"))
	transport.RegisterResponder("GET", testBase+"/restaurant/zgh-123",
		htmlResponder(detailPage("4,5", "Markt 1, 52062 Aachen")))

	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(transport)

	writer := &collectingWriter{}
	p := pipeline.NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	result, err := s.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}

	writer.mu.Lock()
	written := append([]*models.Restaurant(nil), writer.records...)
	writer.mu.Unlock()

	if len(written) != 1 {
		t.Fatalf("written=%d, want 1", len(written))
	}
	if written[0].RatingExact == nil || *written[0].RatingExact != "4.5" {
		t.Fatalf("enriched record lost: rating=%v", written[0].RatingExact)
	}
	if written[0].Address == nil {
		t.Fatal("enriched record lost: no address")
	}
	if result.TotalCount != 1 || result.DetailCount != 1 {
		t.Fatalf("total=%d details=%d, want 1 and 1", result.TotalCount, result.DetailCount)
	}
	if dupes := p.GetMetrics()["validation_errors"].(map[string]int)["duplicate_url"]; dupes != 0 {
		t.Fatalf("duplicate_url=%d, want 0", dupes)
	}
}

func TestQuietSinkError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		quiet bool
	}{
		{name: "nil", err: nil, quiet: true},
		{name: "closed", err: pipeline.ErrPipelineClosed, quiet: true},
		{name: "cancelled", err: context.Canceled, quiet: true},
		{name: "wrapped cancel", err: fmt.Errorf("enqueue: %w", context.Canceled), quiet: true},
		{name: "deadline", err: context.DeadlineExceeded, quiet: false},
		{name: "other", err: errors.New("disk full"), quiet: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quietSinkError(tt.err); got != tt.quiet {
				t.Errorf("quietSinkError(%v) = %v, want %v", tt.err, got, tt.quiet)
			}
		})
	}
}

func TestScraperCancelledContext(t *testing.T) {
	cfg := testConfig()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBase+"/staedteverzeichnis/a",
		htmlResponder(directoryPage("/aachen/restaurants")))

	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(transport)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	writer := &collectingWriter{}
	result, err := s.Run(ctx, pipeline.NewPipeline(context.Background(), writer, cfg))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.PageCount != 0 || result.TotalCount != 0 {
		t.Fatalf("cancelled run should not parse pages: %+v", result)
	}
}

func TestAllowedDomains(t *testing.T) {
	tests := []struct {
		host string
		want []string
	}{
		{host: "www.speisekarte.de", want: []string{"www.speisekarte.de", "speisekarte.de"}},
		{host: "speisekarte.de", want: []string{"speisekarte.de", "www.speisekarte.de"}},
	}
	for _, tt := range tests {
		got := allowedDomains(tt.host)
		if fmt.Sprint(got) != fmt.Sprint(tt.want) {
			t.Errorf("allowedDomains(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestResolvePaging(t *testing.T) {
	s, err := NewScraper(testConfig())
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	tests := []struct {
		path string
		page int
		want string
	}{
		{path: "/staedteverzeichnis/a", page: 1, want: testBase + "/staedteverzeichnis/a"},
		{path: "/staedteverzeichnis/a", page: 3, want: testBase + "/staedteverzeichnis/a?page=3"},
		{path: "/m%C3%BClheim/restaurants", page: 2, want: testBase + "/m%C3%BClheim/restaurants?page=2"},
	}
	for _, tt := range tests {
		if got := s.resolve(tt.path, tt.page); got != tt.want {
			t.Errorf("resolve(%q, %d) = %q, want %q", tt.path, tt.page, got, tt.want)
		}
	}
}
