package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/speisekarte-scraper/config"
	"github.com/aluiziolira/speisekarte-scraper/dom"
	"github.com/aluiziolira/speisekarte-scraper/models"
	"github.com/aluiziolira/speisekarte-scraper/parser"
	"github.com/aluiziolira/speisekarte-scraper/pipeline"
)

// Page kinds carried in the request context.
const (
	kindDirectory = "directory"
	kindCity      = "city"
	kindDetail    = "detail"
)

// Request context keys.
const (
	ctxKind   = "kind"
	ctxLetter = "letter"
	ctxPath   = "path"
	ctxPage   = "page"
	ctxRecord = "record"
	ctxStart  = "start"
)

// Record sources for metrics.
const (
	sourceDetail  = "detail"
	sourceListing = "listing"
	sourcePartial = "partial"
)

// Sink receives finished records. *pipeline.Pipeline satisfies it.
type Sink interface {
	Process(records ...*models.Restaurant) error
}

// Scraper walks the city directory, every city listing and every restaurant
// detail page, and streams records into a Sink.
type Scraper struct {
	cfg       *config.Config
	base      *url.URL
	extractor *parser.Extractor
	collector *colly.Collector
	retry     *retryManager
	Metrics   *Metrics

	// set by Run
	ctx  context.Context
	sink Sink

	requestCount int64
	pageCount    int64
	detailCount  int64
	recordCount  int64
	errorCount   int64

	mu           sync.Mutex
	failedURLs   []string
	errorsByType map[string]int
	seenCities   map[string]map[string]struct{}

	handlersOnce sync.Once
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	vocab, err := parser.LoadVocabularyFile(cfg.VocabularyFile)
	if err != nil {
		return nil, err
	}
	extractor, err := parser.NewExtractor(cfg.BaseURL, vocab)
	if err != nil {
		return nil, fmt.Errorf("build extractor: %w", err)
	}

	collector := colly.NewCollector(
		colly.Async(true),
		colly.AllowedDomains(allowedDomains(base.Hostname())...),
		colly.UserAgent(cfg.UserAgent),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	s := &Scraper{
		cfg:          cfg,
		base:         base,
		extractor:    extractor,
		collector:    collector,
		errorsByType: make(map[string]int),
		seenCities:   make(map[string]map[string]struct{}),
		Metrics:      NewMetrics(),
	}
	s.retry = newRetryManager(cfg, s.Metrics)
	s.retry.abandon = func(r *colly.Request, err error) {
		s.giveUp(r)
	}
	return s, nil
}

// allowedDomains accepts the host with and without the www prefix.
func allowedDomains(host string) []string {
	bare := strings.TrimPrefix(host, "www.")
	if bare == host {
		return []string{host, "www." + host}
	}
	return []string{host, bare}
}

// Run crawls every configured letter and returns once all pages, including
// scheduled retries, are done or ctx is cancelled.
func (s *Scraper) Run(ctx context.Context, sink Sink) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx = ctx
	s.sink = sink
	s.retry.SetContext(ctx)
	s.configureHandlers()

	start := time.Now()
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			s.retry.Stop()
		case <-done:
		}
	}()

	visited := 0
	for _, letter := range s.cfg.LetterList() {
		if err := s.visitDirectory(letter, 1); err != nil {
			slog.Error("directory visit failed", slog.String("letter", letter), slog.Any("error", err))
			continue
		}
		visited++
	}
	if visited == 0 {
		return nil, fmt.Errorf("initial visit: no directory page could be requested")
	}

	for {
		s.collector.Wait()
		if !s.retry.Wait() {
			break
		}
	}
	s.retry.Stop()

	return &models.ScraperResult{
		StartTime:    start,
		EndTime:      time.Now(),
		TotalCount:   int(atomic.LoadInt64(&s.recordCount)),
		ErrorCount:   int(atomic.LoadInt64(&s.errorCount)),
		FailedURLs:   s.snapshotFailedURLs(),
		ErrorsByType: s.snapshotErrors(),
		RetryCount:   s.retry.TotalRetries(),
		RequestCount: int(atomic.LoadInt64(&s.requestCount)),
		PageCount:    int(atomic.LoadInt64(&s.pageCount)),
		DetailCount:  int(atomic.LoadInt64(&s.detailCount)),
	}, nil
}

func (s *Scraper) configureHandlers() {
	s.handlersOnce.Do(func() {
		s.collector.OnRequest(func(r *colly.Request) {
			if s.ctx.Err() != nil {
				r.Abort()
				return
			}
			r.Ctx.Put(ctxStart, time.Now())
			r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
			if s.cfg.AcceptLanguage != "" {
				r.Headers.Set("Accept-Language", s.cfg.AcceptLanguage)
			}

			current := atomic.AddInt64(&s.requestCount, 1)
			s.Metrics.IncRequest(r.Ctx.Get(ctxKind))
			if current%50 == 0 {
				slog.Debug("scraper request progress",
					slog.Int64("requests", current),
					slog.Int64("pages", atomic.LoadInt64(&s.pageCount)),
					slog.Int64("records", atomic.LoadInt64(&s.recordCount)),
					slog.String("url", r.URL.String()),
				)
			}
		})

		s.collector.OnResponse(func(r *colly.Response) {
			kind := r.Request.Ctx.Get(ctxKind)
			if start, ok := r.Request.Ctx.GetAny(ctxStart).(time.Time); ok {
				s.Metrics.ObserveDuration(kind, time.Since(start))
			}

			doc, err := dom.Parse(bytes.NewReader(r.Body))
			if err != nil {
				s.recordError(&RequestError{Kind: KindParse, URL: r.Request.URL.String(), Err: err})
				s.giveUp(r.Request)
				return
			}

			switch kind {
			case kindDirectory:
				s.handleDirectory(r.Request, doc)
			case kindCity:
				s.handleCity(r.Request, doc)
			case kindDetail:
				s.handleDetail(r.Request, doc)
			default:
				slog.Warn("response without page kind", slog.String("url", r.Request.URL.String()))
			}
		})

		s.collector.OnError(func(r *colly.Response, err error) {
			statusCode := 0
			var req *colly.Request
			if r != nil {
				statusCode = r.StatusCode
				req = r.Request
			}
			target := ""
			if req != nil && req.URL != nil {
				target = req.URL.String()
			}

			classified := classifyError(target, err, statusCode)
			if classified == nil {
				classified = &RequestError{Kind: KindOther, URL: target, Err: errors.New("unknown error")}
			}
			s.recordError(classified)

			if s.ctx.Err() != nil {
				return
			}
			if classified.Retryable() && s.retry.Schedule(req) {
				return
			}
			s.giveUp(req)
		})
	})
}

func (s *Scraper) handleDirectory(req *colly.Request, doc dom.Node) {
	atomic.AddInt64(&s.pageCount, 1)
	s.Metrics.IncPage(kindDirectory)

	letter := req.Ctx.Get(ctxLetter)
	page, _ := req.Ctx.GetAny(ctxPage).(int)

	fresh := 0
	for _, path := range parser.CityPaths(doc) {
		if !s.markCity(letter, path) {
			continue
		}
		fresh++
		if err := s.visitCity(path, 1); err != nil && !errors.Is(err, colly.ErrAlreadyVisited) {
			slog.Debug("city visit skipped", slog.String("path", path), slog.Any("error", err))
		}
	}

	slog.Debug("directory page parsed",
		slog.String("letter", letter),
		slog.Int("page", page),
		slog.Int("new_cities", fresh),
	)

	if fresh > 0 && page < s.cfg.MaxDirPages {
		if err := s.visitDirectory(letter, page+1); err != nil {
			slog.Debug("next directory page skipped", slog.String("letter", letter), slog.Any("error", err))
		}
	}
}

func (s *Scraper) handleCity(req *colly.Request, doc dom.Node) {
	atomic.AddInt64(&s.pageCount, 1)
	s.Metrics.IncPage(kindCity)

	path := req.Ctx.Get(ctxPath)
	page, _ := req.Ctx.GetAny(ctxPage).(int)

	listing := s.extractor.ParseListingPage(doc, req.URL.String())
	if len(listing.Records) == 0 {
		slog.Debug("city listing exhausted", slog.String("path", path), slog.Int("page", page))
		return
	}

	for _, rec := range listing.Records {
		if rec.RestaurantURL == nil {
			s.emit(sourceListing, rec)
			continue
		}
		if s.ctx.Err() != nil {
			return
		}
		err := s.visitDetail(*rec.RestaurantURL, rec)
		switch {
		case err == nil:
		case errors.Is(err, colly.ErrAlreadyVisited):
			// the first request for this URL emits its record
			slog.Debug("duplicate detail url", slog.String("url", *rec.RestaurantURL))
		default:
			// off-site or disallowed by robots.txt
			slog.Debug("detail visit skipped", slog.String("url", *rec.RestaurantURL), slog.Any("error", err))
			s.emit(sourcePartial, rec)
		}
	}

	if page < s.cfg.MaxCityPages {
		if err := s.visitCity(path, page+1); err != nil {
			slog.Debug("next city page skipped", slog.String("path", path), slog.Any("error", err))
		}
	}
}

func (s *Scraper) handleDetail(req *colly.Request, doc dom.Node) {
	atomic.AddInt64(&s.detailCount, 1)
	s.Metrics.IncPage(kindDetail)

	rec, ok := req.Ctx.GetAny(ctxRecord).(*models.Restaurant)
	if !ok || rec == nil {
		slog.Warn("detail response without record", slog.String("url", req.URL.String()))
		return
	}
	s.emit(sourceDetail, s.extractor.EnrichDetail(doc, rec))
}

// giveUp emits the listing record carried by a detail request that will not
// be retried again. Other page kinds are only logged as failed.
func (s *Scraper) giveUp(req *colly.Request) {
	if req == nil {
		return
	}
	s.mu.Lock()
	s.failedURLs = append(s.failedURLs, req.URL.String())
	s.mu.Unlock()

	if req.Ctx.Get(ctxKind) != kindDetail {
		return
	}
	if rec, ok := req.Ctx.GetAny(ctxRecord).(*models.Restaurant); ok && rec != nil {
		s.emit(sourcePartial, rec)
	}
}

func (s *Scraper) emit(source string, rec *models.Restaurant) {
	if s.sink == nil || rec == nil {
		return
	}
	if rec.ScrapedAt.IsZero() {
		rec.ScrapedAt = time.Now().UTC()
	}
	atomic.AddInt64(&s.recordCount, 1)
	s.Metrics.ObserveRecord(source, rec)
	if err := s.sink.Process(rec); !quietSinkError(err) {
		slog.Error("pipeline process error", slog.String("key", rec.Key()), slog.Any("error", err))
	}
}

// quietSinkError reports whether a Process error is expected during shutdown.
func quietSinkError(err error) bool {
	return err == nil ||
		errors.Is(err, pipeline.ErrPipelineClosed) ||
		errors.Is(err, context.Canceled)
}

func (s *Scraper) visitDirectory(letter string, page int) error {
	target := s.resolve("/staedteverzeichnis/"+letter, page)
	ctx := colly.NewContext()
	ctx.Put(ctxKind, kindDirectory)
	ctx.Put(ctxLetter, letter)
	ctx.Put(ctxPage, page)
	return s.collector.Request(http.MethodGet, target, nil, ctx, nil)
}

func (s *Scraper) visitCity(path string, page int) error {
	target := s.resolve(path, page)
	ctx := colly.NewContext()
	ctx.Put(ctxKind, kindCity)
	ctx.Put(ctxPath, path)
	ctx.Put(ctxPage, page)
	return s.collector.Request(http.MethodGet, target, nil, ctx, nil)
}

func (s *Scraper) visitDetail(target string, rec *models.Restaurant) error {
	ctx := colly.NewContext()
	ctx.Put(ctxKind, kindDetail)
	ctx.Put(ctxRecord, rec)
	return s.collector.Request(http.MethodGet, target, nil, ctx, nil)
}

// resolve joins path onto the base URL; pages after the first get ?page=n.
func (s *Scraper) resolve(path string, page int) string {
	ref, err := url.Parse(path)
	if err != nil {
		ref = &url.URL{Path: path}
	}
	u := s.base.ResolveReference(ref)
	if page > 1 {
		u.RawQuery = "page=" + strconv.Itoa(page)
	}
	return u.String()
}

// markCity records path as seen for letter and reports whether it was new.
func (s *Scraper) markCity(letter, path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen, ok := s.seenCities[letter]
	if !ok {
		seen = make(map[string]struct{})
		s.seenCities[letter] = seen
	}
	if _, dup := seen[path]; dup {
		return false
	}
	seen[path] = struct{}{}
	return true
}

func (s *Scraper) recordError(err *RequestError) {
	atomic.AddInt64(&s.errorCount, 1)
	category := errorTypeLabel(err)

	s.mu.Lock()
	s.errorsByType[category]++
	s.mu.Unlock()

	slog.Error("request error",
		slog.String("url", err.URL),
		slog.String("category", category),
		slog.Int("status", err.Status),
		slog.Any("error", err.Err),
	)
	s.Metrics.IncError(category)
}

func (s *Scraper) snapshotFailedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.failedURLs))
	copy(out, s.failedURLs)
	return out
}

func (s *Scraper) snapshotErrors() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}
