package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aluiziolira/speisekarte-scraper/models"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	PagesTotal      *prometheus.CounterVec
	RecordsTotal    *prometheus.CounterVec
	FieldsMissing   *prometheus.CounterVec
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speisekarte_requests_total",
			Help: "HTTP requests issued, by page kind.",
		},
		[]string{"kind"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "speisekarte_request_duration_seconds",
			Help:    "HTTP request latency, by page kind.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speisekarte_pages_parsed_total",
			Help: "Pages parsed successfully, by page kind.",
		},
		[]string{"kind"},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speisekarte_records_emitted_total",
			Help: "Restaurant records sent to the pipeline, by completeness.",
		},
		[]string{"source"},
	)
	missing := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speisekarte_fields_missing_total",
			Help: "Emitted records lacking a field, by field.",
		},
		[]string{"field"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "speisekarte_retries_total",
			Help: "Retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speisekarte_errors_total",
			Help: "Request errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, pages, records, missing, retries, errorsTotal)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		PagesTotal:      pages,
		RecordsTotal:    records,
		FieldsMissing:   missing,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
	}
}

// IncRequest increments the requests counter for a page kind.
func (m *Metrics) IncRequest(kind string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(kind).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// IncPage counts a parsed page.
func (m *Metrics) IncPage(kind string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(kind).Inc()
}

// ObserveRecord counts an emitted record and each optional field it lacks.
func (m *Metrics) ObserveRecord(source string, rec *models.Restaurant) {
	if m == nil || rec == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(source).Inc()
	for field, value := range map[string]*string{
		"title":          rec.Title,
		"restaurant_url": rec.RestaurantURL,
		"desc_1":         rec.Desc1,
		"desc_2":         rec.Desc2,
		"favourite_dish": rec.FavouriteDishName,
		"rating_exact":   rec.RatingExact,
		"opening_hours":  rec.OpeningHours,
		"services":       rec.Services,
		"address":        rec.Address,
	} {
		if value == nil {
			m.FieldsMissing.WithLabelValues(field).Inc()
		}
	}
	if rec.Empfehlungen == nil {
		m.FieldsMissing.WithLabelValues("empfehlungen").Inc()
	}
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
