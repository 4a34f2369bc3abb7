// Package metrics exposes Prometheus collectors for the extraction
// pipeline. Collectors register on the default registry at init so
// any package can increment them without wiring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExtractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statement_extractions_total",
		Help: "Completed extraction attempts by bank and outcome.",
	}, []string{"bank", "outcome"})

	ExtractionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statement_extraction_duration_seconds",
		Help:    "Wall time of a full statement extraction.",
		Buckets: prometheus.DefBuckets,
	}, []string{"bank"})

	ResolverCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statement_resolver_cache_hits_total",
		Help: "Extractor resolutions served from the instance cache.",
	})

	ResolverCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statement_resolver_cache_misses_total",
		Help: "Extractor resolutions that required a fresh load.",
	})

	JobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "statement_jobs_in_flight",
		Help: "Jobs currently being processed by workers.",
	})

	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statement_jobs_total",
		Help: "Jobs finished by terminal status.",
	}, []string{"status"})

	ExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statement_exports_total",
		Help: "Statement exports generated by format.",
	}, []string{"format"})

	PagesExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statement_pdf_pages_extracted_total",
		Help: "PDF pages run through text extraction.",
	})
)
