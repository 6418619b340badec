// Package metrics exposes Prometheus collectors for the scraper service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScraperRequests counts acquisition operations by store and path
	// (primary or fallback).
	ScraperRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gameprice_scraper_requests_total",
		Help: "Acquisition operations, labeled by store and extraction path.",
	}, []string{"store", "path"})

	// ScraperFallbacks counts sticky primary-to-fallback downgrades.
	ScraperFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gameprice_scraper_fallbacks_total",
		Help: "Sticky downgrades from the primary to the fallback path.",
	}, []string{"store"})

	// ListingsExtracted counts raw listings produced per store.
	ListingsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gameprice_listings_extracted_total",
		Help: "Raw listings extracted, labeled by store.",
	}, []string{"store"})

	// NotificationsCreated counts wishlist notifications by kind.
	NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gameprice_notifications_created_total",
		Help: "Notifications created by the history engine, labeled by kind.",
	}, []string{"kind"})

	// HTTPRequestDuration observes API latency per route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gameprice_http_request_duration_seconds",
		Help:    "HTTP request latency, labeled by method, route, and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
