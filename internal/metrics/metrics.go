package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wishlist_classifications_total",
			Help: "Total number of URLs classified",
		},
		[]string{"site", "valid"},
	)

	ScrapeSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wishlist_scrape_sessions_total",
			Help: "Total number of scrape sessions by outcome",
		},
		[]string{"site", "outcome"},
	)

	ScrapeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wishlist_scrape_duration_seconds",
			Help:    "Duration of scrape sessions in seconds",
			Buckets: []float64{0.5, 1, 2, 3, 5, 10, 20, 35},
		},
		[]string{"site"},
	)

	EntryWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wishlist_entry_writes_total",
			Help: "Total number of per-wishlist entry writes",
		},
		[]string{"status"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wishlist_cache_lookups_total",
			Help: "Product cache lookups by result",
		},
		[]string{"result"},
	)
)

// RecordClassification counts one classification result.
func RecordClassification(site string, valid bool) {
	if site == "" {
		site = "none"
	}
	validStr := "false"
	if valid {
		validStr = "true"
	}
	ClassificationsTotal.WithLabelValues(site, validStr).Inc()
}

// RecordScrape counts a finished session. outcome is "success" or the
// failure reason.
func RecordScrape(site, outcome string, d time.Duration) {
	ScrapeSessionsTotal.WithLabelValues(site, outcome).Inc()
	ScrapeDuration.WithLabelValues(site).Observe(d.Seconds())
}

func RecordWrites(succeeded, failed int) {
	EntryWritesTotal.WithLabelValues("success").Add(float64(succeeded))
	EntryWritesTotal.WithLabelValues("failure").Add(float64(failed))
}

func RecordCache(hit bool) {
	if hit {
		CacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	CacheLookupsTotal.WithLabelValues("miss").Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
