package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StyleChangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roadstation_style_changes_total",
		Help: "Total style mutations by action (change, reset)",
	}, []string{"action"})
	ShareLinksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roadstation_share_links_total",
		Help: "Total shared links generated",
	})
	DecodeFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roadstation_decode_failures_total",
		Help: "Total malformed style groups in shared links",
	})
	StorageErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roadstation_storage_errors_total",
		Help: "Total durable storage failures by operation",
	}, []string{"op"})
	SharedCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roadstation_shared_cache_hits_total",
		Help: "Total decoded shared payloads served from cache",
	})
	ScrapedStationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roadstation_scraped_stations_total",
		Help: "Total station detail pages scraped",
	})
	ScrapeDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "roadstation_scrape_duration_seconds",
		Help:    "Dataset refresh duration in seconds",
		Buckets: []float64{60, 300, 900, 1800, 3600, 7200},
	})
)

func init() {
	prometheus.MustRegister(StyleChangesTotal)
	prometheus.MustRegister(ShareLinksTotal)
	prometheus.MustRegister(DecodeFailuresTotal)
	prometheus.MustRegister(StorageErrorsTotal)
	prometheus.MustRegister(SharedCacheHitsTotal)
	prometheus.MustRegister(ScrapedStationsTotal)
	prometheus.MustRegister(ScrapeDurationSeconds)
}

// Handler exposes the registered metrics
func Handler() http.Handler { return promhttp.Handler() }
