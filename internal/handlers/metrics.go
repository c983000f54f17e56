package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clip-merger/internal/logging"
)

const (
	metricsMaxScrapes    = 2
	metricsScrapeTimeout = 10 * time.Second
)

// scrapeErrorLog routes gather errors to the application log.
type scrapeErrorLog struct{}

func (scrapeErrorLog) Println(v ...interface{}) {
	logging.Warn("metrics scrape: %s", fmt.Sprint(v...))
}

// MetricsHandler serves the Prometheus exposition on the metrics port.
// A failing collector is logged and skipped; the rest is still served.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorLog:            scrapeErrorLog{},
			ErrorHandling:       promhttp.ContinueOnError,
			MaxRequestsInFlight: metricsMaxScrapes,
			Timeout:             metricsScrapeTimeout,
		}))
}
