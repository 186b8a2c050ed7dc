// Package metrics exposes Prometheus collectors for the archiver's serving
// path. Job-level collectors live in the Prometheus side sink.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	submissionsTotal           *prometheus.CounterVec
	observersConnected         prometheus.Gauge
	deliveryFailuresTotal      prometheus.Counter
	sinkEventsDroppedTotal     prometheus.Counter

	once sync.Once
)

// otherSite labels submissions for hosts outside knownSites, keeping the
// site label's cardinality fixed no matter what users submit.
const otherSite = "other"

var knownSites = []string{
	"youtube.com",
	"youtu.be",
	"vimeo.com",
	"soundcloud.com",
	"bandcamp.com",
	"twitch.tv",
	"dailymotion.com",
	"tiktok.com",
	"twitter.com",
	"x.com",
	"instagram.com",
	"facebook.com",
	"reddit.com",
}

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		submissionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_submissions_total",
				Help: "Submissions received, labeled by source site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		observersConnected = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "archiver_observers_connected",
				Help: "Number of connected status observers.",
			},
		)

		deliveryFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archiver_broadcast_delivery_failures_total",
				Help: "Observers dropped because a message could not be delivered.",
			},
		)

		sinkEventsDroppedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archiver_sink_events_dropped_total",
				Help: "Events shed by the side-sink hub under backpressure.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// SiteLabel maps a submitted URL to a known site, or "other". Subdomains
// (www., m., music.) collapse onto their site.
func SiteLabel(rawURL string) string {
	host := SanitizeSite(rawURL)
	for _, site := range knownSites {
		if host == site || strings.HasSuffix(host, "."+site) {
			return site
		}
	}
	return otherSite
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveSubmission counts a submission by site and outcome.
func ObserveSubmission(rawURL string, accepted bool) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	submissionsTotal.WithLabelValues(SiteLabel(rawURL), outcome).Inc()
}

// SetObservers records the current observer count.
func SetObservers(n int) {
	observersConnected.Set(float64(n))
}

// ObserveDeliveryFailure counts one dropped observer.
func ObserveDeliveryFailure() {
	deliveryFailuresTotal.Inc()
}

// ObserveSinkDrop counts one event shed by the side-sink hub.
func ObserveSinkDrop() {
	sinkEventsDroppedTotal.Inc()
}
