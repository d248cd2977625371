// Package metrics holds the Prometheus collectors shared by the services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Submissions graded, by outcome
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astapp_submissions_total",
			Help: "Total number of graded submissions",
		},
		[]string{"outcome"}, // passed / failed
	)

	// Submission handling time, validation through promotion
	SubmissionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "astapp_submission_duration_seconds",
			Help:    "Time spent handling a submission",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Short-answer grading calls, by how the score was obtained
	GradingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astapp_grading_requests_total",
			Help: "Total number of short-answer grading calls",
		},
		[]string{"outcome"}, // parsed / recovered / provisional
	)

	// Individual HTTP attempts against the grading backend
	GradingAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astapp_grading_attempts_total",
			Help: "Total number of grading backend HTTP attempts",
		},
		[]string{"status"}, // 2xx / 4xx / 5xx / error
	)

	GradingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "astapp_grading_duration_seconds",
			Help:    "Time spent grading one short answer, retries included",
			Buckets: prometheus.DefBuckets,
		},
	)

	// AI form drafts, by outcome
	FormGenerations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astapp_form_generations_total",
			Help: "Total number of AI form generation requests",
		},
		[]string{"outcome"}, // generated / backend_error / unusable
	)

	// Promotion attempts, by resulting status
	Promotions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astapp_promotions_total",
			Help: "Total number of promotion attempts",
		},
		[]string{"status"}, // promoted / already_in_role / skipped / error
	)

	// Form cache lookups
	FormCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astapp_form_cache_lookups_total",
			Help: "Total number of parsed form cache lookups",
		},
		[]string{"result"}, // hit / miss / error
	)

	// Creators connected to live feeds
	FeedConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "astapp_feed_connections_current",
			Help: "Current number of live feed websocket connections",
		},
	)
)

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// StatusClass buckets an HTTP status code for the attempts counter
func StatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 200 && code < 300:
		return "2xx"
	}
	return "other"
}
