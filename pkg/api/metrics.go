package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leadsplit",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route pattern and status code.",
	}, []string{"method", "route", "status"})
	metricRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "leadsplit",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
	metricUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leadsplit",
		Name:      "uploads_total",
		Help:      "Uploaded files by outcome code.",
	}, []string{"outcome"})
	metricRecordsDistributed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "leadsplit",
		Name:      "records_distributed_total",
		Help:      "Contact records assigned to agents.",
	})
	metricLogins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leadsplit",
		Name:      "login_attempts_total",
		Help:      "Operator login attempts by outcome.",
	}, []string{"outcome"})
)
