package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	flushDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "taskgrid_cache_flush_duration_seconds",
		Help:    "Duration of one write-behind flush cycle",
		Buckets: prometheus.DefBuckets,
	})

	documentsFlushedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskgrid_cache_documents_flushed_total",
		Help: "Projects written by the flush loop",
	})

	flushFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskgrid_cache_flush_failures_total",
		Help: "Project writes that failed and were re-queued",
	})

	dirtyDocuments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskgrid_cache_dirty_documents",
		Help: "Projects with changes not yet written",
	})

	cachedDocuments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskgrid_cache_documents",
		Help: "Projects held in memory",
	})
)
