package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	backupOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskgrid_backup_operations_total",
		Help: "Milestone backups attempted, by result",
	}, []string{"result"})

	backupDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "taskgrid_backup_duration_seconds",
		Help:    "Time spent writing a milestone backup",
		Buckets: prometheus.DefBuckets,
	})

	renameRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskgrid_atomic_rename_retries_total",
		Help: "Renames retried after a transient failure",
	})
)
