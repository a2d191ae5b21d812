package patch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "taskgrid_patch_operations_total",
	Help: "Operations processed by the patch engine, by op and result",
}, []string{"op", "result"})
