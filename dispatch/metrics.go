package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var taskCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "herald_dispatch_tasks",
	Help: "Number of dispatch task attempts, by outcome",
}, []string{"outcome"})

var taskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "herald_dispatch_task_duration_sec",
	Help: "Duration of individual dispatch task attempts",
})

var queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "herald_dispatch_queue_depth",
	Help: "Number of tasks waiting in the dispatch queue",
})
