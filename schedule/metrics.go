package schedule

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cycleCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "herald_schedule_cycles",
	Help: "Scheduler loop iterations and cycle results, by stream and outcome",
}, []string{"stream", "outcome"})

var cycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "herald_schedule_cycle_duration_sec",
	Help: "Duration of stream cycles",
}, []string{"stream"})
