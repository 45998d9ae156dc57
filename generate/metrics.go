package generate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var generationCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "herald_generations",
	Help: "Generation requests, by provider and result",
}, []string{"provider", "result"})

var generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "herald_generation_duration_sec",
	Help:    "Duration of generation requests",
	Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
}, []string{"provider"})
