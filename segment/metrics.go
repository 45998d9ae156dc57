package segment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var segmentCount = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "herald_segment_count",
	Help:    "Number of segments produced per processed post",
	Buckets: []float64{1, 2, 3, 4, 6, 8, 12},
})
