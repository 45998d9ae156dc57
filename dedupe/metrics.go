package dedupe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var seenCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "herald_dedupe_checks",
	Help: "Processed-item lookups, by where the answer came from",
}, []string{"result"})
