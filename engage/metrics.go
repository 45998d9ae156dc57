package engage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var itemCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "herald_engage_items",
	Help: "Timeline items considered for engagement, by outcome",
}, []string{"outcome"})

var actionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "herald_engage_actions",
	Help: "Engagement actions attempted, by action and result",
}, []string{"action", "result"})
