package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var postCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "herald_agent_posts",
	Help: "Publish attempts of generated content, by stream and result",
}, []string{"stream", "result"})
