package platform

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var recordCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "herald_platform_records",
	Help: "Record creation calls, by collection and result",
}, []string{"collection", "result"})

var loginCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "herald_platform_logins",
	Help: "Session creation attempts, by result",
}, []string{"result"})

var gateCoalesced = promauto.NewCounter(prometheus.CounterOpts{
	Name: "herald_platform_session_waits",
	Help: "Callers which waited on an in-flight session login instead of starting their own",
})
