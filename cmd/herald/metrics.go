package main

import (
	"github.com/carlmjohnson/versioninfo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "herald_build_info",
	Help: "Always 1; labelled with the running version",
}, []string{"version"})

func init() {
	buildInfo.WithLabelValues(versioninfo.Short()).Set(1)
}
