package templates

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var selectionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "herald_template_selections",
	Help: "Number of template selections, by template and selection path (weighted or forced)",
}, []string{"template", "path"})
