package props

import "github.com/prometheus/client_golang/prometheus"

var PropertiesPushed = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "scenesync",
	Subsystem: "props",
	Name:      "pushed",
	Help:      "Local field values sent to the server.",
})

var PropertiesReverted = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "scenesync",
	Subsystem: "props",
	Name:      "reverted",
	Help:      "Local edits of locked objects overwritten by the server value.",
})

var PropertiesApplied = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "scenesync",
	Subsystem: "props",
	Name:      "applied",
})

var ContainersRehashed = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "scenesync",
	Subsystem: "props",
	Name:      "rehashed",
})

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{PropertiesPushed, PropertiesReverted, PropertiesApplied, ContainersRehashed}
}
