package loader

import "github.com/prometheus/client_golang/prometheus"

var AssetsLoaded = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "scenesync",
	Subsystem: "loader",
	Name:      "assets_loaded",
})

var StandInsCreated = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "scenesync",
	Subsystem: "loader",
	Name:      "standins_created",
})

var StandInsReplaced = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "scenesync",
	Subsystem: "loader",
	Name:      "standins_replaced",
})

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{AssetsLoaded, StandInsCreated, StandInsReplaced}
}
