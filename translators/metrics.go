package translators

import "github.com/prometheus/client_golang/prometheus"

var CreateQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "scenesync",
	Subsystem: "translators",
	Name:      "create_queue_depth",
	Help:      "Remote objects waiting to be materialized.",
})

var AssetConflicts = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "scenesync",
	Subsystem: "translators",
	Name:      "asset_conflicts",
	Help:      "Assets that differ from the server version and are not synced.",
})

var ActorsUploaded = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "scenesync",
	Subsystem: "translators",
	Name:      "actors_uploaded",
})

var ActorsRecreated = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "scenesync",
	Subsystem: "translators",
	Name:      "actors_recreated",
	Help:      "Locked actors deleted locally and restored from the server.",
})

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{CreateQueueDepth, AssetConflicts, ActorsUploaded, ActorsRecreated}
}
