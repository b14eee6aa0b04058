package server

import "github.com/prometheus/client_golang/prometheus"

var MessagesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "scenesync",
	Subsystem: "server",
	Name:      "messages_received",
}, []string{"kind"})

var MessagesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "scenesync",
	Subsystem: "server",
	Name:      "messages_rejected",
}, []string{"kind"})

var ObjectCount = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "scenesync",
	Subsystem: "server",
	Name:      "objects",
})

var LockCount = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "scenesync",
	Subsystem: "server",
	Name:      "locks",
})

var UserCount = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "scenesync",
	Subsystem: "server",
	Name:      "users",
})

// Collectors returns every server metric for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{MessagesReceived, MessagesRejected, ObjectCount, LockCount, UserCount}
}
