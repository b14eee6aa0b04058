package store

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

type pebbleMetric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(m *pebble.Metrics) float64
}

func pebbleDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc("scenesync_store_"+name, help, nil, nil)
}

var pebbleMetrics = []pebbleMetric{
	{pebbleDesc("compactions_total", "Compactions performed"), prometheus.CounterValue,
		func(m *pebble.Metrics) float64 { return float64(m.Compact.Count) }},
	{pebbleDesc("compaction_debt_bytes", "Estimated bytes to compact before the LSM is stable"), prometheus.GaugeValue,
		func(m *pebble.Metrics) float64 { return float64(m.Compact.EstimatedDebt) }},
	{pebbleDesc("compaction_in_progress_bytes", "Bytes in running compactions"), prometheus.GaugeValue,
		func(m *pebble.Metrics) float64 { return float64(m.Compact.InProgressBytes) }},
	{pebbleDesc("memtable_bytes", "Memtable size"), prometheus.GaugeValue,
		func(m *pebble.Metrics) float64 { return float64(m.MemTable.Size) }},
	{pebbleDesc("memtables", "Memtable count"), prometheus.GaugeValue,
		func(m *pebble.Metrics) float64 { return float64(m.MemTable.Count) }},
	{pebbleDesc("wal_files", "Live WAL files"), prometheus.GaugeValue,
		func(m *pebble.Metrics) float64 { return float64(m.WAL.Files) }},
	{pebbleDesc("wal_bytes", "Live WAL size"), prometheus.GaugeValue,
		func(m *pebble.Metrics) float64 { return float64(m.WAL.Size) }},
	{pebbleDesc("wal_written_bytes_total", "Bytes written to the WAL"), prometheus.CounterValue,
		func(m *pebble.Metrics) float64 { return float64(m.WAL.BytesWritten) }},
	{pebbleDesc("disk_bytes", "Disk space used by the store"), prometheus.GaugeValue,
		func(m *pebble.Metrics) float64 { return float64(m.DiskSpaceUsage()) }},
}

// Collector exports pebble metrics of a store. It reports nothing once the
// store is closed.
type Collector struct {
	s *Store
}

func (s *Store) Collector() *Collector { return &Collector{s: s} }

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, pm := range pebbleMetrics {
		ch <- pm.desc
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.s.db == nil {
		return
	}
	m := c.s.db.Metrics()
	for _, pm := range pebbleMetrics {
		ch <- prometheus.MustNewConstMetric(pm.desc, pm.kind, pm.value(m))
	}
}
