package leafdb

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "leafdb"

type metric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(Stats) float64
}

// Collector exports DB statistics to Prometheus.
type Collector struct {
	db      *DB
	metrics []metric
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector for db. Register it with a
// prometheus.Registerer; every scrape reads db.Stats.
func NewCollector(db *DB) *Collector {
	labels := prometheus.Labels{"db": db.ID().String()}
	newMetric := func(name, help string, kind prometheus.ValueType, value func(Stats) float64) metric {
		return metric{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", name), help, nil, labels),
			kind:  kind,
			value: value,
		}
	}

	counter, gauge := prometheus.CounterValue, prometheus.GaugeValue
	return &Collector{
		db: db,
		metrics: []metric{
			newMetric("entries", "Number of keys stored.", gauge,
				func(s Stats) float64 { return float64(s.Entries) }),
			newMetric("tree_depth", "Number of levels in the tree.", gauge,
				func(s Stats) float64 { return float64(s.Depth) }),
			newMetric("pages", "Number of pages in the file.", gauge,
				func(s Stats) float64 { return float64(s.PageCount) }),
			newMetric("free_pages", "Number of pages available for reuse.", gauge,
				func(s Stats) float64 { return float64(s.FreePages) }),
			newMetric("meta_writes_total", "Meta page writes.", counter,
				func(s Stats) float64 { return float64(s.Generation) }),
			newMetric("page_reads_total", "Pages read from the file.", counter,
				func(s Stats) float64 { return float64(s.Reads) }),
			newMetric("page_writes_total", "Pages written to the file.", counter,
				func(s Stats) float64 { return float64(s.Writes) }),
			newMetric("syncs_total", "File syncs.", counter,
				func(s Stats) float64 { return float64(s.Syncs) }),
			newMetric("page_allocations_total", "Pages allocated.", counter,
				func(s Stats) float64 { return float64(s.Allocations) }),
			newMetric("page_frees_total", "Pages freed.", counter,
				func(s Stats) float64 { return float64(s.Frees) }),
			newMetric("written_bytes_total", "Bytes written to the file.", counter,
				func(s Stats) float64 { return float64(s.BytesWritten) }),
			newMetric("cache_hits_total", "Page cache hits.", counter,
				func(s Stats) float64 { return float64(s.CacheHits) }),
			newMetric("cache_misses_total", "Page cache misses.", counter,
				func(s Stats) float64 { return float64(s.CacheMisses) }),
			newMetric("cache_evictions_total", "Page cache evictions.", counter,
				func(s Stats) float64 { return float64(s.CacheEvictions) }),
			newMetric("filter_skips_total", "Lookups answered by the bloom filter.", counter,
				func(s Stats) float64 { return float64(s.FilterSkips) }),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.db.Stats()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(stats))
	}
}
