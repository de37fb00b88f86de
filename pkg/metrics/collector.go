// Package metrics exports perfee group aggregates as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/psantana5/perfee/pkg/strategy"
)

// SnapshotSource is implemented by strategies and by the perfee engine
type SnapshotSource interface {
	Snapshot() strategy.Snapshot
}

// Collector is a prometheus.Collector reading a fresh snapshot on every
// scrape. With the on-demand strategy a scrape resolves buffered entries,
// exactly like a call to GetLogs.
type Collector struct {
	source SnapshotSource

	hits       *prometheus.Desc
	cumulative *prometheus.Desc
	mean       *prometheus.Desc
	stdev      *prometheus.Desc
	max        *prometheus.Desc
	open       *prometheus.Desc
	entries    *prometheus.Desc
}

// NewCollector creates a collector for source. constLabels are attached to
// every metric.
func NewCollector(source SnapshotSource, constLabels prometheus.Labels) *Collector {
	group := []string{"group"}
	return &Collector{
		source: source,
		hits: prometheus.NewDesc(
			"perfee_group_hits",
			"Number of resolved entries per group since the last reset",
			group, constLabels,
		),
		cumulative: prometheus.NewDesc(
			"perfee_group_duration_seconds",
			"Cumulative elapsed time per group since the last reset",
			group, constLabels,
		),
		mean: prometheus.NewDesc(
			"perfee_group_mean_seconds",
			"Mean elapsed time per group",
			group, constLabels,
		),
		stdev: prometheus.NewDesc(
			"perfee_group_stdev_seconds",
			"Population standard deviation of the elapsed time per group",
			group, constLabels,
		),
		max: prometheus.NewDesc(
			"perfee_group_max_seconds",
			"Longest elapsed time per group",
			group, constLabels,
		),
		open: prometheus.NewDesc(
			"perfee_open_entries",
			"Entries opened and not yet closed",
			[]string{"kind"}, constLabels,
		),
		entries: prometheus.NewDesc(
			"perfee_single_entries",
			"Resolved single entries currently reported",
			nil, constLabels,
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.cumulative
	ch <- c.mean
	ch <- c.stdev
	ch <- c.max
	ch <- c.open
	ch <- c.entries
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, float64(s.OpenSingle), "single")
	ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, float64(s.OpenGroup), "group")
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(len(s.Entries)))

	for _, g := range s.Groups {
		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.GaugeValue, float64(g.Hits), g.Name)
		ch <- prometheus.MustNewConstMetric(c.cumulative, prometheus.GaugeValue, g.Cumulative.Seconds(), g.Name)
		ch <- prometheus.MustNewConstMetric(c.mean, prometheus.GaugeValue, g.Mean.Seconds(), g.Name)
		ch <- prometheus.MustNewConstMetric(c.stdev, prometheus.GaugeValue, g.StdDev.Seconds(), g.Name)
		ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, g.Max.Seconds(), g.Name)
	}
}
