// Package metrics exports dispatcher statistics to Prometheus.
//
//	c := metrics.NewCollector("myapp")
//	prometheus.MustRegister(c)
//	c.Track("orders", d)
//	defer c.Untrack("orders")
package metrics

import (
	"sort"
	"sync"

	"github.com/copyout/copyout-go"
	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "copyout"

// StatsProvider is implemented by *copyout.Dispatcher.
type StatsProvider interface {
	Stats() copyout.Stats
}

// Collector is a prometheus.Collector reporting every tracked dispatcher,
// labelled by the name it was tracked under. Values are read at scrape time.
type Collector struct {
	mu      sync.Mutex
	tracked map[string]StatsProvider

	rows        *prometheus.Desc
	bytes       *prometheus.Desc
	reads       *prometheus.Desc
	grows       *prometheus.Desc
	compactions *prometheus.Desc
	capacity    *prometheus.Desc
	state       *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(namespace string) *Collector {
	stream := []string{"stream"}
	return &Collector{
		tracked: make(map[string]StatsProvider),
		rows: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, "rows_total"),
			"Rows delivered to the handler.", stream, nil),
		bytes: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, "row_bytes_total"),
			"Row bytes delivered to the handler, excluding framing.", stream, nil),
		reads: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, "source_reads_total"),
			"Calls to the byte source.", stream, nil),
		grows: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, "buffer_grows_total"),
			"Stream buffer reallocations.", stream, nil),
		compactions: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, "buffer_compactions_total"),
			"Times pending bytes were moved to the front of the stream buffer.", stream, nil),
		capacity: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, "buffer_capacity_bytes"),
			"Current stream buffer capacity, zero once released.", stream, nil),
		state: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, "stream_state"),
			"Lifecycle state of the stream; the series with value 1 is current.",
			[]string{"stream", "state", "reason"}, nil),
	}
}

// Track starts reporting p under name, replacing any provider already
// tracked under that name.
func (c *Collector) Track(name string, p StatsProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracked[name] = p
}

func (c *Collector) Untrack(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tracked, name)
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rows
	ch <- c.bytes
	ch <- c.reads
	ch <- c.grows
	ch <- c.compactions
	ch <- c.capacity
	ch <- c.state
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	names := make([]string, 0, len(c.tracked))
	for name := range c.tracked {
		names = append(names, name)
	}
	providers := make([]StatsProvider, len(names))
	sort.Strings(names)
	for i, name := range names {
		providers[i] = c.tracked[name]
	}
	c.mu.Unlock()

	for i, name := range names {
		st := providers[i].Stats()
		ch <- prometheus.MustNewConstMetric(c.rows, prometheus.CounterValue, float64(st.Rows), name)
		ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.CounterValue, float64(st.Bytes), name)
		ch <- prometheus.MustNewConstMetric(c.reads, prometheus.CounterValue, float64(st.Reads), name)
		ch <- prometheus.MustNewConstMetric(c.grows, prometheus.CounterValue, float64(st.Grows), name)
		ch <- prometheus.MustNewConstMetric(c.compactions, prometheus.CounterValue, float64(st.Compactions), name)
		ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(st.Capacity), name)
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, 1, name, st.State.String(), st.Reason.String())
	}
}
