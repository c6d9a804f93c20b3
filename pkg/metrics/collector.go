package metrics

import "time"

// StatsSource is the narrow read surface the collector needs to populate
// gauges. pkg/storage's BoltEventStore implements it; defined here instead of
// imported to keep pkg/metrics dependency-free of the storage layer.
type StatsSource interface {
	CountEventsByStatus() (map[string]int, error)
}

// Collector periodically polls a StatsSource and updates gauge metrics.
// Counters and histograms are updated inline by their owning components;
// this only covers point-in-time counts that nothing else touches on
// every operation.
type Collector struct {
	source StatsSource
	stopCh chan struct{}
}

// NewCollector builds a Collector over the given stats source.
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins the polling loop in the background.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the polling loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	counts, err := c.source.CountEventsByStatus()
	if err != nil {
		return
	}
	for status, n := range counts {
		EventsTotal.WithLabelValues(status).Set(float64(n))
	}
}
