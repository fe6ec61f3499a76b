package rmetrics

import "time"

// StatsSource is implemented by the container/indexmanager layer so the
// collector can sample gauge-shaped state without importing those packages
// (which would otherwise import rmetrics, creating a cycle).
type StatsSource interface {
	// IndexStates returns the current persisted state (as its numeric code)
	// of every registered index, keyed by index name.
	IndexStates() map[string]int
	// PendingSessionChanges returns the total number of pending inserts and
	// deletes across every open change-tracking session.
	PendingSessionChanges() int
}

// Collector periodically samples a StatsSource into the package-level gauges.
type Collector struct {
	source StatsSource
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector for source.
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins periodic collection on its own goroutine.
func (c *Collector) Start(interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
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

// Stop halts periodic collection.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	for name, state := range c.source.IndexStates() {
		IndexState.WithLabelValues(name).Set(float64(state))
	}
	SessionPendingChanges.Set(float64(c.source.PendingSessionChanges()))
}
