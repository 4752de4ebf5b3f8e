package metrics

import (
	"time"

	"github.com/cuemby/truss/pkg/storage"
)

// Collector periodically samples gauge-shaped state (installed trove
// counts, repository counts) from the store. Counters and histograms
// are updated inline by the callers that produce them (pkg/txn,
// pkg/resolver, pkg/repocatalog, pkg/delta, pkg/fetch).
type Collector struct {
	store  *storage.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over store.
func NewCollector(store *storage.Store) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins periodic collection on a 15-second interval.
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

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectTroveMetrics()
	c.collectRepositoryMetrics()
}

func (c *Collector) collectTroveMetrics() {
	troves, err := storage.ListTroves(c.store.DB())
	if err != nil {
		return
	}

	counts := map[string]int{}
	for _, t := range troves {
		counts[string(t.Kind)]++
	}
	for kind, count := range counts {
		TrovesTotal.WithLabelValues(kind).Set(float64(count))
	}
}

func (c *Collector) collectRepositoryMetrics() {
	repos, err := storage.ListRepositories(c.store.DB())
	if err != nil {
		return
	}

	var enabled, disabled int
	for _, r := range repos {
		if r.Enabled {
			enabled++
		} else {
			disabled++
		}
	}
	RepositoriesTotal.WithLabelValues("true").Set(float64(enabled))
	RepositoriesTotal.WithLabelValues("false").Set(float64(disabled))
}
