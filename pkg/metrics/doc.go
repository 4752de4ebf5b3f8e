/*
Package metrics exposes Prometheus counters, gauges and histograms for
the package manager core: installed trove/repository gauges sampled by
Collector, and per-operation counters and histograms (install, remove,
rollback, update, verify, resolution, delta, repository sync, download)
updated inline by the packages that perform those operations.

Handler returns the standard promhttp handler; the caller mounts it on
its own HTTP mux. This package never starts a listener of its own.
*/
package metrics
