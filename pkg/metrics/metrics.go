package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Trove metrics
	TrovesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "truss_troves_total",
			Help: "Total number of installed troves by kind",
		},
		[]string{"kind"},
	)

	RepositoriesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "truss_repositories_total",
			Help: "Total number of configured repositories by enabled status",
		},
		[]string{"enabled"},
	)

	// Changeset lifecycle metrics
	ChangesetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truss_changesets_total",
			Help: "Total number of changesets by operation and status",
		},
		[]string{"operation", "status"},
	)

	InstallDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "truss_install_duration_seconds",
			Help:    "Time taken to install a trove in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RemoveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "truss_remove_duration_seconds",
			Help:    "Time taken to remove a trove in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RollbackDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "truss_rollback_duration_seconds",
			Help:    "Time taken to roll back a changeset in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	UpdateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "truss_update_duration_seconds",
			Help:    "Time taken to update a trove in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	VerifyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "truss_verify_duration_seconds",
			Help:    "Time taken to verify the installed set against the CAS in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	VerifyMismatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "truss_verify_mismatches_total",
			Help: "Total number of files found mismatched during verify",
		},
	)

	// Resolver metrics
	ResolutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "truss_resolution_duration_seconds",
			Help:    "Time taken to resolve a dependency graph in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ResolutionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truss_resolution_failures_total",
			Help: "Total number of resolution failures by error kind",
		},
		[]string{"kind"},
	)

	// Delta engine metrics
	DeltaBytesSavedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "truss_delta_bytes_saved_total",
			Help: "Total bytes saved by applying deltas instead of full downloads",
		},
	)

	DeltaApplicationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truss_delta_applications_total",
			Help: "Total number of delta applications by outcome",
		},
		[]string{"outcome"},
	)

	DeltaCompressionRatio = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "truss_delta_compression_ratio",
			Help:    "Ratio of delta size to full package size",
			Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.7, 0.9, 1.0},
		},
	)

	// Repository sync metrics
	RepoSyncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "truss_repo_sync_duration_seconds",
			Help:    "Repository sync duration in seconds by repository",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"repository"},
	)

	RepoSyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truss_repo_sync_total",
			Help: "Total number of repository syncs by repository and status",
		},
		[]string{"repository", "status"},
	)

	// Fetch metrics
	DownloadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "truss_download_duration_seconds",
			Help:    "Package/index download duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DownloadRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "truss_download_retries_total",
			Help: "Total number of download attempts that needed a retry",
		},
	)

	ChecksumMismatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "truss_checksum_mismatches_total",
			Help: "Total number of downloads that failed checksum verification",
		},
	)
)

func init() {
	prometheus.MustRegister(TrovesTotal)
	prometheus.MustRegister(RepositoriesTotal)
	prometheus.MustRegister(ChangesetsTotal)
	prometheus.MustRegister(InstallDuration)
	prometheus.MustRegister(RemoveDuration)
	prometheus.MustRegister(RollbackDuration)
	prometheus.MustRegister(UpdateDuration)
	prometheus.MustRegister(VerifyDuration)
	prometheus.MustRegister(VerifyMismatchesTotal)
	prometheus.MustRegister(ResolutionDuration)
	prometheus.MustRegister(ResolutionFailuresTotal)
	prometheus.MustRegister(DeltaBytesSavedTotal)
	prometheus.MustRegister(DeltaApplicationsTotal)
	prometheus.MustRegister(DeltaCompressionRatio)
	prometheus.MustRegister(RepoSyncDuration)
	prometheus.MustRegister(RepoSyncTotal)
	prometheus.MustRegister(DownloadDuration)
	prometheus.MustRegister(DownloadRetriesTotal)
	prometheus.MustRegister(ChecksumMismatchesTotal)
}

// Handler returns the Prometheus HTTP handler for the caller to mount
// on its own mux; this package never starts a listener itself.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
