// Package metrics holds the process-wide Prometheus collectors for the
// backup and restore engines, in the same style as the collector wiring used elsewhere in this codebase.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	BackupDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medusa_backup_duration_seconds",
			Help:    "Time taken to complete a per-node backup, by mode",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
		},
		[]string{"mode"},
	)

	BackupBytesUploaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "medusa_backup_bytes_uploaded_total",
			Help: "Total bytes uploaded to the storage backend across all backups",
		},
	)

	BackupFilesUploaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "medusa_backup_files_uploaded_total",
			Help: "Total SSTable files uploaded because they were not already present in storage",
		},
	)

	BackupFilesCached = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "medusa_backup_files_cached_total",
			Help: "Total SSTable files skipped because an identical object was already present",
		},
	)

	BackupLastSuccessTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "medusa_backup_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last backup a node finished successfully",
		},
		[]string{"fqdn"},
	)

	RestoreDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "medusa_restore_duration_seconds",
			Help:    "Time taken to complete a cluster restore",
			Buckets: []float64{30, 60, 300, 900, 1800, 3600, 7200, 14400},
		},
	)

	RestoreHostsFailed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "medusa_restore_hosts_failed",
			Help: "Number of hosts that failed during the most recent cluster restore",
		},
	)
)

func init() {
	prometheus.MustRegister(
		BackupDurationSeconds,
		BackupBytesUploaded,
		BackupFilesUploaded,
		BackupFilesCached,
		BackupLastSuccessTimestamp,
		RestoreDurationSeconds,
		RestoreHostsFailed,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// PushGateway pushes the current registry of metrics to a Prometheus
// PushGateway at url, for callers that run as a one-shot job (e.g.
// report-last-backup) rather than serving a long-lived /metrics endpoint.
func PushGateway(url, job string) error {
	return push.New(url, job).
		Collector(BackupDurationSeconds).
		Collector(BackupBytesUploaded).
		Collector(BackupFilesUploaded).
		Collector(BackupFilesCached).
		Collector(BackupLastSuccessTimestamp).
		Collector(RestoreDurationSeconds).
		Collector(RestoreHostsFailed).
		Push()
}
