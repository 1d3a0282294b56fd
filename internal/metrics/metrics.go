// Package metrics provides Prometheus instruments for archiver runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archiver_runs_total",
		Help: "Total number of archiver runs, by outcome.",
	}, []string{"outcome"})

	LastRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "archiver_last_run_timestamp_seconds",
		Help: "Unix time at which the last archiver run finished.",
	})

	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archiver_downloads_total",
		Help: "Total number of recordings downloaded, by category.",
	}, []string{"category"})

	DownloadedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archiver_downloaded_bytes_total",
		Help: "Total number of bytes of recordings downloaded.",
	})

	SkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archiver_skipped_broadcasts_total",
		Help: "Total number of broadcasts skipped, by reason.",
	}, []string{"reason"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archiver_notifications_total",
		Help: "Total number of notifications attempted, by kind and outcome.",
	}, []string{"kind", "outcome"})

	LiveBroadcasts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "archiver_live_broadcasts",
		Help: "Number of broadcasts live as of the last run.",
	})

	ScheduleGaps = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "archiver_schedule_gaps",
		Help: "Number of expected services with no broadcast scheduled, as of the last lookahead check.",
	})
)

// ObserveNotification records the outcome of a notification attempt
func ObserveNotification(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	NotificationsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveSkip records a skipped broadcast
func ObserveSkip(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	SkippedTotal.WithLabelValues(reason).Inc()
}
