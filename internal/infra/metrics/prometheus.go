package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_dataset_runs_processed_total",
		Help: "Total number of dataset runs processed, by kind and status",
	}, []string{"kind", "status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fiapx_dataset_stage_duration_seconds",
		Help:    "Duration of each dataset pipeline stage",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesSavedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiapx_dataset_frames_saved_total",
		Help: "Total number of frames written by the extractor",
	})

	PairsPackagedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiapx_dataset_pairs_packaged_total",
		Help: "Total number of image/label pairs written into archives",
	})

	UnmatchedItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_dataset_unmatched_items_total",
		Help: "Images without labels and labels without images seen by reconciliation",
	}, []string{"kind"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fiapx_dataset_active_workers",
		Help: "Number of currently active workers processing runs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_dataset_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)
