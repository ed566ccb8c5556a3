// Package metrics provides Prometheus metrics for the fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fern"

var (
	// GroupingRunsTotal tracks grouping runs
	GroupingRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grouping",
			Name:      "runs_total",
			Help:      "Total number of document grouping runs",
		},
	)

	// GroupingDocuments tracks the size of grouping batches
	GroupingDocuments = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "grouping",
			Name:      "documents",
			Help:      "Number of documents per grouping run",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	// GroupingDuration tracks grouping run duration in seconds
	GroupingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "grouping",
			Name:      "duration_seconds",
			Help:      "Duration of grouping runs in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// SuggestedMergesTotal tracks suggested merges emitted by grouping
	SuggestedMergesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grouping",
			Name:      "suggested_merges_total",
			Help:      "Total number of suggested group merges",
		},
	)

	// MergesTotal tracks profile merge transactions by result
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "merge",
			Name:      "transactions_total",
			Help:      "Total number of profile merge transactions by result",
		},
		[]string{"result"},
	)

	// MergeFieldsUpdatedTotal tracks profile fields written by merges
	MergeFieldsUpdatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "merge",
			Name:      "fields_updated_total",
			Help:      "Total number of profile fields changed by merges",
		},
	)

	// MergeFieldsSkippedTotal tracks fields a merge declined to write
	MergeFieldsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "merge",
			Name:      "fields_skipped_total",
			Help:      "Total number of profile fields skipped by merges by reason",
		},
		[]string{"reason"},
	)

	// DateResolutionsTotal tracks date resolver outcomes
	DateResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mapping",
			Name:      "date_resolutions_total",
			Help:      "Total number of date resolution attempts by outcome",
		},
		[]string{"outcome"},
	)

	// KafkaMessagesTotal tracks consumed extraction messages by outcome
	KafkaMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kafka",
			Name:      "messages_total",
			Help:      "Total number of consumed Kafka messages by outcome",
		},
		[]string{"topic", "outcome"},
	)

	// KafkaPublishTotal tracks published events by status
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kafka",
			Name:      "publish_total",
			Help:      "Total number of Kafka publishes by status",
		},
		[]string{"topic", "status"},
	)
)

// RecordGrouping records one grouping run
func RecordGrouping(documents, suggestions int, durationSeconds float64) {
	GroupingRunsTotal.Inc()
	GroupingDocuments.Observe(float64(documents))
	GroupingDuration.Observe(durationSeconds)
	SuggestedMergesTotal.Add(float64(suggestions))
}

// RecordMerge records the outcome of a merge transaction
func RecordMerge(result string, fieldsUpdated int) {
	MergesTotal.WithLabelValues(result).Inc()
	MergeFieldsUpdatedTotal.Add(float64(fieldsUpdated))
}

// RecordSkippedField records one field a merge did not write
func RecordSkippedField(reason string) {
	MergeFieldsSkippedTotal.WithLabelValues(reason).Inc()
}

// RecordDateResolution records a date resolver outcome
func RecordDateResolution(outcome string) {
	DateResolutionsTotal.WithLabelValues(outcome).Inc()
}

// RecordKafkaMessage records a consumed message outcome
func RecordKafkaMessage(topic, outcome string) {
	KafkaMessagesTotal.WithLabelValues(topic, outcome).Inc()
}

// RecordKafkaPublish records a publish attempt
func RecordKafkaPublish(topic, status string) {
	KafkaPublishTotal.WithLabelValues(topic, status).Inc()
}
