package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "idreset"

	metricLabelTarget = "target"
	metricLabelStatus = "status"
	metricLabelKind   = "kind"
	metricLabelStage  = "stage"
	metricLabelState  = "state"
)

// Metrics is the structure that holds all prometheus metrics
var (
	// ResetCounter counts reset runs per target and outcome
	ResetCounter = newCounterVec(
		"reset_count",
		"Number of reset runs",
		metricLabelTarget, metricLabelStatus,
	)
	// ResetDuration observes the duration of each reset run
	ResetDuration = newSummaryVec(
		"reset_duration_seconds",
		"Duration in seconds of each reset run",
		metricLabelTarget, metricLabelStatus,
	)
	// KeysUpdatedCounter counts rewritten telemetry keys
	KeysUpdatedCounter = newCounterVec(
		"keys_updated_count",
		"Number of telemetry keys rewritten",
		metricLabelTarget, metricLabelKind,
	)
	// KeysDeletedCounter counts removed session keys
	KeysDeletedCounter = newCounterVec(
		"keys_deleted_count",
		"Number of session keys removed",
		metricLabelTarget, metricLabelKind,
	)
	// RecordsCleanedCounter counts rows removed or reset by the sanitizer
	RecordsCleanedCounter = newCounterVec(
		"records_cleaned_count",
		"Number of database records removed or reset",
		metricLabelTarget,
	)
	// BytesFreedCounter counts bytes removed from cache directories
	BytesFreedCounter = newCounterVec(
		"cache_bytes_freed_total",
		"Bytes removed from cache directories",
		metricLabelTarget,
	)
	// StageErrorsCounter counts non fatal errors per pipeline stage
	StageErrorsCounter = newCounterVec(
		"stage_error_count",
		"Number of non fatal errors per pipeline stage",
		metricLabelTarget, metricLabelStage,
	)
	// BackupsCreatedCounter counts created snapshots
	BackupsCreatedCounter = newCounterVec(
		"backups_created_count",
		"Number of backups created",
		metricLabelTarget,
	)
	// ShutdownCounter counts process shutdowns per final state
	ShutdownCounter = newCounterVec(
		"shutdown_count",
		"Number of process shutdowns per final state",
		metricLabelTarget, metricLabelState,
	)
)

// WriteTextfile writes all registered metrics in the node exporter textfile format.
func WriteTextfile(filename string) error {
	return prometheus.WriteToTextfile(filename, prometheus.DefaultGatherer)
}

func newSummaryVec(name, help string, labels ...string) *prometheus.SummaryVec {
	vec := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	prometheus.MustRegister(vec)
	return vec
}

func newCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	prometheus.MustRegister(vec)
	return vec
}
