// Package metrics defines the Prometheus collectors recorded while the
// pipeline runs. The pipeline is a batch job, so metrics are kept on a
// private registry and written out in the textfile exposition format at
// the end of a run rather than served over HTTP.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all collectors for one pipeline run.
type Metrics struct {
	Registry              *prometheus.Registry
	StageDuration         *prometheus.GaugeVec
	StageRunsTotal        *prometheus.CounterVec
	DocumentsEncoded      prometheus.Counter
	TokensEncoded         prometheus.Counter
	DatasetBytesWritten   prometheus.Counter
	DatasetFilesWritten   prometheus.Counter
	VocabularySize        prometheus.Gauge
	DictionaryEntries     *prometheus.GaugeVec
	LastSuccessfulRunTime prometheus.Gauge
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		StageDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bpe_prep_stage_duration_seconds",
				Help: "Wall time of the last execution of each stage.",
			},
			[]string{"stage"},
		),
		StageRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bpe_prep_stage_runs_total",
				Help: "Stage invocations by outcome (completed, skipped, failed).",
			},
			[]string{"stage", "outcome"},
		),
		DocumentsEncoded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bpe_prep_documents_encoded_total",
				Help: "Documents written to dataset blocks.",
			},
		),
		TokensEncoded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bpe_prep_tokens_encoded_total",
				Help: "Token ids written to dataset blocks.",
			},
		),
		DatasetBytesWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bpe_prep_dataset_bytes_written_total",
				Help: "Serialized bytes written to dataset blocks.",
			},
		),
		DatasetFilesWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bpe_prep_dataset_files_written_total",
				Help: "Dataset blocks flushed to disk.",
			},
		),
		VocabularySize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bpe_prep_vocabulary_size",
				Help: "Symbols in the learned vocabulary.",
			},
		),
		DictionaryEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bpe_prep_dictionary_entries",
				Help: "Entries in the token and character dictionaries.",
			},
			[]string{"dictionary"},
		),
		LastSuccessfulRunTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bpe_prep_last_successful_run_timestamp_seconds",
				Help: "Unix time the pipeline last completed every stage.",
			},
		),
	}
	m.Registry.MustRegister(
		m.StageDuration,
		m.StageRunsTotal,
		m.DocumentsEncoded,
		m.TokensEncoded,
		m.DatasetBytesWritten,
		m.DatasetFilesWritten,
		m.VocabularySize,
		m.DictionaryEntries,
		m.LastSuccessfulRunTime,
	)
	return m
}

// ObserveStage records one stage outcome and, unless it was skipped, its
// duration.
func (m *Metrics) ObserveStage(stage, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StageRunsTotal.WithLabelValues(stage, outcome).Inc()
	if outcome != "skipped" {
		m.StageDuration.WithLabelValues(stage).Set(elapsed.Seconds())
	}
}

// WriteTextfile writes every collector to path in the Prometheus text
// format, for pickup by a node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
