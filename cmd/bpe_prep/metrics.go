package main

import (
	"fmt"

	"github.com/wbrown/bpe_prep/pkg/metrics"
)

// metricsSink collects metrics only when --metrics-file is set.
type metricsSink struct {
	path string
	m    *metrics.Metrics
}

func newMetricsSink(path string) *metricsSink {
	sink := &metricsSink{path: path}
	if path != "" {
		sink.m = metrics.New()
	}
	return sink
}

func (sink *metricsSink) metrics() *metrics.Metrics {
	return sink.m
}

func (sink *metricsSink) flush() error {
	if sink.m == nil {
		return nil
	}
	if err := sink.m.WriteTextfile(sink.path); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
