package core

import (
	"context"
	"strings"
)

const (
	metricPrefix         = "appinstall."
	metricSuffixTotal    = ".total"
	metricSuffixDuration = ".duration_ms"
)

// OperationCounterName is the counter recorded once per operation run.
func OperationCounterName(operation string) string {
	return metricPrefix + normalizeOperation(operation) + metricSuffixTotal
}

// OperationDurationName is the histogram of operation latency in
// milliseconds.
func OperationDurationName(operation string) string {
	return metricPrefix + normalizeOperation(operation) + metricSuffixDuration
}

// OperationFromMetricName returns the operation encoded in a name built by
// OperationCounterName or OperationDurationName.
func OperationFromMetricName(name string) string {
	operation := strings.TrimPrefix(strings.TrimSpace(name), metricPrefix)
	operation = strings.TrimSuffix(operation, metricSuffixTotal)
	return strings.TrimSuffix(operation, metricSuffixDuration)
}

// NopMetricsRecorder drops every sample.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func cloneTags(tags map[string]string) map[string]string {
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}
