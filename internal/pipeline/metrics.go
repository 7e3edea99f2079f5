package pipeline

import (
	"log"

	otelmetric "go.opentelemetry.io/otel/metric"
)

type metrics struct {
	runs     otelmetric.Int64Counter
	attempts otelmetric.Int64Counter
	duration otelmetric.Float64Histogram
}

func newMetrics(meter otelmetric.Meter, logger *log.Logger) metrics {
	var m metrics
	if meter == nil {
		return m
	}
	var err error
	m.runs, err = meter.Int64Counter("pipeline_runs_total",
		otelmetric.WithDescription("Pipeline runs by result source"))
	if err != nil {
		logger.Printf("warn: create pipeline_runs_total failed: %v", err)
	}
	m.attempts, err = meter.Int64Counter("pipeline_provider_attempts_total",
		otelmetric.WithDescription("Provider calls by provider and outcome"))
	if err != nil {
		logger.Printf("warn: create pipeline_provider_attempts_total failed: %v", err)
	}
	m.duration, err = meter.Float64Histogram("pipeline_duration_ms",
		otelmetric.WithDescription("End to end pipeline latency"),
		otelmetric.WithUnit("ms"))
	if err != nil {
		logger.Printf("warn: create pipeline_duration_ms failed: %v", err)
	}
	return m
}
