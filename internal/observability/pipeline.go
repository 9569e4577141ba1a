package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics holds the instruments recorded by the worker.
type PipelineMetrics struct {
	jobs        metric.Int64Counter
	stageTime   metric.Float64Histogram
	generations metric.Int64Counter
	reports     metric.Int64Counter
}

// NewPipelineMetrics registers the worker instruments on meter.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	jobs, err := meter.Int64Counter("shipyard.jobs",
		metric.WithDescription("Jobs that reached a terminal state"))
	if err != nil {
		return nil, fmt.Errorf("create jobs counter: %w", err)
	}

	stageTime, err := meter.Float64Histogram("shipyard.stage.duration",
		metric.WithDescription("Wall-clock time spent per pipeline stage"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create stage histogram: %w", err)
	}

	generations, err := meter.Int64Counter("shipyard.generation.results",
		metric.WithDescription("Generated artifacts by kind and source"))
	if err != nil {
		return nil, fmt.Errorf("create generation counter: %w", err)
	}

	reports, err := meter.Int64Counter("shipyard.report.failures",
		metric.WithDescription("Status reports that could not be delivered"))
	if err != nil {
		return nil, fmt.Errorf("create report counter: %w", err)
	}

	return &PipelineMetrics{
		jobs:        jobs,
		stageTime:   stageTime,
		generations: generations,
		reports:     reports,
	}, nil
}

// JobFinished counts a job ending in state.
func (m *PipelineMetrics) JobFinished(ctx context.Context, state string) {
	if m == nil {
		return
	}
	m.jobs.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// StageDone records how long stage took and whether it failed.
func (m *PipelineMetrics) StageDone(ctx context.Context, stage string, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.stageTime.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.Bool("failed", failed),
	))
}

// Generated counts one artifact produced from source ("primary" or "fallback").
func (m *PipelineMetrics) Generated(ctx context.Context, kind, source string) {
	if m == nil {
		return
	}
	m.generations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("source", source),
	))
}

// ReportFailed counts an undelivered status report.
func (m *PipelineMetrics) ReportFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.reports.Add(ctx, 1)
}
