package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/trellis/manager"
)

// Observer records lifecycle signals into OpenTelemetry.
type Observer struct {
	tracer trace.Tracer

	installs metric.Int64Counter
	syncs    metric.Int64Counter
	removals metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewObserver creates a lifecycle observer bound to the provided meter/tracer.
func NewObserver(meter metric.Meter, tracer trace.Tracer) (*Observer, error) {
	installs, err := meter.Int64Counter(
		"trellis.installs",
		metric.WithDescription("Number of server installs"),
	)
	if err != nil {
		return nil, err
	}
	syncs, err := meter.Int64Counter(
		"trellis.config_syncs",
		metric.WithDescription("Number of platform config applies and removes"),
	)
	if err != nil {
		return nil, err
	}
	removals, err := meter.Int64Counter(
		"trellis.removals",
		metric.WithDescription("Number of server removal runs"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"trellis.operation.latency",
		metric.WithDescription("Lifecycle operation latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Observer{
		tracer:   tracer,
		installs: installs,
		syncs:    syncs,
		removals: removals,
		latency:  latency,
	}, nil
}

// ObserveInstall records one install outcome.
func (o *Observer) ObserveInstall(observation manager.InstallObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("server", observation.Server),
		attribute.String("method", string(observation.Method)),
		attribute.Bool("forced", observation.Forced),
		attribute.Bool("success", observation.Success),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.installs.Add(ctx, 1, options)
	o.latency.Record(ctx, durationSeconds(observation.DurationMS), options)

	o.span(ctx, "server.install", attrs, observation.Success, observation.ErrorCode)
}

// ObserveSync records one platform config apply or remove.
func (o *Observer) ObserveSync(observation manager.SyncObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("server", observation.Server),
		attribute.String("platform", observation.Platform),
		attribute.String("op", observation.Op),
		attribute.Bool("success", observation.Success),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.syncs.Add(ctx, 1, options)
	o.latency.Record(ctx, durationSeconds(observation.DurationMS), options)

	o.span(ctx, "config.sync", attrs, observation.Success, observation.ErrorCode)
}

// ObserveRemoval records one removal run.
func (o *Observer) ObserveRemoval(observation manager.RemovalObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("server", observation.Server),
		attribute.Int("platform_count", len(observation.Platforms)),
		attribute.Bool("complete", observation.Complete),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.removals.Add(ctx, 1, options)
	o.latency.Record(ctx, durationSeconds(observation.DurationMS), options)

	o.span(ctx, "server.remove", attrs, observation.Complete, observation.ErrorCode)
}

func (o *Observer) span(ctx context.Context, name string, attrs []attribute.KeyValue, success bool, errorCode string) {
	if o.tracer == nil {
		return
	}
	_, span := o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	if !success {
		span.SetStatus(codes.Error, errorCode)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func durationSeconds(durationMS int64) float64 {
	return float64(time.Duration(durationMS)*time.Millisecond) / float64(time.Second)
}

var _ manager.Observer = (*Observer)(nil)
