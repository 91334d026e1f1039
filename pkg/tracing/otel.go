// Copyright 2026 fanjia1024
// OpenTelemetry integration for dispatch and relay tracing

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "clawlink"

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// InitTracer 初始化 OTLP/HTTP tracer 并设为全局 provider
func InitTracer(config OTelConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.ExportEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartDispatchSpan 开始一次 gateway dispatch span
func StartDispatchSpan(ctx context.Context, modelKey string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "gateway.dispatch",
		trace.WithAttributes(
			attribute.String("model.key", modelKey),
		),
	)
}

// StartRelaySpan 开始一次入站事件处理 span
func StartRelaySpan(ctx context.Context, channel, conversationID, agentID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "relay.handle_inbound",
		trace.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("conversation.id", conversationID),
			attribute.String("agent.id", agentID),
		),
	)
}

// EndWithOutcome 记录结果后结束 span；failureKind 为空表示成功
func EndWithOutcome(span trace.Span, failureKind string) {
	if failureKind == "" {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetAttributes(attribute.String("failure.kind", failureKind))
		span.SetStatus(codes.Error, failureKind)
	}
	span.End()
}
