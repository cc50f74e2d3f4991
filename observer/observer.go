// Package observer provides OTEL-based observability for fyreflow run
// execution.
//
// It wraps ProviderExecutor and McpToolInvoker with instrumented
// versions that emit traces, metrics, and logs via OpenTelemetry. Users
// export to any OTEL-compatible backend by setting standard OTEL env
// vars.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	fyreflowlog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/nevindra/fyreflow/observer"

// Instruments holds all OTEL instruments used by the observer wrappers.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger fyreflowlog.Logger

	// Counters
	TokenUsage     metric.Int64Counter
	CostTotal      metric.Float64Counter
	ProviderCalls  metric.Int64Counter
	ToolCalls      metric.Int64Counter
	StepExecutions metric.Int64Counter
	RunCompletions metric.Int64Counter

	// Histograms
	ProviderDuration metric.Float64Histogram
	ToolDuration     metric.Float64Histogram
	StepDuration     metric.Float64Histogram
	RunDuration      metric.Float64Histogram

	Cost *CostCalculator
}

// Init sets up OTEL trace, metric, and log providers with OTLP HTTP exporters.
// Configuration comes from standard OTEL env vars (OTEL_EXPORTER_OTLP_ENDPOINT, etc.).
// Returns a shutdown function that must be called on application exit.
func Init(ctx context.Context, pricing map[string]ModelPricing) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("fyreflow")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments(pricing)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			lp.Shutdown(ctx),
		)
	}

	return inst, shutdown, nil
}

func newInstruments(pricing map[string]ModelPricing) (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)
	logger := global.GetLoggerProvider().Logger(scopeName)

	tokenUsage, err := meter.Int64Counter("fyreflow.llm.token.usage",
		metric.WithDescription("Total tokens consumed"), metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}
	costTotal, err := meter.Float64Counter("fyreflow.llm.cost.total",
		metric.WithDescription("Cumulative provider cost in USD"), metric.WithUnit("USD"))
	if err != nil {
		return nil, err
	}
	providerCalls, err := meter.Int64Counter("fyreflow.provider.calls",
		metric.WithDescription("ProviderExecutor invocation count"), metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}
	toolCalls, err := meter.Int64Counter("fyreflow.tool.calls",
		metric.WithDescription("MCP tool invocation count"), metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}
	stepExecutions, err := meter.Int64Counter("fyreflow.step.executions",
		metric.WithDescription("Step execution count"), metric.WithUnit("{execution}"))
	if err != nil {
		return nil, err
	}
	runCompletions, err := meter.Int64Counter("fyreflow.run.completions",
		metric.WithDescription("Run terminal-status count"), metric.WithUnit("{run}"))
	if err != nil {
		return nil, err
	}
	providerDuration, err := meter.Float64Histogram("fyreflow.provider.duration",
		metric.WithDescription("ProviderExecutor call duration"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	toolDuration, err := meter.Float64Histogram("fyreflow.tool.duration",
		metric.WithDescription("MCP tool call duration"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	stepDuration, err := meter.Float64Histogram("fyreflow.step.duration",
		metric.WithDescription("Step execution duration"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	runDuration, err := meter.Float64Histogram("fyreflow.run.duration",
		metric.WithDescription("Run wall-clock duration"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:           tracer,
		Meter:            meter,
		Logger:           logger,
		TokenUsage:       tokenUsage,
		CostTotal:        costTotal,
		ProviderCalls:    providerCalls,
		ToolCalls:        toolCalls,
		StepExecutions:   stepExecutions,
		RunCompletions:   runCompletions,
		ProviderDuration: providerDuration,
		ToolDuration:     toolDuration,
		StepDuration:     stepDuration,
		RunDuration:      runDuration,
		Cost:             NewCostCalculator(pricing),
	}, nil
}
