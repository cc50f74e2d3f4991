package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	fyreflowlog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"

	"github.com/nevindra/fyreflow"
)

// ObservedProvider wraps a fyreflow.ProviderExecutor with OTEL tracing,
// metrics, and structured logging.
type ObservedProvider struct {
	inner fyreflow.ProviderExecutor
	inst  *Instruments
}

var _ fyreflow.ProviderExecutor = (*ObservedProvider)(nil)

// WrapProvider returns inner instrumented with inst.
func WrapProvider(inner fyreflow.ProviderExecutor, inst *Instruments) *ObservedProvider {
	return &ObservedProvider{inner: inner, inst: inst}
}

// Exec instruments a single ProviderExecutor.Exec call. The underlying
// capability returns only the rendered text — no token-usage figures —
// so this wrapper records call count, duration, and status rather than
// the cost/token metrics an LLM SDK's own usage struct would allow.
func (o *ObservedProvider) Exec(ctx context.Context, cfg fyreflow.ProviderConfig, step fyreflow.Step, req fyreflow.ChatRequest) (string, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "provider.exec")
	defer span.End()

	span.SetAttributes(
		AttrLLMProvider.String(cfg.Kind),
		AttrLLMModel.String(cfg.Model),
		AttrStepID.String(step.ID),
	)

	start := time.Now()
	out, err := o.inner.Exec(ctx, cfg, step, req)
	durationMs := float64(time.Since(start).Microseconds()) / 1000.0

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(AttrStatus.String(status))

	attrs := metric.WithAttributes(
		AttrLLMProvider.String(cfg.Kind),
		AttrLLMModel.String(cfg.Model),
		AttrStatus.String(status),
	)
	o.inst.ProviderCalls.Add(ctx, 1, attrs)
	o.inst.ProviderDuration.Record(ctx, durationMs, attrs)

	var rec fyreflowlog.Record
	rec.SetBody(fyreflowlog.StringValue("provider.exec"))
	rec.AddAttributes(
		fyreflowlog.String("provider", cfg.ID),
		fyreflowlog.String("step", step.ID),
		fyreflowlog.String("status", status),
		fyreflowlog.Float64("duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return out, err
}
