package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	fyreflowlog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"

	"github.com/nevindra/fyreflow"
)

// ObservedTool wraps a fyreflow.McpToolInvoker with OTEL tracing,
// metrics, and structured logging.
type ObservedTool struct {
	inner fyreflow.McpToolInvoker
	inst  *Instruments
}

var _ fyreflow.McpToolInvoker = (*ObservedTool)(nil)

// WrapTool returns inner instrumented with inst.
func WrapTool(inner fyreflow.McpToolInvoker, inst *Instruments) *ObservedTool {
	return &ObservedTool{inner: inner, inst: inst}
}

// Invoke instruments a single McpToolInvoker.Invoke call. Invoke never
// returns a Go error — failure is encoded in ToolCallResult.OK/.Error —
// so status is derived from the result, not from an err check.
func (o *ObservedTool) Invoke(ctx context.Context, server fyreflow.McpServerConfig, tool string, arguments []byte) fyreflow.ToolCallResult {
	ctx, span := o.inst.Tracer.Start(ctx, "tool.invoke")
	defer span.End()

	span.SetAttributes(
		AttrToolName.String(tool),
		AttrToolServerID.String(server.ID),
	)

	start := time.Now()
	result := o.inner.Invoke(ctx, server, tool, arguments)
	durationMs := float64(time.Since(start).Microseconds()) / 1000.0

	status := "ok"
	if !result.OK {
		status = "error"
		span.SetStatus(codes.Error, result.Error)
	}
	span.SetAttributes(
		AttrToolStatus.String(status),
		AttrToolResultLength.Int(len(result.Output)),
	)

	attrs := metric.WithAttributes(
		AttrToolName.String(tool),
		AttrToolServerID.String(server.ID),
		AttrToolStatus.String(status),
	)
	o.inst.ToolCalls.Add(ctx, 1, attrs)
	o.inst.ToolDuration.Record(ctx, durationMs, attrs)

	var rec fyreflowlog.Record
	rec.SetBody(fyreflowlog.StringValue("tool.invoke"))
	rec.AddAttributes(
		fyreflowlog.String("server", server.ID),
		fyreflowlog.String("tool", tool),
		fyreflowlog.String("status", status),
		fyreflowlog.Float64("duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return result
}
