package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"
)

// SpanCore is a zapcore.Core that records every error-level entry as a span.
type SpanCore struct {
	zapcore.LevelEnabler

	tracer trace.Tracer
	fields []zapcore.Field
}

// NewSpanCore creates a core emitting error spans through the given provider.
func NewSpanCore(provider trace.TracerProvider) *SpanCore {
	return &SpanCore{
		LevelEnabler: zapcore.ErrorLevel,
		tracer:       provider.Tracer("github.com/robalyx/warden/logs"),
	}
}

func (c *SpanCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)

	return &SpanCore{
		LevelEnabler: c.LevelEnabler,
		tracer:       c.tracer,
		fields:       merged,
	}
}

func (c *SpanCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *SpanCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	_, span := c.tracer.Start(context.Background(), "error."+errorCategory(ent),
		trace.WithTimestamp(ent.Time))
	defer span.End()

	enc := zapcore.NewMapObjectEncoder()
	for i := range c.fields {
		c.fields[i].AddTo(enc)
	}
	for i := range fields {
		fields[i].AddTo(enc)
	}

	attrs := []attribute.KeyValue{
		attribute.String("log.message", ent.Message),
		attribute.String("log.level", ent.Level.String()),
		attribute.String("log.logger", ent.LoggerName),
		attribute.String("code.caller", ent.Caller.TrimmedPath()),
	}

	for key, value := range enc.Fields {
		attrs = append(attrs, attribute.String("log.field."+key, stringify(value)))
	}

	span.SetAttributes(attrs...)
	span.SetStatus(codes.Error, ent.Message)

	return nil
}

func (c *SpanCore) Sync() error {
	return nil
}

// errorCategory groups spans by the subsystem that logged them.
func errorCategory(ent zapcore.Entry) string {
	name := ent.LoggerName
	switch {
	case strings.HasPrefix(name, "db_"), strings.Contains(ent.Caller.Function, "/database"):
		return "database"
	case strings.Contains(ent.Caller.Function, "/redis"):
		return "redis"
	case strings.HasPrefix(name, "bot"), strings.Contains(ent.Caller.Function, "/bot"):
		return "bot"
	case strings.Contains(ent.Caller.Function, "/worker"):
		return "worker"
	case strings.Contains(ent.Caller.Function, "/rest"):
		return "rest"
	default:
		return "application"
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		return val.Error()
	default:
		return fmt.Sprint(val)
	}
}
