package publisher

import (
	"context"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"esign-workflow/internal/audit/domain"
)

// LogEmitter is the subset of otellog.Logger used here; tests pass a capture.
type LogEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// OTelLogSink mirrors audit events into the OTel log pipeline.
type OTelLogSink struct {
	logger LogEmitter
}

// NewOTelLogSink returns nil when provider is nil.
func NewOTelLogSink(provider *sdklog.LoggerProvider) *OTelLogSink {
	if provider == nil {
		return nil
	}
	return &OTelLogSink{logger: provider.Logger("esign.audit")}
}

// NewOTelLogSinkWithLogger wraps an arbitrary emitter.
func NewOTelLogSinkWithLogger(l LogEmitter) *OTelLogSink {
	return &OTelLogSink{logger: l}
}

// Publish emits one log record per event with the trail coordinates as attributes.
func (s *OTelLogSink) Publish(ctx context.Context, e *domain.Event) error {
	if s == nil || e == nil {
		return nil
	}
	rec := otellog.Record{}
	rec.SetTimestamp(e.OccurredAt)
	rec.SetBody(otellog.StringValue(string(e.Type)))
	rec.AddAttributes(
		otellog.String("session_id", e.SessionID),
		otellog.Int64("seq", e.Seq),
		otellog.String("event_type", string(e.Type)),
		otellog.String("actor_id", e.ActorID),
		otellog.String("actor_role", e.ActorRole),
		otellog.String("hash", e.Hash),
	)
	if e.ToStage != "" {
		rec.AddAttributes(otellog.String("to_stage", e.ToStage))
	}
	for k, v := range e.Metadata {
		rec.AddAttributes(otellog.String("meta."+k, v))
	}
	s.logger.Emit(ctx, rec)
	return nil
}
