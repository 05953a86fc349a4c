package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	auditdomain "esign-workflow/internal/audit/domain"
	"esign-workflow/internal/identity"
	"esign-workflow/internal/otp"
	"esign-workflow/internal/signing/domain"
)

const instrumentation = "esign-workflow/signing"

// metrics wraps the engine's tracer and counters. It uses the global providers, which are
// no-ops until cmd/server installs the OTLP ones.
type metrics struct {
	tracer      trace.Tracer
	transitions metric.Int64Counter
	failures    metric.Int64Counter
	identity    metric.Int64Counter
	otp         metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter(instrumentation)
	m := &metrics{tracer: otel.Tracer(instrumentation)}
	m.transitions, _ = meter.Int64Counter("signing.transitions",
		metric.WithDescription("Committed session transitions by event type"))
	m.failures, _ = meter.Int64Counter("signing.failures",
		metric.WithDescription("Rejected operations by error kind"))
	m.identity, _ = meter.Int64Counter("signing.identity.failures",
		metric.WithDescription("Failed identity verifications by method"))
	m.otp, _ = meter.Int64Counter("signing.otp.failures",
		metric.WithDescription("Failed one-time code verifications by outcome"))
	return m
}

func (m *metrics) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (m *metrics) result(ctx context.Context, span trace.Span, op string, input domain.InputKind, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	kind := domain.KindOf(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind))
	if m.failures != nil {
		m.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("input", string(input)),
			attribute.String("kind", string(kind)),
		))
	}
}

func (m *metrics) transition(ctx context.Context, ev auditdomain.EventType, from, to domain.Stage) {
	if m.transitions == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", string(ev)),
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

func (m *metrics) identityFailure(ctx context.Context, method identity.Method, err error) {
	if m.identity == nil {
		return
	}
	reason := "other"
	switch {
	case errors.Is(err, identity.ErrIdentityMismatch):
		reason = "mismatch"
	case errors.Is(err, identity.ErrLowConfidenceMatch):
		reason = "low_confidence"
	case errors.Is(err, identity.ErrProviderUnavailable):
		reason = "provider_unavailable"
	}
	m.identity.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", string(method)),
		attribute.String("reason", reason),
	))
}

func (m *metrics) otpFailure(ctx context.Context, err error) {
	if m.otp == nil {
		return
	}
	reason := "other"
	switch {
	case errors.Is(err, otp.ErrMismatch):
		reason = "mismatch"
	case errors.Is(err, otp.ErrExhausted):
		reason = "exhausted"
	case errors.Is(err, otp.ErrExpired), errors.Is(err, otp.ErrInactive):
		reason = "expired"
	}
	m.otp.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
