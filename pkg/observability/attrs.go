// Verification-specific semantic convention attributes.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// Step attributes
	AttrStepID     = attribute.Key("gridverify.step.id")
	AttrStepAction = attribute.Key("gridverify.step.action")
	AttrStepStatus = attribute.Key("gridverify.step.status")
	AttrTenantID   = attribute.Key("gridverify.tenant.id")

	// Verification attributes
	AttrPhase            = attribute.Key("gridverify.phase")
	AttrAssertionID      = attribute.Key("gridverify.assertion.id")
	AttrFailedAssertions = attribute.Key("gridverify.assertions.failed")

	// Rollback attributes
	AttrRollbackAction = attribute.Key("gridverify.rollback.action")
)

// StepAttributes creates attributes for a step execution span.
func StepAttributes(stepID, tenantID, action string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrStepID.String(stepID),
		AttrTenantID.String(tenantID),
		AttrStepAction.String(action),
	}
}

// VerificationFailure creates attributes for a failed verification phase.
func VerificationFailure(phase string, failedCount int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrPhase.String(phase),
		AttrFailedAssertions.Int(failedCount),
	}
}

// RollbackProposed creates attributes for a compensation proposal.
func RollbackProposed(stepID, action string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrStepID.String(stepID),
		AttrRollbackAction.String(action),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records the error on the current span, if any.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
