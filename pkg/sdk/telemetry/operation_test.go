package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestEmitPlanAndRunStepSuccess(t *testing.T) {
	t.Parallel()

	tracer, recorder := newTestTracer()
	op, err := EmitPlan(t.Context(), tracer, "service.deploy",
		Steps("resolve", "resolving service", "apply", "applying definition"),
		attribute.String("service.name", "web"),
	)
	if err != nil {
		t.Fatalf("EmitPlan() error = %v", err)
	}

	if err := op.RunStep(op.Context(), "resolve", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("RunStep() error = %v", err)
	}
	op.End(nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended span count = %d, want 2", len(spans))
	}

	root := findSpanByName(spans, "service.deploy")
	if root == nil {
		t.Fatal("missing root span")
	}
	if got := getAttr(root.Attributes(), "service.name"); got != "web" {
		t.Fatalf("service.name attribute = %q, want web", got)
	}
	if len(root.Events()) == 0 {
		t.Fatal("expected root plan event")
	}
	planEvent := root.Events()[0]
	if planEvent.Name != PlanEventName {
		t.Fatalf("plan event name = %q, want %q", planEvent.Name, PlanEventName)
	}
	if getAttr(planEvent.Attributes, PlanVersionKey) != PlanVersion {
		t.Fatalf("plan event version = %q, want %q", getAttr(planEvent.Attributes, PlanVersionKey), PlanVersion)
	}

	child := findSpanByName(spans, "resolve")
	if child == nil {
		t.Fatal("missing child step span")
	}
	if child.Parent().SpanID() != root.SpanContext().SpanID() {
		t.Fatalf("step parent span id = %s, want %s", child.Parent().SpanID(), root.SpanContext().SpanID())
	}
}

func TestRunStepFailureSetsErrorStatus(t *testing.T) {
	t.Parallel()

	tracer, recorder := newTestTracer()
	op, err := EmitPlan(t.Context(), tracer, "node.drain", Steps("set_availability", "set availability"))
	if err != nil {
		t.Fatalf("EmitPlan() error = %v", err)
	}

	boom := errors.New("boom")
	err = op.RunStep(op.Context(), "set_availability", func(context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunStep() error = %v, want boom", err)
	}
	op.End(err)

	child := findSpanByName(recorder.Ended(), "set_availability")
	if child == nil {
		t.Fatal("missing failed step span")
	}
	if child.Status().Code != codes.Error {
		t.Fatalf("step status code = %v, want %v", child.Status().Code, codes.Error)
	}
	if child.Status().Description != "boom" {
		t.Fatalf("step status description = %q, want boom", child.Status().Description)
	}
}

func TestSkipRecordsEvent(t *testing.T) {
	t.Parallel()

	tracer, recorder := newTestTracer()
	op, err := EmitPlan(t.Context(), tracer, "node.drain", Steps("set_availability", "set availability"))
	if err != nil {
		t.Fatalf("EmitPlan() error = %v", err)
	}
	op.Skip("set_availability", "already drain")
	op.End(nil)

	root := findSpanByName(recorder.Ended(), "node.drain")
	if root == nil {
		t.Fatal("missing root span")
	}
	events := root.Events()
	if len(events) != 2 || events[1].Name != "step.skipped" {
		t.Fatalf("events = %+v, want plan then step.skipped", events)
	}
}

func TestEmitPlanNilTracer(t *testing.T) {
	t.Parallel()

	op, err := EmitPlan(t.Context(), nil, "service.stop", Steps("scale", "scale to zero"))
	if err != nil {
		t.Fatalf("EmitPlan() error = %v", err)
	}
	called := false
	if err := op.RunStep(op.Context(), "scale", func(context.Context) error { called = true; return nil }); err != nil {
		t.Fatalf("RunStep() error = %v", err)
	}
	op.End(nil)
	if !called {
		t.Fatal("step function was not called")
	}
}

func TestEmitPlanValidationFailure(t *testing.T) {
	t.Parallel()

	tracer, _ := newTestTracer()
	_, err := EmitPlan(t.Context(), tracer, "service.deploy", Plan{Steps: []PlannedStep{
		{ID: "apply", Title: "applying"},
		{ID: "apply", Title: "duplicated"},
	}})
	if err == nil {
		t.Fatal("EmitPlan() error = nil, want duplicate id error")
	}
}

func newTestTracer() (trace.Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return provider.Tracer("telemetry-test"), recorder
}

func findSpanByName(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, span := range spans {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

func getAttr(attrs []attribute.KeyValue, key string) string {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return attr.Value.AsString()
		}
	}
	return ""
}
