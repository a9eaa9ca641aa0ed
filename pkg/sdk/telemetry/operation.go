// Package telemetry traces control-plane commands as an operation span with
// a declared plan of steps, each step running in its own child span.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	PlanEventName      = "swarmorch.plan"
	PlanVersion        = "1"
	PlanVersionKey     = "swarmorch.plan.version"
	PlanJSONKey        = "swarmorch.plan.json"
	defaultOperationID = "operation"
)

type PlannedStep struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	Title    string `json:"title"`
}

type Plan struct {
	Steps []PlannedStep `json:"steps"`
}

// Steps builds a flat plan from id/title pairs.
func Steps(pairs ...string) Plan {
	var p Plan
	for i := 0; i+1 < len(pairs); i += 2 {
		p.Steps = append(p.Steps, PlannedStep{ID: pairs[i], Title: pairs[i+1]})
	}
	return p
}

type Operation struct {
	ctx    context.Context
	tracer trace.Tracer
	span   trace.Span
}

// EmitPlan starts the operation span and records the plan on it. A nil
// tracer yields a no-op operation.
func EmitPlan(ctx context.Context, tracer trace.Tracer, operation string, plan Plan, attrs ...attribute.KeyValue) (*Operation, error) {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	if err := validatePlan(plan); err != nil {
		return nil, fmt.Errorf("emit telemetry plan: %w", err)
	}

	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = defaultOperationID
	}

	planJSON, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("emit telemetry plan: marshal plan: %w", err)
	}

	planAttrs := []attribute.KeyValue{
		attribute.String(PlanVersionKey, PlanVersion),
		attribute.String(PlanJSONKey, string(planJSON)),
	}
	spanCtx, span := tracer.Start(ctx, operation, trace.WithAttributes(append(planAttrs, attrs...)...))
	span.AddEvent(PlanEventName, trace.WithAttributes(planAttrs...))

	return &Operation{ctx: spanCtx, tracer: tracer, span: span}, nil
}

func (o *Operation) Context() context.Context {
	if o == nil {
		return context.Background()
	}
	return o.ctx
}

// RunStep runs fn inside a child span named id.
func (o *Operation) RunStep(ctx context.Context, id string, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}

	stepID := strings.TrimSpace(id)
	if stepID == "" {
		return fmt.Errorf("run telemetry step: step id is required")
	}
	if o == nil || o.tracer == nil {
		return fn(ctx)
	}
	if ctx == nil {
		ctx = o.ctx
	}

	stepCtx, span := o.tracer.Start(ctx, stepID)
	defer span.End()

	if err := fn(stepCtx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
		return err
	}
	return nil
}

// Skip records that a planned step did not need to run.
func (o *Operation) Skip(id, reason string) {
	if o == nil || o.span == nil {
		return
	}
	o.span.AddEvent("step.skipped", trace.WithAttributes(
		attribute.String("step.id", id),
		attribute.String("step.reason", reason),
	))
}

func (o *Operation) End(err error) {
	if o == nil || o.span == nil {
		return
	}
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
	}
	o.span.End()
}

func validatePlan(plan Plan) error {
	seen := make(map[string]struct{}, len(plan.Steps))
	for i, step := range plan.Steps {
		stepID := strings.TrimSpace(step.ID)
		if stepID == "" {
			return fmt.Errorf("step %d has empty id", i)
		}
		if _, exists := seen[stepID]; exists {
			return fmt.Errorf("duplicate step id %q", stepID)
		}
		seen[stepID] = struct{}{}
	}
	for i, step := range plan.Steps {
		parentID := strings.TrimSpace(step.ParentID)
		if parentID == "" {
			continue
		}
		if _, exists := seen[parentID]; !exists {
			return fmt.Errorf("step %d parent %q not found in plan", i, parentID)
		}
	}
	return nil
}
