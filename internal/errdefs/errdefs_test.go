package errdefs

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindUnknown},
		{name: "plain", err: errors.New("boom"), want: KindUnknown},
		{name: "not found wrapped", err: fmt.Errorf("service %q: %w", "web", ErrNotFound), want: KindNotFound},
		{name: "conflict", err: ErrConflict, want: KindConflict},
		{name: "validation", err: Invalid("replicas", "must be >= 0"), want: KindInvalidArgument},
		{name: "deadline", err: fmt.Errorf("list nodes: %w", context.DeadlineExceeded), want: KindTimeout},
		{name: "timeout sentinel", err: ErrTimeout, want: KindTimeout},
		{name: "upstream", err: fmt.Errorf("engine: %w", ErrUpstreamUnavailable), want: KindUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("KindOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	t.Parallel()

	err := Invalid("replicas", "must be >= 0")
	if err.Error() != "replicas: must be >= 0" {
		t.Fatalf("Error() = %q", err.Error())
	}
	var valErr *ValidationError
	if !errors.As(err, &valErr) || valErr.Field != "replicas" {
		t.Fatalf("errors.As() did not recover field, got %#v", valErr)
	}
	if !IsInvalidArgument(err) {
		t.Fatal("expected validation error to be an invalid argument")
	}
}

func TestParseKindRoundTrip(t *testing.T) {
	t.Parallel()

	for k := KindNotFound; k <= KindUpstreamUnavailable; k++ {
		got := ParseKind(k.String())
		if got != k {
			t.Fatalf("ParseKind(%q) = %s, want %s", k.String(), got, k)
		}
		if KindOf(fmt.Errorf("wrapped: %w", got.Sentinel())) != k {
			t.Fatalf("KindOf(%s.Sentinel()) mismatch", k)
		}
	}
	if got := ParseKind("internal"); got != KindUnknown {
		t.Fatalf("ParseKind(internal) = %s, want unknown", got)
	}
	if KindUnknown.Sentinel() != nil {
		t.Fatal("KindUnknown.Sentinel() should be nil")
	}
}
