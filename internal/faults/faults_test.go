package faults

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestError_MessageFallsBackToKind(t *testing.T) {
	err := &Error{Kind: KindAccessDenied}
	if err.Error() != "access denied" {
		t.Errorf("expected registry message, got %q", err.Error())
	}
}

func TestWrap_NilCause(t *testing.T) {
	if Wrap(KindCommandTimeout, nil, "x") != nil {
		t.Error("expected nil for nil cause")
	}
}

func TestIsKind_ThroughFmtWrap(t *testing.T) {
	base := New(KindPermissionDenied, "denied: %s", "rm -rf /")
	err := fmt.Errorf("step cleanup: %w", base)

	if !IsKind(err, KindPermissionDenied) {
		t.Error("expected permission_denied in chain")
	}
	if IsKind(err, KindAccessDenied) {
		t.Error("did not expect access_denied")
	}
	if !errors.Is(err, &Error{Kind: KindPermissionDenied}) {
		t.Error("errors.Is should match by kind")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), KindUnknown},
		{"direct", New(KindCommandTimeout, "slow"), KindCommandTimeout},
		{"step wrapper exposes cause", Wrap(KindWorkflowStepFailure, New(KindAccessDenied, "outside"), "step a"), KindAccessDenied},
		{"step wrapper over plain", Wrap(KindWorkflowStepFailure, context.Canceled, "step a"), KindWorkflowStepFailure},
		{"fmt wrapped", fmt.Errorf("ctx: %w", New(KindCommandExecutionFailure, "exit 2")), KindCommandExecutionFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRegister(t *testing.T) {
	custom := Kind("rate_limited")
	if Known(custom) {
		t.Fatal("custom kind should not be known yet")
	}
	Register(custom, Attributes{Message: "rate limited"})
	if !Known(custom) {
		t.Fatal("expected custom kind to be registered")
	}
	if AttributesOf(custom).Message != "rate limited" {
		t.Errorf("unexpected message %q", AttributesOf(custom).Message)
	}
	if AttributesOf(Kind("nope")).Message != "unknown error" {
		t.Error("unregistered kinds should fall back to unknown")
	}
}
