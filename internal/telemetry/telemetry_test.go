package telemetry

import (
	"context"
	"testing"
)

func TestNoopProvidesUsableTracerAndMeter(t *testing.T) {
	p := Noop()
	if p.Tracer == nil || p.Meter == nil {
		t.Fatal("expected non-nil tracer and meter")
	}

	ctx, span := p.StartActivationSpan(context.Background(), "jit", "grp-1")
	EndSpan(span, nil)
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown: %v", err)
	}
}

func TestInitReturnsWorkingProviders(t *testing.T) {
	ctx := context.Background()
	p, err := Init(ctx, "jitbroker-test")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer func() {
		if err := p.Shutdown(ctx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	}()

	spanCtx, span := p.StartAnalyzeSpan(ctx, "user:alice@example.com")
	EndSpan(span, nil)
	if spanCtx == nil {
		t.Fatal("expected non-nil context")
	}

	_, provSpan := p.StartProvisionSpan(ctx, "grp-1")
	EndSpan(provSpan, context.DeadlineExceeded)
}
