package telemetry

import (
	"context"
	"strings"
	"testing"
)

func TestInit_WithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{0, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		if got := Sampler(tt.rate).Description(); !strings.Contains(got, tt.want) {
			t.Errorf("rate %v: %s, want it to mention %s", tt.rate, got, tt.want)
		}
	}
}
