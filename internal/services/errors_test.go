package services_test

import (
	"errors"
	"strings"
	"testing"

	"easel/internal/services"
)

func TestWrapIncludesDetailAndMarker(t *testing.T) {
	base := errors.New("connection refused")
	err := services.Wrap(services.ErrTransient, "remote", "generate", "request failed", base)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatal("expected transient marker")
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped base error")
	}
	if !strings.Contains(err.Error(), "remote: generate: request failed") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "ingest", "finalize", "oops", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient default, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want services.Classification
	}{
		{"configuration", services.Wrap(services.ErrConfiguration, "catalog", "resolve", "unknown endpointKey", nil), services.ClassConfiguration},
		{"validation", services.Wrap(services.ErrValidation, "generation", "submit", "prompt required", nil), services.ClassValidation},
		{"no_output", services.Wrap(services.ErrNoOutput, "ingest", "finalize", "", nil), services.ClassNoOutput},
		{"interrupted", services.ErrInterrupted, services.ClassInterrupted},
		{"unknown", errors.New("boom"), services.ClassTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Classify(tc.err); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
