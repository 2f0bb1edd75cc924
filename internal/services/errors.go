package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks defects in configuration: unknown endpoint keys,
	// missing handlers, absent credentials. Never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation marks malformed input data: unparsable payloads, missing
	// required parameters, nonexistent reference files.
	ErrValidation = errors.New("validation error")
	// ErrTransient marks provider-side failures that a caller may resubmit:
	// HTTP errors, timeouts, exceeded polling deadlines.
	ErrTransient = errors.New("transient failure")
	// ErrNoOutput marks a provider success response that carried no usable
	// artifacts. Deliberately treated as failure.
	ErrNoOutput = errors.New("no output artifacts")
	// ErrInterrupted marks work abandoned across a process restart.
	ErrInterrupted = errors.New("interrupted")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classification names the error category for bookkeeping and logs.
type Classification string

const (
	ClassConfiguration Classification = "configuration"
	ClassValidation    Classification = "validation"
	ClassTransient     Classification = "transient"
	ClassNoOutput      Classification = "no_output"
	ClassInterrupted   Classification = "interrupted"
)

// Classify maps an error to its taxonomy category. Unrecognized errors are
// treated as transient so callers remain free to resubmit.
func Classify(err error) Classification {
	switch {
	case errors.Is(err, ErrConfiguration):
		return ClassConfiguration
	case errors.Is(err, ErrValidation):
		return ClassValidation
	case errors.Is(err, ErrNoOutput):
		return ClassNoOutput
	case errors.Is(err, ErrInterrupted):
		return ClassInterrupted
	default:
		return ClassTransient
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
