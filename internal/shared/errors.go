// Package shared holds the error taxonomy used across the pipeline,
// evaluation, storage and HTTP layers.
package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks an unknown agent or evaluation job id.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks a malformed request payload.
	ErrValidation = errors.New("validation failed")

	// ErrConfiguration marks an agent configuration that cannot satisfy the
	// requested pipeline variant (e.g. Hybrid without sql_config).
	ErrConfiguration = errors.New("invalid configuration")

	// ErrUpstream marks a language-model, retrieval or relational gateway
	// failure.
	ErrUpstream = errors.New("upstream gateway failure")

	// ErrPersistence marks a metrics/job/record store failure.
	ErrPersistence = errors.New("persistence failure")
)

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

func Validationf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

func Configurationf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrConfiguration)...)
}

// Upstream wraps a gateway error, keeping the original cause in the message.
func Upstream(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, ErrUpstream)
}

// Persistence wraps a store error, keeping the original cause in the message.
func Persistence(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, ErrPersistence)
}
