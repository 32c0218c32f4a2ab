package utils

import (
	"errors"
	"fmt"
)

// Custom error types
var (
	// ErrInvalidArgument is returned when a caller supplies bad input;
	// nothing is mutated before the error is returned
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStoreUnavailable is returned when an I/O operation against the
	// document store fails; it is propagated without retry
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrMigrationFailed is returned when a migration's up or down raised
	ErrMigrationFailed = errors.New("migration failed")

	// ErrValidationFailed is returned when a migration's own post-condition
	// check did not hold
	ErrValidationFailed = errors.New("validation failed")

	// ErrDescriptorNotFound is returned when a ledger entry references a
	// migration id with no matching loaded descriptor
	ErrDescriptorNotFound = errors.New("migration descriptor not found")
)

// InvalidArgumentError represents a synchronously rejected bad input
type InvalidArgumentError struct {
	Field   string
	Message string
}

func (e *InvalidArgumentError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid argument '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid argument: %s", e.Message)
}

func (e *InvalidArgumentError) Unwrap() error {
	return ErrInvalidArgument
}

// StoreError represents an I/O failure reaching the document store
type StoreError struct {
	Operation string
	Cause     error
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("store error during %s: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("store error during %s", e.Operation)
}

func (e *StoreError) Unwrap() error {
	return ErrStoreUnavailable
}

// MigrationError represents a failure raised by a migration's up or down
type MigrationError struct {
	ID    string
	Phase string // "up" or "down"
	Cause error
}

func (e *MigrationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("migration %s %s failed: %v", e.ID, e.Phase, e.Cause)
	}
	return fmt.Sprintf("migration %s %s failed", e.ID, e.Phase)
}

func (e *MigrationError) Unwrap() error {
	return ErrMigrationFailed
}

// PostConditionError represents a migration whose validation step found the
// resulting state inconsistent with what the migration claims to produce
type PostConditionError struct {
	ID    string
	Check string
}

func (e *PostConditionError) Error() string {
	return fmt.Sprintf("migration %s validation failed: %s", e.ID, e.Check)
}

func (e *PostConditionError) Unwrap() error {
	return ErrValidationFailed
}

// DescriptorNotFoundError represents a ledger entry whose migration id has
// no matching loaded descriptor (e.g. code deleted after being applied)
type DescriptorNotFoundError struct {
	ID string
}

func (e *DescriptorNotFoundError) Error() string {
	return fmt.Sprintf("no descriptor loaded for migration '%s'", e.ID)
}

func (e *DescriptorNotFoundError) Unwrap() error {
	return ErrDescriptorNotFound
}

// Error wrapping functions

// WrapInvalidArgumentError wraps a field rejection as an invalid argument error
func WrapInvalidArgumentError(field, message string) error {
	return &InvalidArgumentError{
		Field:   field,
		Message: message,
	}
}

// WrapStoreError wraps a store I/O failure with the operation that hit it
func WrapStoreError(operation string, cause error) error {
	return &StoreError{
		Operation: operation,
		Cause:     cause,
	}
}

// WrapMigrationError wraps an error raised by a migration phase
func WrapMigrationError(id, phase string, cause error) error {
	return &MigrationError{
		ID:    id,
		Phase: phase,
		Cause: cause,
	}
}

// WrapPostConditionError wraps a failed migration post-condition check
func WrapPostConditionError(id, check string) error {
	return &PostConditionError{
		ID:    id,
		Check: check,
	}
}

// WrapDescriptorNotFoundError wraps a missing descriptor lookup
func WrapDescriptorNotFoundError(id string) error {
	return &DescriptorNotFoundError{
		ID: id,
	}
}

// Error checking functions

// IsInvalidArgument checks if an error is an invalid argument error
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsStoreUnavailable checks if an error is a store availability error
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsMigrationFailed checks if an error is a migration failure
func IsMigrationFailed(err error) bool {
	return errors.Is(err, ErrMigrationFailed)
}

// IsValidationFailed checks if an error is a migration post-condition failure
func IsValidationFailed(err error) bool {
	return errors.Is(err, ErrValidationFailed)
}

// IsDescriptorNotFound checks if an error is a missing descriptor error
func IsDescriptorNotFound(err error) bool {
	return errors.Is(err, ErrDescriptorNotFound)
}
