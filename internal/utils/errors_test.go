package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvalidArgumentError(t *testing.T) {
	err := WrapInvalidArgumentError("name", "sequence name cannot be empty")

	assert.True(t, IsInvalidArgument(err))
	assert.False(t, IsStoreUnavailable(err))
	assert.Contains(t, err.Error(), "name")
	assert.Contains(t, err.Error(), "sequence name cannot be empty")

	var typed *InvalidArgumentError
	assert.True(t, errors.As(err, &typed))
	assert.Equal(t, "name", typed.Field)
}

func TestStoreError(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapStoreError("increment counter", cause)

	assert.True(t, IsStoreUnavailable(err))
	assert.Contains(t, err.Error(), "increment counter")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestMigrationError(t *testing.T) {
	cause := errors.New("backfill exploded")
	err := WrapMigrationError("002", "up", cause)

	assert.True(t, IsMigrationFailed(err))
	assert.False(t, IsValidationFailed(err))
	assert.Contains(t, err.Error(), "migration 002 up failed")
	assert.Contains(t, err.Error(), "backfill exploded")
}

func TestPostConditionError(t *testing.T) {
	err := WrapPostConditionError("002", "3 tasks still have no priority")

	assert.True(t, IsValidationFailed(err))
	// Distinguishable from a plain migration failure by message content
	assert.False(t, IsMigrationFailed(err))
	assert.Contains(t, err.Error(), "validation failed")
	assert.Contains(t, err.Error(), "3 tasks still have no priority")
}

func TestDescriptorNotFoundError(t *testing.T) {
	err := WrapDescriptorNotFoundError("999")

	assert.True(t, IsDescriptorNotFound(err))
	assert.Contains(t, err.Error(), "999")
}

func TestErrorWrappingSurvivesFmt(t *testing.T) {
	err := fmt.Errorf("outer context: %w", WrapStoreError("read counter", errors.New("timeout")))

	assert.True(t, IsStoreUnavailable(err))
}
