package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidResumeToken is returned when a resume token cannot be decoded
	// or was produced by a different query plan.
	ErrInvalidResumeToken = errors.New("invalid resume token")

	// ErrClosed is returned when operating on a closed table or shard.
	ErrClosed = errors.New("closed")
)

// MappingConfigurationError indicates an invalid index mapping declaration.
type MappingConfigurationError struct {
	Field  string
	Param  string
	Reason string
	cause  error
}

// NewMappingConfigurationError creates a MappingConfigurationError.
func NewMappingConfigurationError(field, param, reason string) *MappingConfigurationError {
	return &MappingConfigurationError{Field: field, Param: param, Reason: reason}
}

// WrapMappingConfigurationError creates a MappingConfigurationError with a cause.
func WrapMappingConfigurationError(field, param string, cause error) *MappingConfigurationError {
	return &MappingConfigurationError{Field: field, Param: param, Reason: cause.Error(), cause: cause}
}

func (e *MappingConfigurationError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("mapping %q: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("mapping %q: invalid %s: %s", e.Field, e.Param, e.Reason)
}

func (e *MappingConfigurationError) Unwrap() error { return e.cause }

// UnknownFieldError indicates a reference to a field that is not mapped.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("no mapper found for field %q", e.Field)
}

// UnsupportedOperationError indicates a condition that the field's mapper
// cannot serve, for example a match on a non-indexed field.
type UnsupportedOperationError struct {
	Field     string
	Mapper    string
	Operation string
	Reason    string
}

func (e *UnsupportedOperationError) Error() string {
	msg := fmt.Sprintf("%s not supported on field %q (%s mapper)", e.Operation, e.Field, e.Mapper)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ValueCoercionError indicates a literal that cannot be converted to the
// type a mapper indexes.
type ValueCoercionError struct {
	Field  string
	Value  any
	Target string
	cause  error
}

// NewValueCoercionError creates a ValueCoercionError.
func NewValueCoercionError(field string, value any, target string, cause error) *ValueCoercionError {
	return &ValueCoercionError{Field: field, Value: value, Target: target, cause: cause}
}

func (e *ValueCoercionError) Error() string {
	msg := fmt.Sprintf("field %q: cannot convert %v (%T) to %s", e.Field, e.Value, e.Value, e.Target)
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *ValueCoercionError) Unwrap() error { return e.cause }

// UnsupportedSortError indicates a sort on a field that cannot be sorted.
type UnsupportedSortError struct {
	Field  string
	Reason string
	cause  error
}

// NewUnsupportedSortError creates an UnsupportedSortError.
func NewUnsupportedSortError(field, reason string, cause error) *UnsupportedSortError {
	return &UnsupportedSortError{Field: field, Reason: reason, cause: cause}
}

func (e *UnsupportedSortError) Error() string {
	return fmt.Sprintf("cannot sort by field %q: %s", e.Field, e.Reason)
}

func (e *UnsupportedSortError) Unwrap() error { return e.cause }

// InvalidConditionError indicates a malformed condition, detected before
// any schema is consulted.
type InvalidConditionError struct {
	Condition string
	Reason    string
}

func (e *InvalidConditionError) Error() string {
	return fmt.Sprintf("invalid %s condition: %s", e.Condition, e.Reason)
}

// ShardExecutionError indicates that a shard failed while serving a search.
type ShardExecutionError struct {
	Shard int
	cause error
}

// NewShardExecutionError creates a ShardExecutionError.
func NewShardExecutionError(shard int, cause error) *ShardExecutionError {
	return &ShardExecutionError{Shard: shard, cause: cause}
}

func (e *ShardExecutionError) Error() string {
	return fmt.Sprintf("shard %d: %v", e.Shard, e.cause)
}

func (e *ShardExecutionError) Unwrap() error { return e.cause }
