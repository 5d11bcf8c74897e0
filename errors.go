package kvsearch

import (
	"errors"

	"github.com/hupe1980/kvsearch/model"
)

var (
	// ErrInvalidResumeToken is returned when a resume token cannot be decoded
	// or was issued for a different query.
	ErrInvalidResumeToken = model.ErrInvalidResumeToken

	// ErrClosed is returned when operating on a closed table.
	ErrClosed = model.ErrClosed

	// ErrInvalidTopology is returned for shard or replication counts that
	// cannot be served.
	ErrInvalidTopology = errors.New("invalid table topology")
)

// Error types returned by table operations. Match them with errors.As.
type (
	MappingConfigurationError = model.MappingConfigurationError
	UnknownFieldError         = model.UnknownFieldError
	UnsupportedOperationError = model.UnsupportedOperationError
	ValueCoercionError        = model.ValueCoercionError
	UnsupportedSortError      = model.UnsupportedSortError
	InvalidConditionError     = model.InvalidConditionError
	ShardExecutionError       = model.ShardExecutionError
)
