package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeGraph represents graph database errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeData represents input data / data-quality errors
	ErrorTypeData ErrorType = "data"
	// ErrorTypeBatch represents per-label or per-batch processing errors
	ErrorTypeBatch ErrorType = "batch"
	// ErrorTypeEmbedding represents embedding service errors
	ErrorTypeEmbedding ErrorType = "embedding"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Category returns the error category. Wrapper types embedding BaseError
// inherit it, which is what IsErrorType keys on.
func (e *BaseError) Category() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Config Errors

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// ErrMissingInputFile is returned when a required input extract is absent
type ErrMissingInputFile struct {
	*BaseError
	Path string
}

func NewMissingInputFile(path string, err error) *ErrMissingInputFile {
	return &ErrMissingInputFile{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing input file: %s", path), err),
		Path:      path,
	}
}

// Graph Errors

// ErrGraphConnectionFailed is returned when the Neo4j connection fails
type ErrGraphConnectionFailed struct {
	*BaseError
	URI string
}

func NewGraphConnectionFailed(uri string, err error) *ErrGraphConnectionFailed {
	return &ErrGraphConnectionFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to connect to Neo4j: %s", uri), err),
		URI:       uri,
	}
}

// ErrGraphQueryFailed is returned when a graph query fails
type ErrGraphQueryFailed struct {
	*BaseError
	Query string
}

func NewGraphQueryFailed(query string, err error) *ErrGraphQueryFailed {
	return &ErrGraphQueryFailed{
		BaseError: NewBaseError(ErrorTypeGraph, "query failed", err),
		Query:     query,
	}
}

// ErrConstraintCreationFailed is returned when a uniqueness constraint cannot
// be created. Constraints are the only deduplication mechanism, so this is
// fatal to the run.
type ErrConstraintCreationFailed struct {
	*BaseError
	Label    string
	Property string
}

func NewConstraintCreationFailed(label, property string, err error) *ErrConstraintCreationFailed {
	return &ErrConstraintCreationFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to create constraint on %s.%s", label, property), err),
		Label:     label,
		Property:  property,
	}
}

// Data Errors

// ErrMissingColumn is returned when a referenced column is absent from an input table
type ErrMissingColumn struct {
	*BaseError
	Column string
	File   string
}

func NewMissingColumn(column, file string) *ErrMissingColumn {
	return &ErrMissingColumn{
		BaseError: NewBaseError(ErrorTypeData, fmt.Sprintf("column %q not found in %s", column, file), nil),
		Column:    column,
		File:      file,
	}
}

// Batch Errors

// ErrLabelProcessingFailed is returned when processing one visitor label fails.
// Other labels still attempt to run.
type ErrLabelProcessingFailed struct {
	*BaseError
	Label string
}

func NewLabelProcessingFailed(label string, err error) *ErrLabelProcessingFailed {
	return &ErrLabelProcessingFailed{
		BaseError: NewBaseError(ErrorTypeBatch, fmt.Sprintf("failed to process label %s", label), err),
		Label:     label,
	}
}

// ErrBatchProcessingFailed is returned when one fixed-size embedding batch fails
type ErrBatchProcessingFailed struct {
	*BaseError
	Label string
	Batch int
}

func NewBatchProcessingFailed(label string, batch int, err error) *ErrBatchProcessingFailed {
	return &ErrBatchProcessingFailed{
		BaseError: NewBaseError(ErrorTypeBatch, fmt.Sprintf("failed to process batch %d of label %s", batch, label), err),
		Label:     label,
		Batch:     batch,
	}
}

// Embedding Errors

// ErrEmbeddingFailed is returned when the embedding service request fails
type ErrEmbeddingFailed struct {
	*BaseError
	Model    string
	Attempts int
}

func NewEmbeddingFailed(model string, attempts int, err error) *ErrEmbeddingFailed {
	return &ErrEmbeddingFailed{
		BaseError: NewBaseError(ErrorTypeEmbedding, fmt.Sprintf("embedding request failed after %d attempts", attempts), err),
		Model:     model,
		Attempts:  attempts,
	}
}

// Helper functions

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if categorized, ok := err.(interface{ Category() ErrorType }); ok {
			return categorized.Category() == errType
		}
		wrapped, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = wrapped.Unwrap()
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	// Config and data errors will not heal on retry
	if IsErrorType(err, ErrorTypeConfig) || IsErrorType(err, ErrorTypeData) {
		return false
	}
	// Transient transport failures against the graph store are retryable
	if IsErrorType(err, ErrorTypeGraph) {
		return true
	}
	// Embedding service errors are usually rate limits or transient 5xx
	if IsErrorType(err, ErrorTypeEmbedding) {
		return true
	}
	return false
}
