package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// DBError represents a database operation error with context
type DBError struct {
	Operation string
	UserID    string
	Err       error
}

// Error implements the error interface
func (e *DBError) Error() string {
	if e.UserID != "" {
		return fmt.Sprintf("database error in %s (user %s): %v", e.Operation, e.UserID, e.Err)
	}
	return fmt.Sprintf("database error in %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error
func (e *DBError) Unwrap() error {
	return e.Err
}

// ValidationError represents a rejected value, e.g. a factor key outside the registry
type ValidationError struct {
	Field  string
	Reason string
	Value  interface{}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for field '%s': %s (value: %v)", e.Field, e.Reason, e.Value)
	}
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Reason)
}

// WrapDBError wraps a database error with operation context
func WrapDBError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return &DBError{
		Operation: operation,
		Err:       err,
	}
}

// WrapUserDBError wraps a database error with operation and user context
func WrapUserDBError(operation, userID string, err error) error {
	if err == nil {
		return nil
	}
	return &DBError{
		Operation: operation,
		UserID:    userID,
		Err:       err,
	}
}

// IsRecordNotFound reports whether err means "no row", which repositories surface as nil, nil
func IsRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// NewValidationErrorWithValue creates a new ValidationError with a value
func NewValidationErrorWithValue(field, reason string, value interface{}) error {
	return &ValidationError{
		Field:  field,
		Reason: reason,
		Value:  value,
	}
}
