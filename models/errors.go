package models

import (
	"errors"
	"fmt"

	"github.com/mmdatafocus/stockledger/utils"
	"github.com/shopspring/decimal"
)

// ValidationError is returned before any lock is taken.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ValidateInput runs struct-tag validation and converts failures into a ValidationError.
func ValidateInput(input any) error {
	if err := utils.ValidateStruct(input); err != nil {
		fields := utils.ProcessValidationErrors(err)
		if len(fields) == 0 {
			return &ValidationError{Message: err.Error()}
		}
		return &ValidationError{Message: utils.DescribeValidationErrors(fields)}
	}
	return nil
}

// InsufficientStockError means the balance row cannot cover the requested quantity.
type InsufficientStockError struct {
	Key       BalanceKey
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %s, available %s",
		e.Key, e.Requested.String(), e.Available.String())
}

// InsufficientLotStockError means the active lots of a key cannot cover the requested quantity.
type InsufficientLotStockError struct {
	Key       BalanceKey
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientLotStockError) Error() string {
	return fmt.Sprintf("insufficient active lot stock for %s: requested %s, available %s",
		e.Key, e.Requested.String(), e.Available.String())
}

type NotFoundError struct {
	Resource string
	Id       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Id)
}

func NewNotFoundError(resource string, id any) *NotFoundError {
	return &NotFoundError{Resource: resource, Id: fmt.Sprint(id)}
}

// ContentionError wraps lock wait timeouts and deadlocks. It is safe to retry.
type ContentionError struct {
	Resource string
	Err      error
}

func (e *ContentionError) Error() string {
	if e.Err == nil {
		return "lock contention on " + e.Resource
	}
	return fmt.Sprintf("lock contention on %s: %v", e.Resource, e.Err)
}

func (e *ContentionError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err came from lock contention and the call may be repeated unchanged.
func IsRetryable(err error) bool {
	var ce *ContentionError
	return errors.As(err, &ce)
}

// IsBusinessRuleViolation reports whether err rejects the input itself; retrying
// without changing it fails again.
func IsBusinessRuleViolation(err error) bool {
	var (
		ve  *ValidationError
		ise *InsufficientStockError
		ile *InsufficientLotStockError
		ae  *utils.ArithmeticError
	)
	return errors.As(err, &ve) || errors.As(err, &ise) || errors.As(err, &ile) || errors.As(err, &ae)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
