package leave

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRange is returned when the end date precedes the start date.
	ErrInvalidRange = errors.New("invalid range: end date before start date")

	// ErrInsufficientBalance is returned when an annual request would drive
	// the employee's balance negative.
	ErrInsufficientBalance = errors.New("insufficient leave balance")

	// ErrInvalidTransition is returned when an operation is attempted from a
	// status that does not permit it.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotFound is returned when the referenced request does not exist.
	ErrNotFound = errors.New("leave request not found")

	// ErrEmployeeNotFound is returned when the referenced employee does not exist.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrForbidden is returned when an actor touches a request they do not own.
	ErrForbidden = errors.New("not the request owner")

	// ErrTransactionAborted is returned when the store could not commit the
	// transaction within its retry budget. Safe to retry the whole operation.
	ErrTransactionAborted = errors.New("transaction aborted")
)

// InsufficientBalanceError carries the shortfall details for user feedback.
type InsufficientBalanceError struct {
	EmployeeID string
	Available  int
	Requested  int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient leave balance: available %d, requested %d", e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// TransitionError reports which operation was attempted from which status.
type TransitionError struct {
	RequestID string
	From      Status
	Op        string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s request %s in status %q", e.Op, e.RequestID, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// IsRetryable returns true if re-invoking the same operation may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionAborted)
}

// IsClientError returns true if the error is due to the caller's input or
// the current request state rather than infrastructure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden)
}
