package dialogue

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrPermissionDenied is returned when the microphone cannot be opened.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrBusy matches any BusyError.
	ErrBusy = errors.New("a turn is already in progress")
	// ErrNoPendingOperation is returned when slots are submitted with nothing pending.
	ErrNoPendingOperation = errors.New("no pending operation")
)

// BusyError rejects a turn while another is in flight.
type BusyError struct {
	Phase Phase
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("a turn is already in progress (phase %s)", e.Phase)
}

// Is lets errors.Is(err, ErrBusy) match.
func (e *BusyError) Is(target error) bool {
	return target == ErrBusy
}

// ServiceError wraps a failed call to an external collaborator.
type ServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError wraps err unless it already is a ServiceError.
func NewServiceError(service, op string, err error) error {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}
	return &ServiceError{Service: service, Op: op, Err: err}
}

// ValidationError lists the fields that failed validation with a reason each.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// DomainError is a business-rule rejection such as insufficient balance.
type DomainError struct {
	Reason string
}

func (e *DomainError) Error() string {
	return e.Reason
}
