package core

import (
	"errors"
	"fmt"
)

// ErrLockNotAvailable is returned by store adapters when a non-blocking row lock
// could not be acquired because another transaction holds it.
var ErrLockNotAvailable = errors.New("row lock not available")

// ErrorKind identifies one variant of the reservation error taxonomy.
type ErrorKind string

const (
	KindValidation      ErrorKind = "VALIDATION"
	KindTenantIsolation ErrorKind = "TENANT_ISOLATION"
	KindTemporalRule    ErrorKind = "TEMPORAL_RULE"
	KindCapacity        ErrorKind = "CAPACITY"
	KindAvailability    ErrorKind = "AVAILABILITY"
	KindConcurrency     ErrorKind = "CONCURRENCY"
	KindForbidden       ErrorKind = "FORBIDDEN"
	KindPersistence     ErrorKind = "PERSISTENCE"
	KindUnknown         ErrorKind = "UNKNOWN"
)

// ValidationError reports a malformed or missing input, or a reference to a
// cart line or cart that does not exist for the caller.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// TenantIsolationError reports a reference to an item or kit that does not
// exist within the caller's tenant.
type TenantIsolationError struct {
	TenantID int64
	RefType  LineType
	RefIDs   []int64
}

func (e *TenantIsolationError) Error() string {
	return fmt.Sprintf("%s reference %v is not available for this organisation", e.RefType, e.RefIDs)
}

// TemporalRuleError reports a reservation window that breaks a time rule.
type TemporalRuleError struct {
	Rule    string
	Message string
}

func (e *TemporalRuleError) Error() string {
	return e.Message
}

// CapacityError reports an exceeded cap: cart lines, cart slots, batch size or quantity.
type CapacityError struct {
	Limit   string
	Max     int
	Message string
}

func (e *CapacityError) Error() string {
	return e.Message
}

// AvailabilityError reports insufficient free stock for one item or kit.
type AvailabilityError struct {
	RefType   LineType
	RefID     int64
	Name      string
	Requested int
	Available int
}

func (e *AvailabilityError) Error() string {
	name := e.Name
	if name == "" {
		name = fmt.Sprintf("%s %d", e.RefType, e.RefID)
	}
	return fmt.Sprintf("insufficient stock for %s: %d available", name, e.Available)
}

// ConcurrencyError reports lock contention. The caller may retry.
type ConcurrencyError struct {
	Op string
}

func (e *ConcurrencyError) Error() string {
	return "another reservation is being processed for the same equipment, please try again"
}

// ForbiddenError reports an action on a booking the caller neither owns nor administers.
type ForbiddenError struct {
	Action string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("not allowed to %s this booking", e.Action)
}

// PersistenceError wraps an unexpected store failure. Its message is generic;
// the cause is available through errors.Unwrap for logging.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "technical failure, please try again later"
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// KindOf classifies err into the reservation error taxonomy.
func KindOf(err error) ErrorKind {
	var (
		validation   *ValidationError
		isolation    *TenantIsolationError
		temporal     *TemporalRuleError
		capacity     *CapacityError
		availability *AvailabilityError
		concurrency  *ConcurrencyError
		forbidden    *ForbiddenError
		persistence  *PersistenceError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &isolation):
		return KindTenantIsolation
	case errors.As(err, &temporal):
		return KindTemporalRule
	case errors.As(err, &capacity):
		return KindCapacity
	case errors.As(err, &availability):
		return KindAvailability
	case errors.As(err, &concurrency):
		return KindConcurrency
	case errors.As(err, &forbidden):
		return KindForbidden
	case errors.As(err, &persistence):
		return KindPersistence
	default:
		return KindUnknown
	}
}

// isDomainError reports whether err already belongs to the taxonomy.
func isDomainError(err error) bool {
	k := KindOf(err)
	return k != KindUnknown && k != ""
}

func validationErr(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func temporalErr(rule, format string, args ...any) error {
	return &TemporalRuleError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

func capacityErr(limit string, max int, format string, args ...any) error {
	return &CapacityError{Limit: limit, Max: max, Message: fmt.Sprintf(format, args...)}
}
