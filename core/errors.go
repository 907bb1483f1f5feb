package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrConflict is returned when an atomic write lost against a concurrent one.
// The caller must re-read and retry; nothing was written.
var ErrConflict = errors.New("concurrent update detected, retry with fresh data")

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			msgs := make([]string, 0, len(err.Fields))
			for _, f := range err.Fields {
				msgs = append(msgs, f.Field+": "+f.Error)
			}
			return strings.Join(msgs, "; ")
		}
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error {
	return err.Err
}

// NotFoundError means the id does not resolve within the caller's school.
type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func (err NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", strings.ReplaceAll(err.Entity, "_", " "), err.ID)
}

// ReferentialIntegrityError blocks a deletion while live records still reference the entity.
type ReferentialIntegrityError struct {
	Entity string
	ID     string
	Refs   map[string]int // {referencing kind: count}
}

func NewReferentialIntegrityError(entity, id string, refs map[string]int) error {
	return &ReferentialIntegrityError{Entity: entity, ID: id, Refs: refs}
}

// Count is the total number of blocking records.
func (err ReferentialIntegrityError) Count() int {
	var n int
	for _, c := range err.Refs {
		n += c
	}
	return n
}

func (err ReferentialIntegrityError) Error() string {
	kinds := make([]string, 0, len(err.Refs))
	for k := range err.Refs {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%d %s", err.Refs[k], strings.ReplaceAll(k, "_", " ")))
	}
	return fmt.Sprintf("cannot delete %s: referenced by %s",
		strings.ReplaceAll(err.Entity, "_", " "), strings.Join(parts, ", "))
}

// InvalidAmountError is a non-positive, negative, over-precise or over-limit amount.
type InvalidAmountError struct {
	Field  string
	Amount decimal.Decimal
	Reason string
}

func NewInvalidAmountError(field string, amount decimal.Decimal, reason string) error {
	return &InvalidAmountError{Field: field, Amount: amount, Reason: reason}
}

func (err InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid %s %s: %s", err.Field, err.Amount.StringFixed(2), err.Reason)
}

// ExceedsDueError is a concession larger than the remaining balance of the row.
type ExceedsDueError struct {
	Requested decimal.Decimal
	Due       decimal.Decimal
}

func (err ExceedsDueError) Error() string {
	return fmt.Sprintf("concession of %s exceeds the due balance of %s",
		err.Requested.StringFixed(2), err.Due.StringFixed(2))
}

// HasPaymentsError blocks deleting a ledger row that already received money.
type HasPaymentsError struct {
	ID   string
	Paid decimal.Decimal
}

func (err HasPaymentsError) Error() string {
	return fmt.Sprintf("fee assignment %q has payments of %s and cannot be deleted", err.ID, err.Paid.StringFixed(2))
}

// IsNotFound reports whether the cause of err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err was caused by ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
