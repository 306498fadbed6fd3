package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by RecordStore.Get when no record has the given id.
var ErrNotFound = errors.New("record not found")

// ErrStoreUnavailable wraps any failure of the backing store. Callers treat it
// as transient: no partial write happened and the action can be retried.
var ErrStoreUnavailable = errors.New("record store unavailable")

// Field names a logical input block of the wizard.
type Field string

// Logical fields validated by the wizard and the record rules.
const (
	FieldNone      Field = ""
	FieldName      Field = "name"
	FieldLink      Field = "link"
	FieldMother    Field = "mother"
	FieldFather    Field = "father"
	FieldSex       Field = "sex"
	FieldBirthDate Field = "birth_date"
)

// ValidationError reports bad user input for a single field.
type ValidationError struct {
	Field  Field
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == FieldNone {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// InsufficientDataError is returned when a save is attempted for a record that
// does not satisfy Record.Eligible or any other blocking rule.
type InsufficientDataError struct {
	Violations []Violation
}

func (e InsufficientDataError) Error() string {
	if len(e.Violations) == 0 {
		return "insufficient data to save record"
	}
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return "insufficient data to save record: " + strings.Join(msgs, "; ")
}

// Unavailable wraps err so that errors.Is(err, ErrStoreUnavailable) holds.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
