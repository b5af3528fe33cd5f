package core

import (
	"sort"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific field.
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
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// FieldMap groups the field errors by field, keeping their order.
func (err ValidationError) FieldMap() map[string][]string {
	m := make(map[string][]string, len(err.Fields))
	for _, fe := range err.Fields {
		m[fe.Field] = append(m[fe.Field], fe.Error)
	}
	return m
}

// FieldErrorsFromMap flattens a {field: messages} map into FieldErrors sorted by field.
func FieldErrorsFromMap(m map[string][]string) []FieldError {
	fields := make([]string, 0, len(m))
	for f := range m {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	flds := make([]FieldError, 0, len(m))
	for _, f := range fields {
		for _, msg := range m[f] {
			flds = append(flds, FieldError{Field: f, Error: msg})
		}
	}
	return flds
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
