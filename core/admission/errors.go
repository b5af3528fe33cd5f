package admission

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

// GeneralKey carries form-wide errors not attributable to one field.
const GeneralKey = "_general"

var (
	ErrSubmitInFlight = errors.New("a submission is already in progress")
	ErrUnknownField   = errors.New("unknown field")
	ErrFieldLocked    = errors.New("field is locked while an existing record is selected")
	ErrUnknownTab     = errors.New("unknown tab")
	ErrClosed         = errors.New("workflow closed")
	ErrTabInvalid     = errors.New("the current tab has invalid fields")
	ErrNoCandidate    = errors.New("no such search result")
)

// Messages is one or more error messages. It decodes from a string or a list of strings.
type Messages []string

func (m *Messages) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*m = nil
		} else {
			*m = Messages{single}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("error messages must be a string or a list of strings: %v", err)
	}
	*m = Messages(list).compact()
	return nil
}

func (m Messages) compact() Messages {
	out := m[:0:0]
	for _, msg := range m {
		if strings.TrimSpace(msg) != "" {
			out = append(out, msg)
		}
	}
	return out
}

// FieldErrors maps field names to their messages.
// A key with a non-empty list means the field is in an error state.
type FieldErrors map[string]Messages

func (fe FieldErrors) Clone() FieldErrors {
	c := make(FieldErrors, len(fe))
	for k, v := range fe {
		if v = v.compact(); len(v) > 0 {
			c[k] = append(Messages(nil), v...)
		}
	}
	return c
}

func (fe FieldErrors) Has(name string) bool {
	return len(fe[name].compact()) > 0
}

// First returns the first message of a field, if any.
func (fe FieldErrors) First(name string) string {
	if msgs := fe[name].compact(); len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// Keys returns the fields in an error state, sorted.
func (fe FieldErrors) Keys() []string {
	keys := make([]string, 0, len(fe))
	for k, v := range fe {
		if len(v.compact()) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (fe FieldErrors) Empty() bool {
	return len(fe.Keys()) == 0
}

func (fe FieldErrors) add(name string, msgs ...string) {
	for _, msg := range msgs {
		if strings.TrimSpace(msg) != "" {
			fe[name] = append(fe[name], msg)
		}
	}
}

// Fields converts to the core validation error representation.
func (fe FieldErrors) Fields() []core.FieldError {
	m := make(map[string][]string, len(fe))
	for _, k := range fe.Keys() {
		m[k] = fe[k].compact()
	}
	return core.FieldErrorsFromMap(m)
}

// ErrorKind classifies submission failures.
type ErrorKind int

const (
	// ClientValidation: a local rule failed, nothing was sent.
	ClientValidation ErrorKind = iota + 1
	// ServerValidation: the backend rejected the record with field errors.
	ServerValidation
	// Rejected: the backend answered with an error but no field errors.
	Rejected
	// Transport: no response was received.
	Transport
)

func (k ErrorKind) String() string {
	switch k {
	case ClientValidation:
		return "client_validation"
	case ServerValidation:
		return "server_validation"
	case Rejected:
		return "rejected"
	case Transport:
		return "transport"
	default:
		return "unknown"
	}
}

// SubmitError is returned by a failed submission; the same errors are already in the form store.
type SubmitError struct {
	Kind   ErrorKind
	Fields FieldErrors
	Tab    string // first tab with an error, if any
	Err    error
}

func (e *SubmitError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("admission %s: %v", e.Kind, e.Err)
	case len(e.Fields) > 0:
		return fmt.Sprintf("admission %s: invalid fields %s", e.Kind, strings.Join(e.Fields.Keys(), ", "))
	default:
		return fmt.Sprintf("admission %s", e.Kind)
	}
}

func (e *SubmitError) Unwrap() error { return e.Err }

// ResponseError is a non-2xx answer from the backend.
type ResponseError struct {
	StatusCode int
	Fields     FieldErrors
	Message    string
}

func (e *ResponseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend responded %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend responded %d", e.StatusCode)
}
