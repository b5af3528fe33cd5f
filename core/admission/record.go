package admission

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/trezcool/shule/core"
)

// Entity is the kind of record an admission workflow produces.
type Entity string

const (
	EntityStudent  Entity = "student"
	EntityTeacher  Entity = "teacher"
	EntityGuardian Entity = "guardian"
)

// Kind is the value type of a field.
type Kind int

const (
	KindString Kind = iota
	KindEnum
	KindDate
	KindBool
	KindFile
	KindGroup
)

func (k Kind) String() string {
	switch k {
	case KindEnum:
		return "enum"
	case KindDate:
		return "date"
	case KindBool:
		return "bool"
	case KindFile:
		return "file"
	case KindGroup:
		return "group"
	default:
		return "string"
	}
}

// File is an uploaded binary field. It never reaches the draft store.
type File struct {
	Name        string
	ContentType string
	Content     []byte
}

func (f *File) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name        string `json:"name"`
		ContentType string `json:"content_type"`
		Size        int    `json:"size"`
	}{f.Name, f.ContentType, len(f.Content)})
}

// Record is a draft: field name -> value.
// Values are string (string, enum & date kinds), bool, *File or []Qualification.
// An absent field is empty, never an error by itself.
type Record map[string]interface{}

func (r Record) Clone() Record {
	c := make(Record, len(r))
	for k, v := range r {
		if quals, ok := v.([]Qualification); ok {
			v = append([]Qualification(nil), quals...)
		}
		c[k] = v
	}
	return c
}

func (r Record) String(name string) string {
	return toString(r[name])
}

func (r Record) Bool(name string) bool {
	b, _ := toBool(r[name])
	return b
}

func (r Record) File(name string) *File {
	f, _ := r[name].(*File)
	return f
}

func (r Record) Qualifications(name string) []Qualification {
	q, _ := r[name].([]Qualification)
	return q
}

// IsEmpty reports whether a field is absent or holds a zero value.
func (r Record) IsEmpty(name string) bool {
	switch v := r[name].(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case bool:
		return false
	case *File:
		return v == nil
	case []Qualification:
		return len(v) == 0
	default:
		return toString(v) == ""
	}
}

// coerce converts a loosely typed value (form input, JSON) into the field's kind.
func coerce(kind Kind, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case KindBool:
		b, ok := toBool(v)
		if !ok {
			return nil, fmt.Errorf("%v is not a boolean", v)
		}
		return b, nil
	case KindFile:
		f, ok := v.(*File)
		if !ok {
			return nil, fmt.Errorf("%T is not a file", v)
		}
		return f, nil
	case KindGroup:
		switch q := v.(type) {
		case []Qualification:
			return q, nil
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			var quals []Qualification
			if err := json.Unmarshal(data, &quals); err != nil {
				return nil, fmt.Errorf("not a list of qualifications: %v", err)
			}
			return quals, nil
		}
	case KindDate:
		s := toString(v)
		if t, err := core.ParseDate(s); err == nil {
			return t.Format(core.DateLayout), nil
		}
		return s, nil
	default:
		return toString(v), nil
	}
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case json.Number:
		return s.String()
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

func toBool(v interface{}) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case float64:
		return b != 0, true
	case int:
		return b != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "1", "true", "on", "yes":
			return true, true
		case "", "0", "false", "off", "no":
			return false, true
		}
	}
	return false, false
}
