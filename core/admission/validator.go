package admission

import (
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
)

const msgInvalidEntries = "some entries are invalid"

// qualificationRules are checked on every qualifications entry.
var qualificationRules = []struct{ attr, rules string }{
	{"name", "required"},
	{"institution", "required"},
	{"year_completed", "required,year"},
}

// Validator applies the field rules of a Schema. It is pure & safe for concurrent use.
type Validator struct {
	schema     *Schema
	validate   *validator.Validate
	translator ut.Translator
}

func NewValidator(schema *Schema, validate *validator.Validate, translator ut.Translator) *Validator {
	return &Validator{schema: schema, validate: validate, translator: translator}
}

// ValidateField returns the first error message of a field value, or "" when valid.
// Unknown fields are always valid.
func (v *Validator) ValidateField(name string, value interface{}) string {
	f, ok := v.schema.Field(name)
	if !ok {
		return ""
	}
	switch f.Kind {
	case KindFile:
		if file, _ := value.(*File); file == nil && f.Required() {
			return v.message("", "required")
		}
		return ""
	case KindGroup:
		quals, _ := value.([]Qualification)
		if len(quals) == 0 && f.Required() {
			return v.message("", "required")
		}
		for _, q := range quals {
			errs := make(FieldErrors)
			if v.validateQualification(errs, q); !errs.Empty() {
				return msgInvalidEntries
			}
		}
		return ""
	case KindBool:
		b, _ := toBool(value)
		return v.message(b, f.Rules)
	default:
		return v.message(strings.TrimSpace(toString(value)), f.Rules)
	}
}

// ValidateTab validates every field the tab owns. ok is true when the tab is clean.
func (v *Validator) ValidateTab(tabID string, rec Record) (errs FieldErrors, ok bool) {
	errs = make(FieldErrors)
	sec, found := v.schema.Sections.Get(tabID)
	if !found {
		return errs, true
	}
	for _, name := range sec.Fields {
		v.validateInto(errs, name, rec)
	}
	return errs, errs.Empty()
}

// ValidateSubmission validates every declared field, whatever tab owns it.
func (v *Validator) ValidateSubmission(rec Record) (errs FieldErrors, ok bool) {
	errs = make(FieldErrors)
	for _, f := range v.schema.Fields {
		v.validateInto(errs, f.Name, rec)
	}
	return errs, errs.Empty()
}

func (v *Validator) validateInto(errs FieldErrors, name string, rec Record) {
	errs.add(name, v.ValidateField(name, rec[name]))
	if f, _ := v.schema.Field(name); f.Kind == KindGroup {
		for _, q := range rec.Qualifications(name) {
			v.validateQualification(errs, q)
		}
	}
}

func (v *Validator) validateQualification(errs FieldErrors, q Qualification) {
	values := map[string]string{
		"name":           q.Name,
		"institution":    q.Institution,
		"year_completed": q.YearCompleted,
	}
	for _, r := range qualificationRules {
		errs.add(qualificationErrorKey(q.ID, r.attr), v.message(strings.TrimSpace(values[r.attr]), r.rules))
	}
}

func (v *Validator) message(value interface{}, rules string) string {
	if rules == "" {
		return ""
	}
	err := v.validate.Var(value, rules)
	if err == nil {
		return ""
	}
	if vErrs, ok := err.(validator.ValidationErrors); ok && len(vErrs) > 0 {
		return vErrs[0].Translate(v.translator)
	}
	return err.Error()
}
