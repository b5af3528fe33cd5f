package core

import (
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// DateLayout is the wire & storage layout of date fields.
const DateLayout = "2006-01-02"

var (
	// custom validation tags & texts
	digitsTag   = "digits"
	digitsText  = "only digits are allowed"
	digitsRegex = regexp.MustCompile(`^\d+$`)

	idNumberTag   = "idnumber"
	idNumberText  = "must contain digits only and be at least 8 digits long"
	idNumberRegex = regexp.MustCompile(`^\d{8,}$`)

	phoneTag   = "phone"
	phoneText  = "enter a valid phone number"
	phoneRegex = regexp.MustCompile(`^(?:\+254|0)[17]\d{8}$`)

	isoDateTag  = "isodate"
	isoDateText = "enter a valid date (YYYY-MM-DD)"

	notFutureTag  = "notfuture"
	notFutureText = "date cannot be in the future"

	yearTag   = "year"
	yearText  = "enter a valid year"
	yearRegex = regexp.MustCompile(`^\d{4}$`)

	admNoTag   = "admno"
	admNoText  = `only letters, digits, "/" and "-" are allowed`
	admNoRegex = regexp.MustCompile(`^[A-Za-z0-9/-]+$`)

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"

	emailTag  = "email"
	emailText = "enter a valid email address"

	oneOfTag  = "oneof"
	oneOfText = "select a valid option"

	alphaNumTag  = "alphanum"
	alphaNumText = "only letters and digits are allowed"
)

// NewValidator instantiates a validator & its english translator, with the custom tags registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	InitValidators(validate, translator)
	return validate, translator
}

// InitValidators registers the default translations, the custom tags and their texts.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	register := func(tag, text string, fn validator.Func) {
		_ = validate.RegisterValidation(tag, fn)
		RegisterCustomTranslation(validate, translator, tag, text)
	}
	register(digitsTag, digitsText, regexValidation(digitsRegex))
	register(idNumberTag, idNumberText, regexValidation(idNumberRegex))
	register(phoneTag, phoneText, regexValidation(phoneRegex))
	register(yearTag, yearText, regexValidation(yearRegex))
	register(admNoTag, admNoText, regexValidation(admNoRegex))
	register(isoDateTag, isoDateText, isoDateValidation)
	register(notFutureTag, notFutureText, notFutureValidation)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, emailTag, emailText, true)
	RegisterCustomTranslation(validate, translator, oneOfTag, oneOfText, true)
	RegisterCustomTranslation(validate, translator, alphaNumTag, alphaNumText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// ParseDate parses a YYYY-MM-DD date, also accepting full RFC3339 timestamps.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, nil
		}
	}
	return time.Parse(DateLayout, s)
}

// Custom Global Validators

func regexValidation(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// isoDateValidation only allows YYYY-MM-DD dates.
func isoDateValidation(fl validator.FieldLevel) bool {
	_, err := time.Parse(DateLayout, fl.Field().String())
	return err == nil
}

// notFutureValidation rejects dates after today. Unparsable dates are left to `isodate`.
func notFutureValidation(fl validator.FieldLevel) bool {
	t, err := ParseDate(fl.Field().String())
	if err != nil {
		return true
	}
	y, m, d := t.Date()
	return !time.Date(y, m, d, 0, 0, 0, 0, time.UTC).After(Today())
}
