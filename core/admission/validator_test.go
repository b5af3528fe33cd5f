package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidator_ValidateField(t *testing.T) {
	freezeToday(t, time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))

	student := newTestValidator(t, StudentSchema())
	teacher := newTestValidator(t, TeacherSchema())
	guardian := newTestValidator(t, GuardianSchema())

	tests := []struct {
		name  string
		v     *Validator
		field string
		value interface{}
		want  string
	}{
		{name: "unknown field", v: student, field: "lol", value: "", want: ""},
		{name: "required: missing", v: student, field: "first_name", value: nil, want: "this field is required"},
		{name: "required: blank", v: student, field: "first_name", value: "   ", want: "this field is required"},
		{name: "required: ok", v: student, field: "first_name", value: "Amina", want: ""},
		{name: "optional: missing", v: student, field: "middle_name", value: nil, want: ""},
		{name: "gender: invalid", v: student, field: "gender", value: "robot", want: "select a valid option"},
		{name: "gender: ok", v: student, field: "gender", value: "female", want: ""},
		{name: "dob: invalid", v: student, field: "date_of_birth", value: "01/05/2010", want: "enter a valid date (YYYY-MM-DD)"},
		{name: "dob: future", v: student, field: "date_of_birth", value: "2024-03-16", want: "date cannot be in the future"},
		{name: "dob: today", v: student, field: "date_of_birth", value: "2024-03-15", want: ""},
		{name: "stream: not digits", v: student, field: "stream_id", value: "3a", want: "only digits are allowed"},
		{name: "stream: ok", v: student, field: "stream_id", value: "3", want: ""},
		{name: "adm_no: optional", v: student, field: "adm_no", value: "", want: ""},
		{name: "adm_no: invalid", v: student, field: "adm_no", value: "A 12", want: `only letters, digits, "/" and "-" are allowed`},
		{name: "adm_no: ok", v: student, field: "adm_no", value: "ADM/2024-001", want: ""},
		{name: "upi: invalid", v: student, field: "upi_no", value: "A-1", want: "only letters and digits are allowed"},
		{name: "boarder: bool", v: student, field: "is_boarder", value: false, want: ""},
		{name: "photo: optional", v: student, field: "photo", value: nil, want: ""},
		{name: "id_no: too short", v: teacher, field: "id_no", value: "1234567", want: "must contain digits only and be at least 8 digits long"},
		{name: "id_no: letters", v: teacher, field: "id_no", value: "1234567A", want: "must contain digits only and be at least 8 digits long"},
		{name: "id_no: ok", v: teacher, field: "id_no", value: "12345678", want: ""},
		{name: "email: invalid", v: teacher, field: "email", value: "lol@", want: "enter a valid email address"},
		{name: "email: ok", v: teacher, field: "email", value: "jane@school.ac.ke", want: ""},
		{name: "phone: invalid", v: teacher, field: "phone", value: "0812345678", want: "enter a valid phone number"},
		{name: "phone: local", v: teacher, field: "phone", value: "0712345678", want: ""},
		{name: "phone: intl", v: teacher, field: "phone", value: "+254112345678", want: ""},
		{name: "employment: invalid", v: teacher, field: "employment_type", value: "contract", want: "select a valid option"},
		{name: "qualifications: optional", v: teacher, field: QualificationsField, value: nil, want: ""},
		{name: "guardian email: optional", v: guardian, field: "email", value: "", want: ""},
		{name: "guardian relationship: required", v: guardian, field: "relationship", value: "", want: "this field is required"},
		{name: "guardian alt phone: invalid", v: guardian, field: "alt_phone", value: "12", want: "enter a valid phone number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.ValidateField(tt.field, tt.value))
		})
	}
}

func TestValidator_ValidateTab(t *testing.T) {
	freezeToday(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))

	records := []Record{
		{},
		{"first_name": "Amina", "sir_name": "Otieno", "gender": "female", "date_of_birth": "2010-05-01", "stream_id": "3"},
		{"first_name": "Amina", "gender": "x", "date_of_birth": "2099-01-01", "stream_id": "three", "adm_no": "ok/1"},
		{"first_name": "Jane", "sir_name": "Doe", "gender": "female", "id_no": "12345678", "email": "j@d.co", "phone": "0712345678", "employment_type": "tsc"},
		{"phone": "0712345678", "relationship": "mother", "blood_group": "Z"},
	}

	for _, schema := range []*Schema{StudentSchema(), TeacherSchema(), GuardianSchema()} {
		v := newTestValidator(t, schema)
		for i, rec := range records {
			for _, sec := range schema.Sections {
				errs, ok := v.ValidateTab(sec.ID, rec)

				wantOK := true
				for _, name := range sec.Fields {
					if v.ValidateField(name, rec[name]) != "" {
						wantOK = false
					}
				}
				assert.Equalf(t, wantOK, ok, "%s record %d tab %s", schema.Entity, i, sec.ID)
				assert.Equalf(t, wantOK, errs.Empty(), "%s record %d tab %s", schema.Entity, i, sec.ID)
				for _, key := range errs.Keys() {
					assert.Truef(t, sec.Owns(key), "%s: %s not owned by %s", schema.Entity, key, sec.ID)
				}
			}
		}
	}

	t.Run("unknown tab is clean", func(t *testing.T) {
		errs, ok := newTestValidator(t, StudentSchema()).ValidateTab("lol", Record{})
		assert.True(t, ok)
		assert.Empty(t, errs)
	})
}

func TestValidator_ValidateSubmission(t *testing.T) {
	freezeToday(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name     string
		schema   *Schema
		rec      Record
		wantKeys []string
	}{
		{
			name:   "student: minimal",
			schema: StudentSchema(),
			rec:    Record{"first_name": "Amina", "sir_name": "Otieno", "gender": "female", "date_of_birth": "2010-05-01", "stream_id": "3"},
		},
		{
			name:     "student: missing stream",
			schema:   StudentSchema(),
			rec:      Record{"first_name": "Amina", "sir_name": "Otieno", "gender": "female", "date_of_birth": "2010-05-01"},
			wantKeys: []string{"stream_id"},
		},
		{
			name:     "student: empty",
			schema:   StudentSchema(),
			rec:      Record{},
			wantKeys: []string{"date_of_birth", "first_name", "gender", "sir_name", "stream_id"},
		},
		{
			name:   "teacher: qualification entries",
			schema: TeacherSchema(),
			rec: Record{
				"first_name": "Jane", "sir_name": "Doe", "gender": "female", "id_no": "12345678",
				"email": "jane@school.ac.ke", "phone": "0712345678", "employment_type": "bom",
				QualificationsField: []Qualification{
					{ID: "q1", Name: "B.Ed", Institution: "Kenyatta University", YearCompleted: "2015"},
					{ID: "q2", Name: "", Institution: "Moi University", YearCompleted: "15"},
				},
			},
			wantKeys: []string{"qualifications", "qualifications.q2.name", "qualifications.q2.year_completed"},
		},
		{
			name:     "guardian: missing contact",
			schema:   GuardianSchema(),
			rec:      Record{"first_name": "Mary", "sir_name": "Otieno", "id_no": "23456789", "relationship": "mother"},
			wantKeys: []string{"phone"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs, ok := newTestValidator(t, tt.schema).ValidateSubmission(tt.rec)
			assert.Equal(t, len(tt.wantKeys) == 0, ok)
			if len(tt.wantKeys) == 0 {
				assert.Empty(t, errs.Keys())
			} else {
				assert.Equal(t, tt.wantKeys, errs.Keys())
			}
		})
	}
}
