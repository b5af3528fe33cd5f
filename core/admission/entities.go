package admission

import "github.com/pkg/errors"

var (
	genders       = []string{"male", "female"}
	relationships = []string{"father", "mother", "guardian", "sponsor", "other"}
	bloodGroups   = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}
	employments   = []string{"tsc", "bom", "intern", "volunteer"}
)

// Student tabs
const (
	StudentTabPersonal = "personal"
	StudentTabSchool   = "school"
	StudentTabHealth   = "health"
	StudentTabGuardian = "guardian"
)

// StudentSchema is the student admission form.
func StudentSchema() *Schema {
	return mustCheck(&Schema{
		Entity: EntityStudent,
		Fields: []Field{
			{Name: "first_name", Label: "First Name", Rules: "required"},
			{Name: "middle_name", Label: "Middle Name"},
			{Name: "sir_name", Label: "Surname", Rules: "required"},
			{Name: "gender", Label: "Gender", Kind: KindEnum, Rules: "required,oneof=male female", Options: genders},
			{Name: "date_of_birth", Label: "Date of Birth", Kind: KindDate, Rules: "required,isodate,notfuture"},
			{Name: "birth_cert_no", Label: "Birth Certificate No.", Rules: "omitempty,digits"},
			{Name: "nationality", Label: "Nationality"},
			{Name: "religion", Label: "Religion"},
			{Name: "photo", Label: "Photo", Kind: KindFile},

			{Name: "adm_no", Label: "Admission No.", Rules: "omitempty,admno"},
			{Name: "stream_id", Label: "Stream", Rules: "required,digits"},
			{Name: "admission_date", Label: "Admission Date", Kind: KindDate, Rules: "omitempty,isodate,notfuture"},
			{Name: "upi_no", Label: "UPI No.", Rules: "omitempty,alphanum"},
			{Name: "previous_school", Label: "Previous School"},
			{Name: "is_boarder", Label: "Boarder", Kind: KindBool},

			{Name: "blood_group", Label: "Blood Group", Kind: KindEnum, Rules: "omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-", Options: bloodGroups},
			{Name: "allergies", Label: "Allergies"},
			{Name: "medical_conditions", Label: "Medical Conditions"},
			{Name: "has_special_needs", Label: "Special Needs", Kind: KindBool},

			{Name: "guardian_id", Label: "Guardian", Rules: "omitempty,digits"},
			{Name: "guardian_relationship", Label: "Relationship", Kind: KindEnum, Rules: "omitempty,oneof=father mother guardian sponsor other", Options: relationships},
		},
		Sections: Sections{
			{ID: StudentTabPersonal, Label: "Personal Details", Fields: []string{
				"first_name", "middle_name", "sir_name", "gender", "date_of_birth", "birth_cert_no", "nationality", "religion", "photo",
			}},
			{ID: StudentTabSchool, Label: "School Data", Fields: []string{
				"adm_no", "stream_id", "admission_date", "upi_no", "previous_school", "is_boarder",
			}},
			{ID: StudentTabHealth, Label: "Medical Info", Fields: []string{
				"blood_group", "allergies", "medical_conditions", "has_special_needs",
			}},
			{ID: StudentTabGuardian, Label: "Guardian", Fields: []string{"guardian_id", "guardian_relationship"}},
		},
		Endpoints:       Endpoints{Collection: "/students", Item: "/students/{id}", Search: "/students/search"},
		IdentitySection: StudentTabPersonal,
		SearchFields:    []string{"first_name", "sir_name", "adm_no"},
		LabelFields:     []string{"first_name", "sir_name", "adm_no"},
		NameFields:      []string{"first_name", "sir_name"},
	})
}

// Teacher tabs
const (
	TeacherTabPersonal       = "personal"
	TeacherTabEmployment     = "employment"
	TeacherTabQualifications = "qualifications"
)

// TeacherSchema is the teacher admission form. Identity fields lock once an existing teacher is selected.
func TeacherSchema() *Schema {
	return mustCheck(&Schema{
		Entity: EntityTeacher,
		Fields: []Field{
			{Name: "first_name", Label: "First Name", Rules: "required"},
			{Name: "sir_name", Label: "Surname", Rules: "required"},
			{Name: "gender", Label: "Gender", Kind: KindEnum, Rules: "required,oneof=male female", Options: genders},
			{Name: "id_no", Label: "National ID No.", Rules: "required,idnumber"},
			{Name: "date_of_birth", Label: "Date of Birth", Kind: KindDate, Rules: "omitempty,isodate,notfuture"},
			{Name: "email", Label: "Email", Rules: "required,email"},
			{Name: "phone", Label: "Phone", Rules: "required,phone"},
			{Name: "photo", Label: "Photo", Kind: KindFile},

			{Name: "tsc_no", Label: "TSC No.", Rules: "omitempty,digits"},
			{Name: "employment_type", Label: "Employment Type", Kind: KindEnum, Rules: "required,oneof=tsc bom intern volunteer", Options: employments},
			{Name: "department_id", Label: "Department", Rules: "omitempty,digits"},
			{Name: "date_employed", Label: "Date Employed", Kind: KindDate, Rules: "omitempty,isodate,notfuture"},
			{Name: "is_class_teacher", Label: "Class Teacher", Kind: KindBool},

			{Name: QualificationsField, Label: "Qualifications", Kind: KindGroup},
		},
		Sections: Sections{
			{ID: TeacherTabPersonal, Label: "Personal Info", Fields: []string{
				"first_name", "sir_name", "gender", "id_no", "date_of_birth", "email", "phone", "photo",
			}},
			{ID: TeacherTabEmployment, Label: "Employment", Fields: []string{
				"tsc_no", "employment_type", "department_id", "date_employed", "is_class_teacher",
			}},
			{ID: TeacherTabQualifications, Label: "Qualifications", Fields: []string{QualificationsField}},
		},
		Endpoints:       Endpoints{Collection: "/teachers", Item: "/teachers/{id}", Search: "/teachers/search"},
		IdentitySection: TeacherTabPersonal,
		LockIdentity:    true,
		SearchFields:    []string{"first_name", "sir_name", "id_no", "tsc_no"},
		LabelFields:     []string{"first_name", "sir_name", "id_no"},
		EmailField:      "email",
		NameFields:      []string{"first_name", "sir_name"},
	})
}

// Guardian tabs
const (
	GuardianTabPersonal = "personal"
	GuardianTabContact  = "contact"
	GuardianTabStudents = "students"
)

// GuardianSchema is the guardian admission form.
func GuardianSchema() *Schema {
	return mustCheck(&Schema{
		Entity: EntityGuardian,
		Fields: []Field{
			{Name: "first_name", Label: "First Name", Rules: "required"},
			{Name: "sir_name", Label: "Surname", Rules: "required"},
			{Name: "gender", Label: "Gender", Kind: KindEnum, Rules: "omitempty,oneof=male female", Options: genders},
			{Name: "id_no", Label: "National ID No.", Rules: "required,idnumber"},
			{Name: "relationship", Label: "Relationship", Kind: KindEnum, Rules: "required,oneof=father mother guardian sponsor other", Options: relationships},

			{Name: "phone", Label: "Phone", Rules: "required,phone"},
			{Name: "alt_phone", Label: "Alternative Phone", Rules: "omitempty,phone"},
			{Name: "email", Label: "Email", Rules: "omitempty,email"},
			{Name: "address", Label: "Address"},
			{Name: "occupation", Label: "Occupation"},

			{Name: "student_id", Label: "Student", Rules: "omitempty,digits"},
			{Name: "is_primary_contact", Label: "Primary Contact", Kind: KindBool},
			{Name: "receives_sms", Label: "Receives SMS", Kind: KindBool},
		},
		Sections: Sections{
			{ID: GuardianTabPersonal, Label: "Guardian Details", Fields: []string{"first_name", "sir_name", "gender", "id_no", "relationship"}},
			{ID: GuardianTabContact, Label: "Contact", Fields: []string{"phone", "alt_phone", "email", "address", "occupation"}},
			{ID: GuardianTabStudents, Label: "Linked Students", Fields: []string{"student_id", "is_primary_contact", "receives_sms"}},
		},
		Endpoints:       Endpoints{Collection: "/guardians", Item: "/guardians/{id}", Search: "/guardians/search"},
		IdentitySection: GuardianTabPersonal,
		SearchFields:    []string{"first_name", "sir_name", "id_no", "phone"},
		LabelFields:     []string{"first_name", "sir_name", "phone"},
		EmailField:      "email",
		NameFields:      []string{"first_name", "sir_name"},
	})
}

// SchemaFor returns the form of an entity.
func SchemaFor(entity Entity) (*Schema, error) {
	switch entity {
	case EntityStudent:
		return StudentSchema(), nil
	case EntityTeacher:
		return TeacherSchema(), nil
	case EntityGuardian:
		return GuardianSchema(), nil
	default:
		return nil, errors.Errorf("unknown entity %q", entity)
	}
}

func mustCheck(s *Schema) *Schema {
	if err := s.Check(); err != nil {
		panic(err)
	}
	return s
}
