package admission

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Field declares one input of an entity form.
type Field struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Kind     Kind     `json:"-"`
	Rules    string   `json:"rules,omitempty"` // validator tags, e.g. "required,email"
	Options  []string `json:"options,omitempty"`
	Identity bool     `json:"identity,omitempty"` // hydrated from a selected record
}

func (f Field) Required() bool {
	for _, tag := range strings.Split(f.Rules, ",") {
		if strings.TrimSpace(tag) == "required" {
			return true
		}
	}
	return false
}

// Endpoints locate an entity on the backend, relative to the backend base URL.
type Endpoints struct {
	Collection string // POST create, e.g. "/students"
	Item       string // GET lookup & PUT update, "{id}" is replaced, e.g. "/students/{id}"
	Search     string // GET search, e.g. "/students/search"
}

func (e Endpoints) ItemPath(id string) string {
	return strings.ReplaceAll(e.Item, "{id}", id)
}

// Schema configures the generic workflow for one entity.
type Schema struct {
	Entity    Entity
	Fields    []Field
	Sections  Sections
	Endpoints Endpoints

	// IdentitySection is hydrated from a selected record.
	IdentitySection string
	// LockIdentity makes identity fields read-only in update mode.
	LockIdentity bool
	// SearchFields restrict the search to these fields when not empty.
	SearchFields []string
	// LabelFields compose a candidate label.
	LabelFields []string
	// EmailField & NameFields address the confirmation email, when set.
	EmailField string
	NameFields []string

	byName map[string]int
}

func (s *Schema) Field(name string) (Field, bool) {
	if s.byName == nil {
		for i, f := range s.Fields {
			if f.Name == rootField(name) {
				return s.Fields[i], true
			}
		}
		return Field{}, false
	}
	i, ok := s.byName[rootField(name)]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// FileField returns the binary field, if the entity has one.
func (s *Schema) FileField() (Field, bool) {
	for _, f := range s.Fields {
		if f.Kind == KindFile {
			return f, true
		}
	}
	return Field{}, false
}

func (s *Schema) IdentityFields() []Field {
	var out []Field
	sec, _ := s.Sections.Get(s.IdentitySection)
	for _, f := range s.Fields {
		if f.Identity || (sec.ID != "" && sec.Owns(f.Name)) {
			out = append(out, f)
		}
	}
	return out
}

// IsIdentity reports whether a field is hydrated from a selected record.
func (s *Schema) IsIdentity(name string) bool {
	for _, f := range s.IdentityFields() {
		if f.Name == rootField(name) {
			return true
		}
	}
	return false
}

// Check indexes the fields and enforces that sections partition the validatable fields.
func (s *Schema) Check() error {
	if s.Entity == "" {
		return errors.New("schema: entity is required")
	}
	if len(s.Sections) == 0 {
		return errors.Errorf("schema %s: at least one section is required", s.Entity)
	}
	s.byName = make(map[string]int, len(s.Fields))
	files := 0
	for i, f := range s.Fields {
		if _, dup := s.byName[f.Name]; dup {
			return errors.Errorf("schema %s: duplicate field %q", s.Entity, f.Name)
		}
		s.byName[f.Name] = i
		if f.Kind == KindFile {
			files++
		}
	}
	if files > 1 {
		return errors.Errorf("schema %s: only one file field is supported", s.Entity)
	}

	seen := make(map[string]bool, len(s.Sections))
	for _, sec := range s.Sections {
		if seen[sec.ID] {
			return errors.Errorf("schema %s: duplicate section %q", s.Entity, sec.ID)
		}
		seen[sec.ID] = true
		for _, name := range sec.Fields {
			if _, ok := s.byName[name]; !ok {
				return errors.Errorf("schema %s: section %q lists unknown field %q", s.Entity, sec.ID, name)
			}
		}
	}
	for _, f := range s.Fields {
		if f.Rules == "" && f.Kind != KindGroup {
			continue
		}
		if _, ok := s.Sections.Owner(f.Name); !ok {
			return errors.Errorf("schema %s: field %q can fail validation but no section owns it", s.Entity, f.Name)
		}
	}
	if s.IdentitySection != "" && !seen[s.IdentitySection] {
		return errors.Errorf("schema %s: unknown identity section %q", s.Entity, s.IdentitySection)
	}
	return nil
}

func (s *Schema) String() string {
	return fmt.Sprintf("%s admission", s.Entity)
}
