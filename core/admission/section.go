package admission

import "strings"

// Section is a named group of fields presented as one tab.
type Section struct {
	ID     string   `json:"id"`
	Label  string   `json:"label"`
	Fields []string `json:"fields"`
}

func (s Section) Owns(field string) bool {
	root := rootField(field)
	for _, f := range s.Fields {
		if f == root {
			return true
		}
	}
	return false
}

// Sections is the ordered tab registry of an entity.
type Sections []Section

func (ss Sections) First() Section {
	if len(ss) == 0 {
		return Section{}
	}
	return ss[0]
}

func (ss Sections) Get(id string) (Section, bool) {
	for _, s := range ss {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

func (ss Sections) index(id string) int {
	for i, s := range ss {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Next returns the section after id, if any.
func (ss Sections) Next(id string) (Section, bool) {
	if i := ss.index(id); i >= 0 && i+1 < len(ss) {
		return ss[i+1], true
	}
	return Section{}, false
}

// Prev returns the section before id, if any.
func (ss Sections) Prev(id string) (Section, bool) {
	if i := ss.index(id); i > 0 {
		return ss[i-1], true
	}
	return Section{}, false
}

// Owner returns the first section owning a field (or a nested key of it).
func (ss Sections) Owner(field string) (Section, bool) {
	for _, s := range ss {
		if s.Owns(field) {
			return s, true
		}
	}
	return Section{}, false
}

// ErrorsForTab returns the entries of errs owned by the tab.
func (ss Sections) ErrorsForTab(id string, errs FieldErrors) FieldErrors {
	out := make(FieldErrors)
	s, ok := ss.Get(id)
	if !ok {
		return out
	}
	for _, key := range errs.Keys() {
		if s.Owns(key) {
			out[key] = append(Messages(nil), errs[key]...)
		}
	}
	return out
}

func (ss Sections) HasErrors(id string, errs FieldErrors) bool {
	return len(ss.ErrorsForTab(id, errs)) > 0
}

// FirstTabWithError returns the first section, in declared order, owning any of keys.
// Keys owned by no section (e.g. _general) are ignored.
func (ss Sections) FirstTabWithError(keys []string) (Section, bool) {
	for _, s := range ss {
		for _, k := range keys {
			if s.Owns(k) {
				return s, true
			}
		}
	}
	return Section{}, false
}

// unowned returns the keys of errs that no section owns.
func (ss Sections) unowned(errs FieldErrors) []string {
	var keys []string
	for _, k := range errs.Keys() {
		if k == GeneralKey {
			continue
		}
		if _, ok := ss.Owner(k); !ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// rootField strips nested parts: "qualifications.0.name" -> "qualifications".
func rootField(key string) string {
	if i := strings.IndexAny(key, ".["); i >= 0 {
		return key[:i]
	}
	return key
}

// TabStatus is the badge state of one tab.
type TabStatus struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Active     bool   `json:"active"`
	Complete   bool   `json:"complete"`
	ErrorCount int    `json:"error_count"`
}

// Statuses computes the badge of every tab. A tab is complete when one of its fields is filled,
// all of them pass validation and no error is recorded against it.
func (ss Sections) Statuses(active string, rec Record, errs FieldErrors, v *Validator) []TabStatus {
	out := make([]TabStatus, 0, len(ss))
	for _, s := range ss {
		st := TabStatus{ID: s.ID, Label: s.Label, Active: s.ID == active}
		st.ErrorCount = len(ss.ErrorsForTab(s.ID, errs))

		filled := false
		for _, f := range s.Fields {
			if !rec.IsEmpty(f) {
				filled = true
				break
			}
		}
		if filled && st.ErrorCount == 0 {
			_, st.Complete = v.ValidateTab(s.ID, rec)
		}
		out = append(out, st)
	}
	return out
}
