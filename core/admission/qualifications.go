package admission

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// QualificationsField is the teacher repeating group.
const QualificationsField = "qualifications"

var ErrQualificationNotFound = errors.New("qualification not found")

// Qualification is one entry of the teacher qualifications group.
// ID is a stable synthetic identifier; it is not part of the wire format.
type Qualification struct {
	ID            string `json:"id,omitempty"`
	Name          string `json:"name"`
	Institution   string `json:"institution"`
	YearCompleted string `json:"year_completed"`
	TSCRegistered bool   `json:"tsc_registered"`
}

// QualificationPatch holds the fields to change on a Qualification; nil fields are left as is.
type QualificationPatch struct {
	Name          *string `json:"name"`
	Institution   *string `json:"institution"`
	YearCompleted *string `json:"year_completed"`
	TSCRegistered *bool   `json:"tsc_registered"`
}

func (p QualificationPatch) apply(q *Qualification) {
	if p.Name != nil {
		q.Name = strings.TrimSpace(*p.Name)
	}
	if p.Institution != nil {
		q.Institution = strings.TrimSpace(*p.Institution)
	}
	if p.YearCompleted != nil {
		q.YearCompleted = strings.TrimSpace(*p.YearCompleted)
	}
	if p.TSCRegistered != nil {
		q.TSCRegistered = *p.TSCRegistered
	}
}

// UnmarshalJSON accepts tsc_registered as a boolean or as "1"/"0".
func (q *Qualification) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID            string      `json:"id"`
		Name          string      `json:"name"`
		Institution   string      `json:"institution"`
		YearCompleted interface{} `json:"year_completed"`
		TSCRegistered interface{} `json:"tsc_registered"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	reg, ok := toBool(raw.TSCRegistered)
	if !ok && raw.TSCRegistered != nil {
		return fmt.Errorf("tsc_registered: %v is not a boolean", raw.TSCRegistered)
	}
	*q = Qualification{
		ID:            raw.ID,
		Name:          raw.Name,
		Institution:   raw.Institution,
		YearCompleted: toString(raw.YearCompleted),
		TSCRegistered: reg,
	}
	return nil
}

// withIDs gives every entry lacking one a fresh ID.
func withIDs(quals []Qualification) []Qualification {
	out := make([]Qualification, len(quals))
	for i, q := range quals {
		if q.ID == "" {
			q.ID = uuid.New().String()
		}
		out[i] = q
	}
	return out
}

func indexOfQualification(quals []Qualification, id string) int {
	for i, q := range quals {
		if q.ID == id {
			return i
		}
	}
	return -1
}

// qualificationErrorKey is the error key of one entry attribute.
func qualificationErrorKey(id, attr string) string {
	return QualificationsField + "." + id + "." + attr
}

// rekeyQualificationErrors maps index-keyed server errors (qualifications.0.name)
// onto the stable IDs of the entries that were submitted.
func rekeyQualificationErrors(errs FieldErrors, submitted []Qualification) FieldErrors {
	out := make(FieldErrors, len(errs))
	for key, msgs := range errs {
		parts := strings.SplitN(key, ".", 3)
		if len(parts) >= 2 && parts[0] == QualificationsField {
			if idx, err := strconv.Atoi(parts[1]); err == nil && idx >= 0 && idx < len(submitted) && submitted[idx].ID != "" {
				parts[1] = submitted[idx].ID
				key = strings.Join(parts, ".")
			}
		}
		out[key] = append(out[key], msgs...)
	}
	return out
}
