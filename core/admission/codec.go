package admission

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

const (
	ContentTypeForm = "application/x-www-form-urlencoded"
	ContentTypeJSON = "application/json"
)

// Payload is an encoded request body.
type Payload struct {
	ContentType string
	Body        []byte
}

// Encoder serializes a record for the backend.
// extra values (e.g. _method) are sent as is, after the record fields.
type Encoder interface {
	Encode(schema *Schema, rec Record, extra map[string]string) (*Payload, error)
}

// FormEncoder speaks the form conventions of the school records backend:
// booleans are "1"/"0", dates are ISO dates, and a record with a file is sent as multipart,
// with the qualifications group as a JSON string.
type FormEncoder struct{}

var _ Encoder = FormEncoder{}

func (FormEncoder) Encode(schema *Schema, rec Record, extra map[string]string) (*Payload, error) {
	if ff, ok := schema.FileField(); ok && rec.File(ff.Name) != nil {
		return encodeMultipart(schema, rec, extra)
	}

	vals := make(url.Values)
	for _, f := range schema.Fields {
		v, ok := rec[f.Name]
		if !ok || v == nil {
			continue
		}
		switch f.Kind {
		case KindFile:
			continue
		case KindGroup:
			for i, q := range rec.Qualifications(f.Name) {
				prefix := f.Name + "[" + strconv.Itoa(i) + "]"
				vals.Set(prefix+"[name]", q.Name)
				vals.Set(prefix+"[institution]", q.Institution)
				vals.Set(prefix+"[year_completed]", q.YearCompleted)
				vals.Set(prefix+"[tsc_registered]", formBool(q.TSCRegistered))
			}
		default:
			vals.Set(f.Name, formValue(f.Kind, v))
		}
	}
	for k, v := range extra {
		vals.Set(k, v)
	}
	return &Payload{ContentType: ContentTypeForm, Body: []byte(vals.Encode())}, nil
}

func encodeMultipart(schema *Schema, rec Record, extra map[string]string) (*Payload, error) {
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)

	for _, f := range schema.Fields {
		v, ok := rec[f.Name]
		if !ok || v == nil {
			continue
		}
		var err error
		switch f.Kind {
		case KindFile:
			err = writeFilePart(w, f.Name, rec.File(f.Name))
		case KindGroup:
			var data []byte
			if data, err = json.Marshal(wireQualifications(rec.Qualifications(f.Name))); err == nil {
				err = w.WriteField(f.Name, string(data))
			}
		default:
			err = w.WriteField(f.Name, formValue(f.Kind, v))
		}
		if err != nil {
			return nil, errors.Wrapf(err, "writing %s", f.Name)
		}
	}
	for _, k := range sortedKeys(extra) {
		if err := w.WriteField(k, extra[k]); err != nil {
			return nil, errors.Wrapf(err, "writing %s", k)
		}
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "closing multipart body")
	}
	return &Payload{ContentType: w.FormDataContentType(), Body: body.Bytes()}, nil
}

func writeFilePart(w *multipart.Writer, field string, file *File) error {
	if file == nil {
		return nil
	}
	ct := file.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", multipart.FileContentDisposition(field, file.Name))
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(file.Content)
	return err
}

func formValue(kind Kind, v interface{}) string {
	switch kind {
	case KindBool:
		b, _ := toBool(v)
		return formBool(b)
	case KindDate:
		s := toString(v)
		if t, err := core.ParseDate(s); err == nil {
			return t.Format(core.DateLayout)
		}
		return s
	default:
		return toString(v)
	}
}

func formBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// JSONEncoder sends a plain JSON object; files are base64 encoded.
type JSONEncoder struct{}

var _ Encoder = JSONEncoder{}

type jsonFile struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

func (JSONEncoder) Encode(schema *Schema, rec Record, extra map[string]string) (*Payload, error) {
	obj := make(map[string]interface{}, len(rec)+len(extra))
	for _, f := range schema.Fields {
		v, ok := rec[f.Name]
		if !ok || v == nil {
			continue
		}
		switch f.Kind {
		case KindFile:
			if file := rec.File(f.Name); file != nil {
				obj[f.Name] = jsonFile{Name: file.Name, ContentType: file.ContentType, Content: file.Content}
			}
		case KindGroup:
			obj[f.Name] = wireQualifications(rec.Qualifications(f.Name))
		case KindBool:
			obj[f.Name], _ = toBool(v)
		default:
			obj[f.Name] = formValue(f.Kind, v)
		}
	}
	for k, v := range extra {
		obj[k] = v
	}
	body, err := json.Marshal(obj)
	if err != nil {
		return nil, errors.Wrap(err, "encoding record")
	}
	return &Payload{ContentType: ContentTypeJSON, Body: body}, nil
}

// wireQualifications drops the synthetic IDs.
func wireQualifications(quals []Qualification) []Qualification {
	out := make([]Qualification, len(quals))
	for i, q := range quals {
		q.ID = ""
		out[i] = q
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
