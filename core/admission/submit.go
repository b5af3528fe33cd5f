package admission

import (
	"context"
	"net/http"
	"net/mail"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

const (
	msgTransport = "could not reach the server, please try again"
	msgRejected  = "the submission was rejected, please try again"
)

type SubmitterOptions struct {
	Encoder Encoder // FormEncoder by default
	// SpoofPut sends updates as POST with a _method=PUT field.
	SpoofPut bool
	Mailer   core.EmailService
	Logger   core.Logger
	// OnSubmitting observes the submitting flag.
	OnSubmitting func(submitting bool)
}

// Submitter sends the draft to the backend, one submission at a time.
type Submitter struct {
	schema       *Schema
	store        FormStore
	validator    *Validator
	backend      Backend
	encoder      Encoder
	spoofPut     bool
	mailer       core.EmailService
	logger       core.Logger
	onSubmitting func(bool)

	mu         sync.Mutex
	submitting bool
}

func NewSubmitter(schema *Schema, store FormStore, v *Validator, backend Backend, opts SubmitterOptions) *Submitter {
	if opts.Encoder == nil {
		opts.Encoder = FormEncoder{}
	}
	if opts.Logger == nil {
		opts.Logger = core.NopLogger
	}
	return &Submitter{
		schema:       schema,
		store:        store,
		validator:    v,
		backend:      backend,
		encoder:      opts.Encoder,
		spoofPut:     opts.SpoofPut,
		mailer:       opts.Mailer,
		logger:       opts.Logger,
		onSubmitting: opts.OnSubmitting,
	}
}

func (s *Submitter) Submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}

// Submit validates the draft, then creates or updates the record.
// On success the store is reset and the saved record returned.
// Failures are written to the store and returned as *SubmitError;
// a call made while another one runs returns ErrSubmitInFlight.
func (s *Submitter) Submit(ctx context.Context) (Record, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	snap := s.store.Snapshot()
	s.store.ClearFieldError(GeneralKey)

	if errs, ok := s.validator.ValidateSubmission(snap.Record); !ok {
		s.store.SetErrors(errs)
		return nil, &SubmitError{Kind: ClientValidation, Fields: errs, Tab: s.navigate(errs)}
	}

	method, path, extra := http.MethodPost, s.schema.Endpoints.Collection, map[string]string(nil)
	if snap.Selected != nil {
		method, path = http.MethodPut, s.schema.Endpoints.ItemPath(snap.Selected.ID)
		if s.spoofPut {
			method, extra = http.MethodPost, map[string]string{"_method": http.MethodPut}
		}
	}

	payload, err := s.encoder.Encode(s.schema, snap.Record, extra)
	if err != nil {
		err = errors.Wrap(err, "encoding submission")
		s.logger.Error(err.Error(), err)
		return nil, s.fail(Transport, msgTransport, err)
	}

	saved, err := s.backend.Send(ctx, method, path, payload)
	if err != nil {
		return nil, s.failed(snap, err)
	}

	s.store.Reset()
	s.confirm(snap, saved)
	return saved, nil
}

func (s *Submitter) begin() error {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return ErrSubmitInFlight
	}
	s.submitting = true
	s.mu.Unlock()
	if s.onSubmitting != nil {
		s.onSubmitting(true)
	}
	return nil
}

func (s *Submitter) end() {
	s.mu.Lock()
	s.submitting = false
	s.mu.Unlock()
	if s.onSubmitting != nil {
		s.onSubmitting(false)
	}
}

// failed maps a backend error into the store.
func (s *Submitter) failed(snap Snapshot, err error) error {
	var rErr *ResponseError
	if !errors.As(err, &rErr) {
		s.logger.Warn("submitting "+s.schema.String(), err)
		return s.fail(Transport, msgTransport, err)
	}
	if len(rErr.Fields) == 0 {
		msg := rErr.Message
		if msg == "" || rErr.StatusCode >= http.StatusInternalServerError {
			msg = msgRejected
		}
		return s.fail(Rejected, msg, err)
	}

	fields := rekeyQualificationErrors(rErr.Fields, snap.Record.Qualifications(QualificationsField))
	// errors no tab can show are surfaced as form-wide errors too
	for _, key := range s.schema.Sections.unowned(fields) {
		fields.add(GeneralKey, fields[key]...)
	}
	s.store.MergeErrors(fields)
	return &SubmitError{Kind: ServerValidation, Fields: fields, Tab: s.navigate(fields), Err: err}
}

func (s *Submitter) fail(kind ErrorKind, msg string, err error) error {
	fields := FieldErrors{GeneralKey: Messages{msg}}
	s.store.MergeErrors(fields)
	return &SubmitError{Kind: kind, Fields: fields, Err: err}
}

// navigate activates the first tab with an error, if any.
func (s *Submitter) navigate(errs FieldErrors) string {
	tab, ok := s.schema.Sections.FirstTabWithError(errs.Keys())
	if !ok {
		return ""
	}
	s.store.SetActiveTab(tab.ID)
	return tab.ID
}

type confirmationData struct {
	Name      string
	Entity    string
	Updated   bool
	Reference string
}

// confirm emails the admitted person, when the entity has an email field & one was given.
func (s *Submitter) confirm(snap Snapshot, saved Record) {
	if s.mailer == nil || s.schema.EmailField == "" {
		return
	}
	addr, err := mail.ParseAddress(snap.Record.String(s.schema.EmailField))
	if err != nil {
		return
	}

	names := make([]string, 0, len(s.schema.NameFields))
	for _, f := range s.schema.NameFields {
		if n := strings.TrimSpace(snap.Record.String(f)); n != "" {
			names = append(names, n)
		}
	}
	addr.Name = strings.Join(names, " ")

	subject, ref := "Admission received", toString(saved["id"])
	if snap.Selected != nil {
		subject = "Admission updated"
		if ref == "" {
			ref = snap.Selected.ID
		}
	}
	s.mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{*addr},
		Subject:      subject,
		TemplateName: "admission_received",
		TemplateData: confirmationData{
			Name:      addr.Name,
			Entity:    string(s.schema.Entity),
			Updated:   snap.Selected != nil,
			Reference: ref,
		},
	})
}
