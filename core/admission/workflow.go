package admission

import (
	"context"
	"strings"
	"sync"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

type Options struct {
	Schema  *Schema
	Backend Backend

	// Store overrides the default Store, in which case Drafts & DraftKey are ignored.
	Store    FormStore
	Drafts   DraftStore
	DraftKey string // defaults to the entity name

	Validate   *validator.Validate
	Translator ut.Translator

	Clock            Clock
	Debounce         time.Duration
	AutoSelectSingle bool
	Rank             bool
	// Lookup fetches the full record of a selected candidate.
	Lookup bool

	Encoder      Encoder
	SpoofPut     bool
	Mailer       core.EmailService
	Logger       core.Logger
	OnSubmitting func(submitting bool)
}

// Workflow drives one admission form: tabs, validation, drafts, search & submission.
type Workflow struct {
	schema    *Schema
	store     FormStore
	validator *Validator
	searcher  *Searcher
	submitter *Submitter
	backend   Backend
	lookup    bool
	autoPick  bool
	logger    core.Logger

	edit   sync.Mutex // serializes read-modify-write of the record
	mu     sync.RWMutex
	closed bool
}

// New builds a workflow, restoring the persisted draft when there is one.
func New(ctx context.Context, opts Options) (*Workflow, error) {
	if opts.Schema == nil {
		return nil, errors.New("admission: schema is required")
	}
	if opts.Backend == nil {
		return nil, errors.New("admission: backend is required")
	}
	if opts.Logger == nil {
		opts.Logger = core.NopLogger
	}
	if opts.Validate == nil || opts.Translator == nil {
		opts.Validate, opts.Translator = core.NewValidator()
	}

	w := &Workflow{
		schema:    opts.Schema,
		store:     opts.Store,
		validator: NewValidator(opts.Schema, opts.Validate, opts.Translator),
		backend:   opts.Backend,
		lookup:    opts.Lookup,
		autoPick:  opts.AutoSelectSingle,
		logger:    opts.Logger,
	}

	if w.store == nil {
		store := NewStore(opts.Schema, opts.Drafts, opts.DraftKey, opts.Logger)
		restored, err := store.Restore(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "restoring draft")
		}
		w.store = store
		if sel := store.Snapshot().Selected; restored && sel != nil && w.lookup {
			w.store.Select(*sel, w.hydrate(ctx, *sel))
		}
	}

	w.searcher = NewSearcher(opts.Schema, opts.Backend, SearcherOptions{
		Clock:     opts.Clock,
		Debounce:  opts.Debounce,
		Rank:      opts.Rank,
		Logger:    opts.Logger,
		OnResults: w.onResults,
	})
	w.submitter = NewSubmitter(opts.Schema, w.store, w.validator, opts.Backend, SubmitterOptions{
		Encoder:      opts.Encoder,
		SpoofPut:     opts.SpoofPut,
		Mailer:       opts.Mailer,
		Logger:       opts.Logger,
		OnSubmitting: opts.OnSubmitting,
	})
	return w, nil
}

func (w *Workflow) Schema() *Schema       { return w.schema }
func (w *Workflow) Validator() *Validator { return w.validator }

// State is everything a page needs to render the form.
type State struct {
	Entity     Entity      `json:"entity"`
	Mode       Mode        `json:"mode"`
	Record     Record      `json:"record"`
	Errors     FieldErrors `json:"errors"`
	ActiveTab  string      `json:"active_tab"`
	Tabs       []TabStatus `json:"tabs"`
	Selected   *Candidate  `json:"selected,omitempty"`
	Locked     []string    `json:"locked,omitempty"`
	Search     SearchState `json:"search"`
	Submitting bool        `json:"submitting"`
}

func (w *Workflow) State() State {
	snap := w.store.Snapshot()
	st := State{
		Entity:     w.schema.Entity,
		Mode:       snap.Mode(),
		Record:     snap.Record,
		Errors:     snap.Errors,
		ActiveTab:  snap.ActiveTab,
		Tabs:       w.schema.Sections.Statuses(snap.ActiveTab, snap.Record, snap.Errors, w.validator),
		Selected:   snap.Selected,
		Search:     w.searcher.State(),
		Submitting: w.submitter.Submitting(),
	}
	if w.schema.LockIdentity && snap.Selected != nil {
		for _, f := range w.schema.IdentityFields() {
			st.Locked = append(st.Locked, f.Name)
		}
	}
	return st
}

// UpdateField sets a field from loosely typed input and clears its error.
func (w *Workflow) UpdateField(name string, value interface{}) error {
	if err := w.check(); err != nil {
		return err
	}
	f, ok := w.schema.Field(name)
	if !ok || f.Name != name {
		return errors.Wrap(ErrUnknownField, name)
	}
	if w.locked(name) {
		return errors.Wrap(ErrFieldLocked, name)
	}

	v, err := coerce(f.Kind, value)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: name, Error: err.Error()})
	}
	if quals, isGroup := v.([]Qualification); isGroup {
		v = withIDs(quals)
	}

	w.edit.Lock()
	defer w.edit.Unlock()
	if f.Kind == KindGroup {
		w.clearNestedErrors(name)
	}
	w.store.UpdateField(name, v)
	return nil
}

// SetActiveTab moves to any tab without validating.
func (w *Workflow) SetActiveTab(id string) error {
	if _, ok := w.schema.Sections.Get(id); !ok {
		return errors.Wrap(ErrUnknownTab, id)
	}
	w.store.SetActiveTab(id)
	return nil
}

// Next validates the active tab and moves to the next one when it is clean.
// On the last tab it stays put.
func (w *Workflow) Next() (Section, error) {
	snap := w.store.Snapshot()
	errs, ok := w.validator.ValidateTab(snap.ActiveTab, snap.Record)

	// the tab's errors are replaced by the fresh ones
	merged := make(FieldErrors, len(snap.Errors)+len(errs))
	for k, msgs := range snap.Errors {
		if owner, owned := w.schema.Sections.Owner(k); !owned || owner.ID != snap.ActiveTab {
			merged[k] = msgs
		}
	}
	for k, msgs := range errs {
		merged[k] = msgs
	}
	w.store.SetErrors(merged)

	cur, _ := w.schema.Sections.Get(snap.ActiveTab)
	if !ok {
		return cur, core.NewValidationError(ErrTabInvalid, errs.Fields()...)
	}
	next, found := w.schema.Sections.Next(snap.ActiveTab)
	if !found {
		return cur, nil
	}
	w.store.SetActiveTab(next.ID)
	return next, nil
}

// Prev moves to the previous tab without validating.
func (w *Workflow) Prev() Section {
	snap := w.store.Snapshot()
	prev, found := w.schema.Sections.Prev(snap.ActiveTab)
	if !found {
		cur, _ := w.schema.Sections.Get(snap.ActiveTab)
		return cur
	}
	w.store.SetActiveTab(prev.ID)
	return prev
}

// Schedule runs a debounced search.
func (w *Workflow) Schedule(query string) {
	if w.check() != nil {
		return
	}
	w.searcher.Schedule(query)
}

// Search runs a search right away.
func (w *Workflow) Search(ctx context.Context, query string) (SearchState, error) {
	if err := w.check(); err != nil {
		return SearchState{}, err
	}
	return w.searcher.Search(ctx, query), nil
}

// Select switches to update mode on one of the current search results.
func (w *Workflow) Select(ctx context.Context, candidateID string) error {
	if err := w.check(); err != nil {
		return err
	}
	c, ok := w.searcher.Candidate(candidateID)
	if !ok {
		return errors.Wrap(ErrNoCandidate, candidateID)
	}
	w.selectCandidate(ctx, c)
	return nil
}

// ClearSelection goes back to create mode, keeping the record as is.
func (w *Workflow) ClearSelection() {
	w.store.ClearSelection()
}

func (w *Workflow) onResults(cs []Candidate) {
	if w.autoPick && len(cs) == 1 {
		w.selectCandidate(context.Background(), cs[0])
	}
}

func (w *Workflow) selectCandidate(ctx context.Context, c Candidate) {
	w.edit.Lock()
	defer w.edit.Unlock()
	w.store.Select(c, w.hydrate(ctx, c))
}

// hydrate returns the identity fields of a candidate, fetched by id when lookups are enabled.
func (w *Workflow) hydrate(ctx context.Context, c Candidate) Record {
	src := c.Fields
	if w.lookup && c.ID != "" {
		full, err := w.backend.Lookup(ctx, w.schema.Endpoints.ItemPath(c.ID))
		if err != nil {
			w.logger.Warn("looking up "+string(w.schema.Entity)+" "+c.ID, err)
		} else {
			src = full
		}
	}

	rec := make(Record)
	for _, f := range w.schema.IdentityFields() {
		raw, ok := src[f.Name]
		if !ok || raw == nil || f.Kind == KindFile {
			continue
		}
		if v, err := coerce(f.Kind, raw); err == nil && v != nil {
			rec[f.Name] = v
		}
	}
	return rec
}

// AddQualification appends an entry and returns it with its ID.
func (w *Workflow) AddQualification(q Qualification) (Qualification, error) {
	if err := w.checkGroup(); err != nil {
		return Qualification{}, err
	}
	w.edit.Lock()
	defer w.edit.Unlock()

	q.ID = uuid.New().String()
	q.Name = strings.TrimSpace(q.Name)
	q.Institution = strings.TrimSpace(q.Institution)
	q.YearCompleted = strings.TrimSpace(q.YearCompleted)
	quals := append(w.qualifications(), q)
	w.store.UpdateField(QualificationsField, quals)
	return q, nil
}

func (w *Workflow) UpdateQualification(id string, patch QualificationPatch) (Qualification, error) {
	if err := w.checkGroup(); err != nil {
		return Qualification{}, err
	}
	w.edit.Lock()
	defer w.edit.Unlock()

	quals := w.qualifications()
	i := indexOfQualification(quals, id)
	if i < 0 {
		return Qualification{}, errors.Wrap(ErrQualificationNotFound, id)
	}
	patch.apply(&quals[i])
	w.clearQualificationErrors(id)
	w.store.UpdateField(QualificationsField, quals)
	return quals[i], nil
}

func (w *Workflow) RemoveQualification(id string) error {
	if err := w.checkGroup(); err != nil {
		return err
	}
	w.edit.Lock()
	defer w.edit.Unlock()

	quals := w.qualifications()
	i := indexOfQualification(quals, id)
	if i < 0 {
		return errors.Wrap(ErrQualificationNotFound, id)
	}
	w.clearQualificationErrors(id)
	w.store.UpdateField(QualificationsField, append(quals[:i], quals[i+1:]...))
	return nil
}

func (w *Workflow) qualifications() []Qualification {
	return w.store.Snapshot().Record.Qualifications(QualificationsField)
}

func (w *Workflow) clearQualificationErrors(id string) {
	for _, r := range qualificationRules {
		w.store.ClearFieldError(qualificationErrorKey(id, r.attr))
	}
}

func (w *Workflow) clearNestedErrors(root string) {
	for _, k := range w.store.Snapshot().Errors.Keys() {
		if k != root && rootField(k) == root {
			w.store.ClearFieldError(k)
		}
	}
}

// Submit sends the draft. See Submitter.Submit.
func (w *Workflow) Submit(ctx context.Context) (Record, error) {
	if err := w.check(); err != nil {
		return nil, err
	}
	saved, err := w.submitter.Submit(ctx)
	if err == nil {
		w.searcher.Clear()
	}
	return saved, err
}

func (w *Workflow) Submitting() bool {
	return w.submitter.Submitting()
}

// Reset clears the form & its persisted draft.
func (w *Workflow) Reset() {
	w.searcher.Clear()
	w.store.Reset()
}

// Close stops pending searches. The draft is kept.
func (w *Workflow) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.searcher.Close()
}

func (w *Workflow) check() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}
	return nil
}

func (w *Workflow) checkGroup() error {
	if err := w.check(); err != nil {
		return err
	}
	if f, ok := w.schema.Field(QualificationsField); !ok || f.Kind != KindGroup {
		return errors.Wrapf(ErrUnknownField, "%s has no %s", w.schema.Entity, QualificationsField)
	}
	return nil
}

func (w *Workflow) locked(name string) bool {
	return w.schema.LockIdentity && w.store.Snapshot().Selected != nil && w.schema.IsIdentity(name)
}
