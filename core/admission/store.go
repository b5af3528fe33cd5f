package admission

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

var ErrDraftNotFound = errors.New("draft not found")

// DraftStore is a durable key-value store for in-progress drafts.
type DraftStore interface {
	Get(ctx context.Context, key string) ([]byte, error) // ErrDraftNotFound when missing
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Mode tells whether a submission creates or updates a record.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeUpdate Mode = "update"
)

// Snapshot is a consistent copy of the form state.
type Snapshot struct {
	Record    Record      `json:"record"`
	Errors    FieldErrors `json:"errors"`
	ActiveTab string      `json:"active_tab"`
	Selected  *Candidate  `json:"selected,omitempty"`
}

func (s Snapshot) Mode() Mode {
	if s.Selected != nil {
		return ModeUpdate
	}
	return ModeCreate
}

// FormStore holds the state of one admission form.
type FormStore interface {
	Snapshot() Snapshot
	// UpdateField sets a value and clears the field's error.
	UpdateField(name string, value interface{})
	SetErrors(errs FieldErrors)
	MergeErrors(errs FieldErrors)
	ClearFieldError(name string)
	SetActiveTab(id string)
	// Select enters update mode and merges hydrate into the record.
	Select(c Candidate, hydrate Record)
	ClearSelection()
	// Reset clears everything, including the persisted draft.
	Reset()
}

// persistedDraft is what reaches the DraftStore. File fields are dropped.
type persistedDraft struct {
	Record    map[string]json.RawMessage `json:"record"`
	Errors    FieldErrors                `json:"errors,omitempty"`
	ActiveTab string                     `json:"active_tab"`
	Selected  *Candidate                 `json:"selected,omitempty"`
	SavedAt   time.Time                  `json:"saved_at"`
}

// Store is the FormStore mirrored into a DraftStore under one key.
type Store struct {
	schema  *Schema
	drafts  DraftStore
	key     string
	logger  core.Logger
	timeout time.Duration

	mu        sync.RWMutex
	record    Record
	errs      FieldErrors
	activeTab string
	selected  *Candidate
}

var _ FormStore = (*Store)(nil)

// NewStore returns an empty store. drafts may be nil to disable persistence.
func NewStore(schema *Schema, drafts DraftStore, key string, logger core.Logger) *Store {
	if logger == nil {
		logger = core.NopLogger
	}
	if key == "" {
		key = string(schema.Entity)
	}
	return &Store{
		schema:    schema,
		drafts:    drafts,
		key:       key,
		logger:    logger,
		timeout:   5 * time.Second,
		record:    make(Record),
		errs:      make(FieldErrors),
		activeTab: schema.Sections.First().ID,
	}
}

func (s *Store) Key() string { return s.key }

// Restore hydrates the store from the persisted draft, if any. File fields come back empty.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	if s.drafts == nil {
		return false, nil
	}
	data, err := s.drafts.Get(ctx, s.key)
	if err != nil {
		if errors.Cause(err) == ErrDraftNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "loading draft")
	}

	var pd persistedDraft
	if err := json.Unmarshal(data, &pd); err != nil {
		// a corrupt draft must not block the form
		s.logger.Warn("discarding unreadable draft "+s.key, err)
		return false, nil
	}

	rec := make(Record, len(pd.Record))
	for name, raw := range pd.Record {
		f, ok := s.schema.Field(name)
		if !ok || f.Kind == KindFile {
			continue
		}
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		if v, err = coerce(f.Kind, v); err == nil && v != nil {
			rec[name] = v
		}
	}
	if quals := rec.Qualifications(QualificationsField); quals != nil {
		rec[QualificationsField] = withIDs(quals)
	}

	s.mu.Lock()
	s.record = rec
	s.errs = pd.Errors.Clone()
	s.selected = pd.Selected
	if _, ok := s.schema.Sections.Get(pd.ActiveTab); ok {
		s.activeTab = pd.ActiveTab
	}
	s.mu.Unlock()
	return true, nil
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

func (s *Store) snapshot() Snapshot {
	var sel *Candidate
	if s.selected != nil {
		c := s.selected.clone()
		sel = &c
	}
	return Snapshot{
		Record:    s.record.Clone(),
		Errors:    s.errs.Clone(),
		ActiveTab: s.activeTab,
		Selected:  sel,
	}
}

func (s *Store) UpdateField(name string, value interface{}) {
	s.mutate(func() {
		if value == nil {
			delete(s.record, name)
		} else {
			s.record[name] = value
		}
		delete(s.errs, name)
	})
}

func (s *Store) SetErrors(errs FieldErrors) {
	s.mutate(func() { s.errs = errs.Clone() })
}

func (s *Store) MergeErrors(errs FieldErrors) {
	s.mutate(func() {
		for k, msgs := range errs.Clone() {
			s.errs[k] = msgs
		}
	})
}

func (s *Store) ClearFieldError(name string) {
	s.mutate(func() { delete(s.errs, name) })
}

func (s *Store) SetActiveTab(id string) {
	s.mutate(func() { s.activeTab = id })
}

func (s *Store) Select(c Candidate, hydrate Record) {
	s.mutate(func() {
		c := c.clone()
		s.selected = &c
		for name, v := range hydrate {
			s.record[name] = v
			delete(s.errs, name)
		}
	})
}

func (s *Store) ClearSelection() {
	s.mutate(func() { s.selected = nil })
}

func (s *Store) Reset() {
	s.mu.Lock()
	s.record = make(Record)
	s.errs = make(FieldErrors)
	s.activeTab = s.schema.Sections.First().ID
	s.selected = nil
	s.mu.Unlock()

	if s.drafts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.drafts.Delete(ctx, s.key); err != nil && errors.Cause(err) != ErrDraftNotFound {
		s.logger.Error("clearing draft "+s.key, err)
	}
}

// mutate applies fn under the lock, then mirrors the new state into the draft store.
func (s *Store) mutate(fn func()) {
	s.mu.Lock()
	fn()
	data, err := s.encode()
	s.mu.Unlock()

	if s.drafts == nil {
		return
	}
	if err != nil {
		s.logger.Error("encoding draft "+s.key, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.drafts.Put(ctx, s.key, data); err != nil {
		s.logger.Error("saving draft "+s.key, err)
	}
}

func (s *Store) encode() ([]byte, error) {
	if s.drafts == nil {
		return nil, nil
	}
	pd := persistedDraft{
		Record:    make(map[string]json.RawMessage, len(s.record)),
		Errors:    s.errs,
		ActiveTab: s.activeTab,
		Selected:  s.selected,
		SavedAt:   core.NowFunc().UTC(),
	}
	for name, v := range s.record {
		if _, isFile := v.(*File); isFile {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding %s", name)
		}
		pd.Record[name] = raw
	}
	return json.Marshal(pd)
}
