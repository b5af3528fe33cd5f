package admission

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/shule/core"
)

// Candidate is an existing record returned by a search.
type Candidate struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Fields Record `json:"fields"`
}

func (c Candidate) clone() Candidate {
	c.Fields = c.Fields.Clone()
	return c
}

type SearchStatus string

const (
	SearchIdle      SearchStatus = "idle"
	SearchSearching SearchStatus = "searching"
	SearchResults   SearchStatus = "results"
	SearchEmpty     SearchStatus = "empty"
	SearchFailed    SearchStatus = "failed"
)

type SearchState struct {
	Query      string       `json:"query"`
	Status     SearchStatus `json:"status"`
	Candidates []Candidate  `json:"candidates"`
}

// Shown is the status presented to the user: a failed search looks like an empty one.
func (s SearchState) Shown() SearchStatus {
	if s.Status == SearchFailed {
		return SearchEmpty
	}
	return s.Status
}

type SearcherOptions struct {
	Clock    Clock
	Debounce time.Duration
	// Rank sorts candidates by similarity of their label to the query.
	Rank   bool
	Logger core.Logger
	// OnResults is called with the candidates of every applied, non-empty response.
	OnResults func(candidates []Candidate)
}

// Searcher finds existing records of an entity. Only the latest dispatched search may update its state.
type Searcher struct {
	schema    *Schema
	backend   Backend
	debouncer *Debouncer
	rank      bool
	logger    core.Logger
	onResults func([]Candidate)

	mu       sync.Mutex
	seq      uint64
	state    SearchState
	inflight map[uint64]context.CancelFunc
	closed   bool
}

func NewSearcher(schema *Schema, backend Backend, opts SearcherOptions) *Searcher {
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = core.NopLogger
	}
	return &Searcher{
		schema:    schema,
		backend:   backend,
		debouncer: NewDebouncer(opts.Clock, opts.Debounce),
		rank:      opts.Rank,
		logger:    opts.Logger,
		onResults: opts.OnResults,
		state:     SearchState{Status: SearchIdle},
		inflight:  make(map[uint64]context.CancelFunc),
	}
}

// Schedule searches for query once the debounce delay elapsed without a newer call.
func (s *Searcher) Schedule(query string) {
	if strings.TrimSpace(query) == "" {
		s.debouncer.Cancel()
		s.idle()
		return
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.debouncer.Trigger(func() {
		s.Search(context.Background(), query)
	})
}

// Search runs a search right away. Failures are logged and shown as no results.
func (s *Searcher) Search(ctx context.Context, query string) SearchState {
	if strings.TrimSpace(query) == "" {
		s.idle()
		return s.State()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return SearchState{Query: query, Status: SearchIdle}
	}
	s.seq++
	seq := s.seq
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.inflight[seq] = cancel
	s.state = SearchState{Query: query, Status: SearchSearching, Candidates: s.state.Candidates}
	s.mu.Unlock()

	items, err := s.backend.Search(ctx, s.schema.Endpoints.Search, SearchQuery{Text: query, Fields: s.schema.SearchFields})

	s.mu.Lock()
	delete(s.inflight, seq)
	if seq != s.seq || s.closed {
		// a newer search was dispatched
		s.mu.Unlock()
		return s.State()
	}
	st := SearchState{Query: query}
	switch {
	case err != nil:
		s.logger.Warn("searching "+string(s.schema.Entity)+"s", err)
		st.Status = SearchFailed
	case len(items) == 0:
		st.Status = SearchEmpty
	default:
		st.Status = SearchResults
		st.Candidates = s.candidates(query, items)
	}
	s.state = st
	s.mu.Unlock()

	if st.Status == SearchResults && s.onResults != nil {
		s.onResults(cloneCandidates(st.Candidates))
	}
	return s.State()
}

func (s *Searcher) State() SearchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Candidates = cloneCandidates(st.Candidates)
	return st
}

// Candidate returns a candidate of the current results.
func (s *Searcher) Candidate(id string) (Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.state.Candidates {
		if c.ID == id {
			return c.clone(), true
		}
	}
	return Candidate{}, false
}

// Clear resets the results and drops pending and in-flight searches.
func (s *Searcher) Clear() {
	s.debouncer.Cancel()
	s.idle()
}

// Close cancels the pending timer and in-flight requests. Later calls are no-ops.
func (s *Searcher) Close() {
	s.debouncer.Cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for seq, cancel := range s.inflight {
		cancel()
		delete(s.inflight, seq)
	}
}

func (s *Searcher) idle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++ // discards in-flight responses
	s.state = SearchState{Status: SearchIdle}
}

func (s *Searcher) candidates(query string, items []Record) []Candidate {
	out := make([]Candidate, 0, len(items))
	for _, item := range items {
		c := Candidate{ID: toString(item["id"]), Fields: item.Clone()}
		if c.ID == "" {
			continue
		}
		c.Label = candidateLabel(s.schema, item)
		out = append(out, c)
	}
	if s.rank {
		rankCandidates(query, out)
	}
	return out
}

func candidateLabel(schema *Schema, item Record) string {
	parts := make([]string, 0, len(schema.LabelFields))
	for _, name := range schema.LabelFields {
		if v := strings.TrimSpace(toString(item[name])); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return toString(item["id"])
	}
	return strings.Join(parts, " ")
}

// rankCandidates sorts by label similarity to the query, best first. Ties keep the backend order.
func rankCandidates(query string, cs []Candidate) {
	q := strings.Split(strings.ToLower(strings.TrimSpace(query)), "")
	scores := make(map[string]float64, len(cs))
	for _, c := range cs {
		m := difflib.NewMatcher(q, strings.Split(strings.ToLower(c.Label), ""))
		scores[c.ID] = m.Ratio()
	}
	sort.SliceStable(cs, func(i, j int) bool {
		return scores[cs[i].ID] > scores[cs[j].ID]
	})
}

func cloneCandidates(cs []Candidate) []Candidate {
	if cs == nil {
		return nil
	}
	out := make([]Candidate, len(cs))
	for i, c := range cs {
		out[i] = c.clone()
	}
	return out
}
