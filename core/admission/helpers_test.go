package admission

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/trezcool/shule/core"
)

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (c *fakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward, running due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.fired || t.stopped || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.at
		next.fired = true
		c.mu.Unlock()
		next.fn()
	}
}

type searchCall struct {
	at    time.Duration
	path  string
	query SearchQuery
}

type sendCall struct {
	method  string
	path    string
	payload *Payload
}

// fakeBackend is an in-process Backend.
type fakeBackend struct {
	clock *fakeClock

	mu        sync.Mutex
	searches  []searchCall
	results   map[string][]Record
	searchErr error
	holds     map[string]chan struct{}
	lookups   map[string]Record
	sends     []sendCall
	sendErr   error
	saved     Record
}

func newFakeBackend(clock *fakeClock) *fakeBackend {
	return &fakeBackend{
		clock:   clock,
		results: make(map[string][]Record),
		holds:   make(map[string]chan struct{}),
		lookups: make(map[string]Record),
		saved:   Record{"id": "1"},
	}
}

func (b *fakeBackend) Search(ctx context.Context, path string, q SearchQuery) ([]Record, error) {
	b.mu.Lock()
	call := searchCall{path: path, query: q}
	if b.clock != nil {
		call.at = b.clock.Now()
	}
	b.searches = append(b.searches, call)
	hold := b.holds[q.Text]
	b.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.searchErr != nil {
		return nil, b.searchErr
	}
	return b.results[q.Text], nil
}

func (b *fakeBackend) Lookup(_ context.Context, path string) (Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.lookups[path]
	if !ok {
		return nil, &ResponseError{StatusCode: 404, Message: "not found"}
	}
	return rec.Clone(), nil
}

func (b *fakeBackend) Send(_ context.Context, method, path string, p *Payload) (Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sends = append(b.sends, sendCall{method: method, path: path, payload: p})
	if b.sendErr != nil {
		return nil, b.sendErr
	}
	return b.saved.Clone(), nil
}

func (b *fakeBackend) hold(query string) (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.holds[query] = ch
	b.mu.Unlock()
	return func() { close(ch) }
}

func (b *fakeBackend) setSearchErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.searchErr = err
}

func (b *fakeBackend) searchCalls() []searchCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]searchCall(nil), b.searches...)
}

func (b *fakeBackend) sendCalls() []sendCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sendCall(nil), b.sends...)
}

// memDrafts is an in-memory DraftStore.
type memDrafts struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemDrafts() *memDrafts {
	return &memDrafts{data: make(map[string][]byte)}
}

func (d *memDrafts) Get(_ context.Context, key string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	data, ok := d.data[key]
	if !ok {
		return nil, ErrDraftNotFound
	}
	return data, nil
}

func (d *memDrafts) Put(_ context.Context, key string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.data[key] = data
	return nil
}

func (d *memDrafts) Delete(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.data[key]; !ok {
		return ErrDraftNotFound
	}
	delete(d.data, key)
	return nil
}

func (d *memDrafts) Keys(context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]string, 0, len(d.data))
	for k := range d.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (d *memDrafts) has(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.data[key]
	return ok
}

func newTestValidator(t *testing.T, schema *Schema) *Validator {
	t.Helper()
	validate, translator := core.NewValidator()
	return NewValidator(schema, validate, translator)
}

// freezeToday pins core.NowFunc for the duration of a test.
func freezeToday(t *testing.T, today time.Time) {
	t.Helper()
	core.NowFunc = func() time.Time { return today }
	t.Cleanup(func() { core.NowFunc = time.Now })
}
