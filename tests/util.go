package testutil

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
)

// Request is a request received by the fake Backend.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	ContentType string
	Header      http.Header
	Body        []byte
}

type reply struct {
	status int
	body   interface{}
}

// Backend is a fake school records API serving /:resource/search, /:resource & /:resource/:id.
type Backend struct {
	srv *httptest.Server

	mu       sync.Mutex
	requests []Request
	results  map[string][]map[string]interface{} // resource + "?" + query
	records  map[string]map[string]interface{}   // resource + "/" + id
	replies  []reply
	holds    map[string]chan struct{}
	envelope string
	failing  bool
	nextID   int
}

func NewBackend() *Backend {
	b := &Backend{
		results: make(map[string][]map[string]interface{}),
		records: make(map[string]map[string]interface{}),
		holds:   make(map[string]chan struct{}),
		nextID:  100,
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(b.record)
	e.GET("/:resource/search", b.search)
	e.GET("/:resource/:id", b.lookup)
	e.POST("/:resource", b.save)
	e.POST("/:resource/:id", b.save)
	e.PUT("/:resource/:id", b.save)

	b.srv = httptest.NewServer(e)
	return b
}

func (b *Backend) URL() string { return b.srv.URL }
func (b *Backend) Close()      { b.srv.Close() }

// SetResults sets the search results of a query. Envelope wraps them in {envelope: [...]} when set.
func (b *Backend) SetResults(resource, query string, items ...map[string]interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results[resource+"?"+query] = items
}

func (b *Backend) SetEnvelope(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.envelope = key
}

// SetFailing makes searches answer 500.
func (b *Backend) SetFailing(failing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing = failing
}

func (b *Backend) SetRecord(resource, id string, rec map[string]interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[resource+"/"+id] = rec
}

// Reply queues the answer of the next create or update.
func (b *Backend) Reply(status int, body interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies = append(b.replies, reply{status: status, body: body})
}

// Hold blocks requests matching key ("save" or "search:<query>") until release is called.
func (b *Backend) Hold(key string) (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.holds[key] = ch
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.holds, key)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// Count returns the number of requests received for a method & path prefix.
func (b *Backend) Count(method, pathPrefix string) int {
	n := 0
	for _, r := range b.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, pathPrefix) {
			n++
		}
	}
	return n
}

func (b *Backend) record(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		body, err := ioutil.ReadAll(req.Body)
		if err != nil {
			return err
		}
		_ = req.Body.Close()
		req.Body = ioutil.NopCloser(strings.NewReader(string(body)))

		b.mu.Lock()
		b.requests = append(b.requests, Request{
			Method:      req.Method,
			Path:        req.URL.Path,
			Query:       req.URL.Query(),
			ContentType: req.Header.Get(echo.HeaderContentType),
			Header:      req.Header.Clone(),
			Body:        body,
		})
		b.mu.Unlock()
		return next(c)
	}
}

func (b *Backend) wait(key string) {
	b.mu.Lock()
	ch, ok := b.holds[key]
	b.mu.Unlock()
	if ok {
		<-ch
	}
}

func (b *Backend) search(c echo.Context) error {
	q := c.QueryParam("q")
	b.wait("search:" + q)

	b.mu.Lock()
	failing, envelope := b.failing, b.envelope
	items := b.results[c.Param("resource")+"?"+q]
	b.mu.Unlock()

	if failing {
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "boom"})
	}
	if items == nil {
		items = []map[string]interface{}{}
	}
	if envelope != "" {
		return c.JSON(http.StatusOK, echo.Map{envelope: items})
	}
	return c.JSON(http.StatusOK, items)
}

func (b *Backend) lookup(c echo.Context) error {
	b.mu.Lock()
	rec, ok := b.records[c.Param("resource")+"/"+c.Param("id")]
	b.mu.Unlock()
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"message": "not found"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rec})
}

func (b *Backend) save(c echo.Context) error {
	b.wait("save")

	b.mu.Lock()
	var r *reply
	if len(b.replies) > 0 {
		r = &b.replies[0]
		b.replies = b.replies[1:]
	}
	id := c.Param("id")
	if id == "" {
		b.nextID++
		id = strconv.Itoa(b.nextID)
	}
	b.mu.Unlock()

	if r != nil {
		if r.body == nil {
			return c.NoContent(r.status)
		}
		return c.JSON(r.status, r.body)
	}
	status := http.StatusOK
	if c.Param("id") == "" {
		status = http.StatusCreated
	}
	return c.JSON(status, echo.Map{"id": id})
}
