package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/admission"
	emailsvc "github.com/trezcool/shule/services/email"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	"github.com/trezcool/shule/tests"
)

type testApp struct {
	Server
	backend *testutil.Backend
	drafts  admission.DraftStore
	mailer  *emailsvc.ConsoleService
}

func setup(t *testing.T) *testApp {
	t.Helper()
	core.NowFunc = func() time.Time { return time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { core.NowFunc = time.Now })

	backend := testutil.NewBackend()
	t.Cleanup(backend.Close)

	app := &testApp{
		backend: backend,
		drafts:  inmemdb.NewDraftRepository(inmemdb.Open()),
		mailer:  emailsvc.NewConsoleServiceMock(emailsvc.Options{}),
	}
	app.Server = NewServer("", make(chan os.Signal, 1), &Deps{
		TestMode:       true,
		DisableReqLogs: true,
		Backend:        admission.NewClient(backend.URL(), "", time.Second),
		Drafts:         app.drafts,
		Mailer:         app.mailer,
		Admission:      AdmissionOptions{Lookup: true},
	})
	t.Cleanup(func() { _ = app.Close() })
	return app
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     interface{}
	wantCode int
	wantData interface{}
}

func (app *testApp) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func (app *testApp) open(t *testing.T, entity string) (string, string) {
	t.Helper()
	rec := app.do(t, http.MethodPost, "/v1/admissions/"+entity, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res.ID, "/v1/admissions/" + entity + "/" + res.ID
}

func readState(t *testing.T, rec *httptest.ResponseRecorder) admission.State {
	t.Helper()
	var st admission.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st), rec.Body.String())
	return st
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData != nil {
		want, err := json.Marshal(tt.wantData)
		require.NoError(t, err)
		assert.JSONEq(t, string(want), rec.Body.String())
	}
}

var amina = map[string]interface{}{
	"first_name":    "Amina",
	"sir_name":      "Otieno",
	"gender":        "female",
	"date_of_birth": "2010-05-01",
	"stream_id":     3,
}

func TestAdmissionAPI_sessions(t *testing.T) {
	app := setup(t)
	id, path := app.open(t, "student")

	tests := []httpTest{
		{
			name:     "unknown entity",
			method:   http.MethodPost,
			path:     "/v1/admissions/pupil",
			wantCode: http.StatusNotFound,
			wantData: httpErr{Error: `unknown entity "pupil"`},
		},
		{
			name:     "bad session id",
			method:   http.MethodPost,
			path:     "/v1/admissions/student",
			body:     echoMap{"session_id": "nope"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown session",
			method:   http.MethodGet,
			path:     "/v1/admissions/student/nope",
			wantCode: http.StatusNotFound,
			wantData: httpErr{Error: "admission session not found"},
		},
		{
			name:     "entity scoped",
			method:   http.MethodGet,
			path:     "/v1/admissions/teacher/" + id,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "bad json",
			method:   http.MethodPatch,
			path:     path + "/fields",
			body:     "not an object",
			wantCode: http.StatusBadRequest,
			wantData: httpErr{Error: "invalid JSON body"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, app.do(t, tt.method, tt.path, tt.body))
		})
	}

	t.Run("state", func(t *testing.T) {
		st := readState(t, app.do(t, http.MethodGet, path, nil))
		assert.Equal(t, admission.EntityStudent, st.Entity)
		assert.Equal(t, admission.ModeCreate, st.Mode)
		assert.Equal(t, admission.StudentTabPersonal, st.ActiveTab)
		require.Len(t, st.Tabs, 4)
		assert.True(t, st.Tabs[0].Active)
		assert.Equal(t, admission.SearchIdle, st.Search.Status)
	})

	t.Run("close then resume", func(t *testing.T) {
		rec := app.do(t, http.MethodPatch, path+"/fields", echoMap{"first_name": "Amina"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = app.do(t, http.MethodDelete, path, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, path, nil).Code)

		rec = app.do(t, http.MethodPost, "/v1/admissions/student", echoMap{"session_id": id})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res sessionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, id, res.ID)
		assert.Equal(t, "Amina", res.State.Record.String("first_name"))

		// resuming a live session returns it as is
		rec = app.do(t, http.MethodPost, "/v1/admissions/student", echoMap{"session_id": id})
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

type echoMap = map[string]interface{}

func TestAdmissionAPI_fields(t *testing.T) {
	app := setup(t)
	_, path := app.open(t, "student")

	tests := []httpTest{
		{
			name:     "unknown field",
			method:   http.MethodPatch,
			path:     path + "/fields",
			body:     echoMap{"nickname": "Mina"},
			wantCode: http.StatusBadRequest,
			wantData: httpErr{Error: "nickname: unknown field"},
		},
		{
			name:     "bad value",
			method:   http.MethodPatch,
			path:     path + "/fields",
			body:     echoMap{"first_name": "Amina", "is_boarder": "maybe"},
			wantCode: http.StatusBadRequest,
			wantData: echoMap{"is_boarder": "maybe is not a boolean"},
		},
		{
			name:     "unknown tab",
			method:   http.MethodPost,
			path:     path + "/tab",
			body:     echoMap{"tab": "sports"},
			wantCode: http.StatusBadRequest,
			wantData: httpErr{Error: "sports: unknown tab"},
		},
		{
			name:     "missing tab",
			method:   http.MethodPost,
			path:     path + "/tab",
			body:     echoMap{},
			wantCode: http.StatusBadRequest,
			wantData: echoMap{"tab": "this field is required"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, app.do(t, tt.method, tt.path, tt.body))
		})
	}

	t.Run("valid values still applied", func(t *testing.T) {
		st := readState(t, app.do(t, http.MethodGet, path, nil))
		assert.Equal(t, "Amina", st.Record.String("first_name"))
		_, ok := st.Record["is_boarder"]
		assert.False(t, ok)
	})
}

func TestAdmissionAPI_tabs(t *testing.T) {
	app := setup(t)
	_, path := app.open(t, "student")

	rec := app.do(t, http.MethodPost, path+"/next", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var fldErrs map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fldErrs))
	assert.Equal(t, "this field is required", fldErrs["first_name"])

	st := readState(t, app.do(t, http.MethodGet, path, nil))
	assert.Equal(t, admission.StudentTabPersonal, st.ActiveTab)
	assert.Equal(t, admission.Messages{"this field is required"}, st.Errors["first_name"])
	assert.Equal(t, 4, st.Tabs[0].ErrorCount)

	rec = app.do(t, http.MethodPatch, path+"/fields", amina)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st = readState(t, rec)
	assert.Empty(t, st.Errors)

	st = readState(t, app.do(t, http.MethodPost, path+"/next", nil))
	assert.Equal(t, admission.StudentTabSchool, st.ActiveTab)
	assert.True(t, st.Tabs[0].Complete)

	st = readState(t, app.do(t, http.MethodPost, path+"/prev", nil))
	assert.Equal(t, admission.StudentTabPersonal, st.ActiveTab)

	st = readState(t, app.do(t, http.MethodPost, path+"/tab", echoMap{"tab": "guardian"}))
	assert.Equal(t, admission.StudentTabGuardian, st.ActiveTab)
}

func TestAdmissionAPI_searchAndSelect(t *testing.T) {
	app := setup(t)
	app.backend.SetResults("students", "Otieno", echoMap{"id": 7, "first_name": "Amina", "sir_name": "Otieno", "adm_no": "ADM/7"})
	app.backend.SetRecord("students", "7", echoMap{"id": 7, "first_name": "Amina", "sir_name": "Otieno", "gender": "female"})
	_, path := app.open(t, "student")

	st := readState(t, app.do(t, http.MethodPost, path+"/search", echoMap{"query": "Otieno"}))
	assert.Equal(t, admission.SearchResults, st.Search.Status)
	require.Len(t, st.Search.Candidates, 1)
	assert.Equal(t, "Amina Otieno ADM/7", st.Search.Candidates[0].Label)

	tests := []httpTest{
		{
			name:     "unknown candidate",
			method:   http.MethodPost,
			path:     path + "/selection",
			body:     echoMap{"id": "9"},
			wantCode: http.StatusNotFound,
			wantData: httpErr{Error: "9: no such search result"},
		},
		{
			name:     "missing id",
			method:   http.MethodPost,
			path:     path + "/selection",
			body:     echoMap{},
			wantCode: http.StatusBadRequest,
			wantData: echoMap{"id": "this field is required"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, app.do(t, tt.method, tt.path, tt.body))
		})
	}

	st = readState(t, app.do(t, http.MethodPost, path+"/selection", echoMap{"id": "7"}))
	assert.Equal(t, admission.ModeUpdate, st.Mode)
	require.NotNil(t, st.Selected)
	assert.Equal(t, "7", st.Selected.ID)
	assert.Equal(t, "female", st.Record.String("gender"))
	assert.Equal(t, 1, app.backend.Count(http.MethodGet, "/students/7"))

	st = readState(t, app.do(t, http.MethodDelete, path+"/selection", nil))
	assert.Equal(t, admission.ModeCreate, st.Mode)
	assert.Nil(t, st.Selected)

	t.Run("debounced", func(t *testing.T) {
		rec := app.do(t, http.MethodPost, path+"/search", echoMap{"query": "Oti", "debounce": true})
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})
}

func TestAdmissionAPI_submit(t *testing.T) {
	t.Run("client validation", func(t *testing.T) {
		app := setup(t)
		_, path := app.open(t, "student")
		rec := app.do(t, http.MethodPatch, path+"/fields", echoMap{"first_name": "Amina"})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = app.do(t, http.MethodPost, path+"/submit", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var res submitErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, "client_validation", res.Kind)
		assert.Equal(t, admission.StudentTabPersonal, res.Tab)
		assert.Contains(t, res.Errors, "sir_name")
		assert.Empty(t, app.backend.Requests())
	})

	t.Run("created", func(t *testing.T) {
		app := setup(t)
		id, path := app.open(t, "student")
		require.Equal(t, http.StatusOK, app.do(t, http.MethodPatch, path+"/fields", amina).Code)

		rec := app.do(t, http.MethodPost, path+"/submit", nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var res submitResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, "101", res.Record.String("id"))
		assert.Empty(t, res.State.Record)
		assert.Equal(t, admission.StudentTabPersonal, res.State.ActiveTab)

		reqs := app.backend.Requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, http.MethodPost, reqs[0].Method)
		assert.Equal(t, "/students", reqs[0].Path)
		assert.Contains(t, string(reqs[0].Body), "first_name=Amina")

		_, err := app.drafts.Get(context.Background(), draftKey(admission.EntityStudent, id))
		assert.Equal(t, admission.ErrDraftNotFound, err)
	})

	failures := []struct {
		name      string
		status    int
		body      interface{}
		wantCode  int
		wantKind  string
		wantField string
	}{
		{
			name:      "server validation",
			status:    http.StatusUnprocessableEntity,
			body:      echoMap{"errors": echoMap{"stream_id": []string{"stream is full"}}},
			wantCode:  http.StatusBadRequest,
			wantKind:  "server_validation",
			wantField: "stream_id",
		},
		{
			name:      "rejected",
			status:    http.StatusConflict,
			body:      echoMap{"message": "duplicate admission"},
			wantCode:  http.StatusUnprocessableEntity,
			wantKind:  "rejected",
			wantField: admission.GeneralKey,
		},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			app := setup(t)
			_, path := app.open(t, "student")
			require.Equal(t, http.StatusOK, app.do(t, http.MethodPatch, path+"/fields", amina).Code)
			app.backend.Reply(tt.status, tt.body)

			rec := app.do(t, http.MethodPost, path+"/submit", nil)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			var res submitErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.Equal(t, tt.wantKind, res.Kind)
			assert.Contains(t, res.Errors, tt.wantField)

			st := readState(t, app.do(t, http.MethodGet, path, nil))
			assert.Equal(t, "Amina", st.Record.String("first_name"))
			assert.Contains(t, st.Errors, tt.wantField)
		})
	}
}

func TestAdmissionAPI_files(t *testing.T) {
	app := setup(t)
	_, path := app.open(t, "student")

	upload := func(field, filename, contentType string, content []byte) *httptest.ResponseRecorder {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, _ = part.Write(content)
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPut, path+"/files/"+field, &body)
		req.Header.Set("Content-Type", w.FormDataContentType())
		rec := httptest.NewRecorder()
		app.ServeHTTP(rec, req)
		return rec
	}

	rec := upload("photo", "amina.png", "image/png", []byte("PNG"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := readState(t, rec)
	assert.Equal(t, map[string]interface{}{"name": "amina.png", "content_type": "image/png", "size": float64(3)}, st.Record["photo"])

	rec = upload("photo", "notes.txt", "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"photo":"upload an image"}`, rec.Body.String())

	rec = upload("first_name", "amina.png", "image/png", []byte("PNG"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	st = readState(t, app.do(t, http.MethodDelete, path+"/files/photo", nil))
	assert.Nil(t, st.Record["photo"])
}

func TestAdmissionAPI_qualifications(t *testing.T) {
	app := setup(t)
	_, path := app.open(t, "teacher")

	rec := app.do(t, http.MethodPost, path+"/qualifications", echoMap{"name": " B.Ed ", "institution": "KU", "year_completed": "2015"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var q admission.Qualification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	assert.NotEmpty(t, q.ID)
	assert.Equal(t, "B.Ed", q.Name)

	qPath := path + "/qualifications/" + q.ID
	tests := []httpTest{
		{
			name:     "update",
			method:   http.MethodPatch,
			path:     qPath,
			body:     echoMap{"tsc_registered": true},
			wantCode: http.StatusOK,
			wantData: echoMap{"id": q.ID, "name": "B.Ed", "institution": "KU", "year_completed": "2015", "tsc_registered": true},
		},
		{
			name:     "remove",
			method:   http.MethodDelete,
			path:     qPath,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "remove again",
			method:   http.MethodDelete,
			path:     qPath,
			wantCode: http.StatusNotFound,
			wantData: httpErr{Error: q.ID + ": qualification not found"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, app.do(t, tt.method, tt.path, tt.body))
		})
	}

	t.Run("students have none", func(t *testing.T) {
		_, sPath := app.open(t, "student")
		rec := app.do(t, http.MethodPost, sPath+"/qualifications", echoMap{"name": "KCPE"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAdmissionAPI_reset(t *testing.T) {
	app := setup(t)
	id, path := app.open(t, "guardian")
	require.Equal(t, http.StatusOK, app.do(t, http.MethodPatch, path+"/fields", echoMap{"first_name": "Grace"}).Code)

	_, err := app.drafts.Get(context.Background(), draftKey(admission.EntityGuardian, id))
	require.NoError(t, err)

	st := readState(t, app.do(t, http.MethodDelete, path+"/draft", nil))
	assert.Empty(t, st.Record)
	_, err = app.drafts.Get(context.Background(), draftKey(admission.EntityGuardian, id))
	assert.Equal(t, admission.ErrDraftNotFound, err)
}

func TestServer_home(t *testing.T) {
	app := setup(t)
	rec := app.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Shule API!", rec.Body.String())
}

func TestServer_signalShutdown(t *testing.T) {
	shutdown := make(chan os.Signal, 1)
	s := NewServer("", shutdown, &Deps{}).(*server)
	s.signalShutdown()
	s.signalShutdown() // never blocks
	assert.Equal(t, syscall.SIGTERM, <-s.ShutdownSignal())
}
