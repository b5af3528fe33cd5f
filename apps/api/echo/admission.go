package echoapi

import (
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/admission"
)

// maxUploadSize caps file fields (photos).
const maxUploadSize = 5 << 20

type (
	openRequest struct {
		SessionID string `json:"session_id" validate:"omitempty,uuid4"`
	}

	tabRequest struct {
		Tab string `json:"tab" validate:"required"`
	}

	searchRequest struct {
		Query    string `json:"query" validate:"max=100"`
		Debounce bool   `json:"debounce"`
	}

	selectRequest struct {
		ID string `json:"id" validate:"required"`
	}

	sessionResponse struct {
		ID    string          `json:"id"`
		State admission.State `json:"state"`
	}

	submitResponse struct {
		Record admission.Record `json:"record"`
		State  admission.State  `json:"state"`
	}
)

type admissionApi struct {
	sessions *sessions
	deps     *Deps
	validate *validator.Validate
}

func registerAdmissionAPI(g *echo.Group, ss *sessions, deps *Deps) {
	api := admissionApi{sessions: ss, deps: deps, validate: deps.Validate}

	ag := g.Group("/admissions/:entity")
	ag.POST("", api.open)

	sg := ag.Group("/:id")
	sg.GET("", api.state)
	sg.DELETE("", api.close)
	sg.PATCH("/fields", api.updateFields)
	sg.PUT("/files/:field", api.uploadFile)
	sg.DELETE("/files/:field", api.removeFile)
	sg.POST("/tab", api.setTab)
	sg.POST("/next", api.next)
	sg.POST("/prev", api.prev)
	sg.POST("/search", api.search)
	sg.POST("/selection", api.selectCandidate)
	sg.DELETE("/selection", api.clearSelection)
	sg.POST("/qualifications", api.addQualification)
	sg.PATCH("/qualifications/:qid", api.updateQualification)
	sg.DELETE("/qualifications/:qid", api.removeQualification)
	sg.POST("/submit", api.submit)
	sg.DELETE("/draft", api.reset)
}

// decode reads a JSON body; an empty body leaves data as is.
// Path params are never bound: they would clash with body fields such as "id".
func decode(ctx echo.Context, data interface{}) error {
	if err := json.NewDecoder(ctx.Request().Body).Decode(data); err != nil && err != io.EOF {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body").SetInternal(err)
	}
	return nil
}

func (api *admissionApi) bind(ctx echo.Context, data interface{}) error {
	if err := decode(ctx, data); err != nil {
		return err
	}
	return api.validate.Struct(data)
}

func (api *admissionApi) schema(ctx echo.Context) (*admission.Schema, error) {
	schema, err := admission.SchemaFor(admission.Entity(ctx.Param("entity")))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return schema, nil
}

func (api *admissionApi) workflow(ctx echo.Context) (*admission.Workflow, error) {
	schema, err := api.schema(ctx)
	if err != nil {
		return nil, err
	}
	wf, ok := api.sessions.get(schema.Entity, ctx.Param("id"))
	if !ok {
		return nil, errSessionNotFound
	}
	return wf, nil
}

func (api *admissionApi) newWorkflow(ctx echo.Context, schema *admission.Schema, id string) (*admission.Workflow, error) {
	opts := api.deps.Admission
	var enc admission.Encoder
	if opts.JSONWire {
		enc = admission.JSONEncoder{}
	}
	return admission.New(ctx.Request().Context(), admission.Options{
		Schema:           schema,
		Backend:          api.deps.Backend,
		Drafts:           api.deps.Drafts,
		DraftKey:         draftKey(schema.Entity, id),
		Validate:         api.deps.Validate,
		Translator:       api.deps.Translator,
		Clock:            opts.Clock,
		Debounce:         opts.Debounce,
		AutoSelectSingle: opts.AutoSelectSingle,
		Rank:             opts.Rank,
		Lookup:           opts.Lookup,
		Encoder:          enc,
		SpoofPut:         opts.SpoofPut,
		Mailer:           api.deps.Mailer,
		Logger:           api.deps.Logger,
	})
}

// Handlers

// open starts a session. Passing a previous session_id resumes its draft.
func (api *admissionApi) open(ctx echo.Context) error {
	schema, err := api.schema(ctx)
	if err != nil {
		return err
	}
	var data openRequest
	if err = api.bind(ctx, &data); err != nil {
		return err
	}

	id, code := data.SessionID, http.StatusCreated
	if id == "" {
		id = uuid.New().String()
	} else if wf, ok := api.sessions.get(schema.Entity, id); ok {
		return ctx.JSON(http.StatusOK, sessionResponse{ID: id, State: wf.State()})
	} else {
		code = http.StatusOK
	}

	wf, err := api.newWorkflow(ctx, schema, id)
	if err != nil {
		return errors.Wrap(err, "opening admission workflow")
	}
	wf = api.sessions.add(schema.Entity, id, wf)
	return ctx.JSON(code, sessionResponse{ID: id, State: wf.State()})
}

func (api *admissionApi) state(ctx echo.Context) error {
	wf, err := api.workflow(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, wf.State())
}

// close ends a session; its draft is kept and can be resumed.
func (api *admissionApi) close(ctx echo.Context) error {
	schema, err := api.schema(ctx)
	if err != nil {
		return err
	}
	if !api.sessions.remove(schema.Entity, ctx.Param("id")) {
		return errSessionNotFound
	}
	return ctx.NoContent(http.StatusNoContent)
}

// updateFields applies {field: value} pairs. Values that cannot be read as the field's kind are
// reported together; the others are still applied.
func (api *admissionApi) updateFields(ctx echo.Context) error {
	wf, err := api.workflow(ctx)
	if err != nil {
		return err
	}
	data := make(map[string]interface{})
	if err = decode(ctx, &data); err != nil {
		return err
	}

	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)

	var fldErrs []core.FieldError
	for _, name := range names {
		if err = wf.UpdateField(name, data[name]); err != nil {
			var vErr *core.ValidationError
			if !errors.As(err, &vErr) {
				return err
			}
			fldErrs = append(fldErrs, vErr.Fields...)
		}
	}
	if len(fldErrs) > 0 {
		return core.NewValidationError(nil, fldErrs...)
	}
	return ctx.JSON(http.StatusOK, wf.State())
}

func (api *admissionApi) uploadFile(ctx echo.Context) error {
	wf, err := api.workflow(ctx)
	if err != nil {
		return err
	}
	field := ctx.Param("field")
	if f, ok := wf.Schema().Field(field); !ok || f.Kind != admission.KindFile {
		return errors.Wrap(admission.ErrUnknownField, field)
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		return errNoFile
	}
	if fh.Size > maxUploadSize {
		return core.NewValidationError(nil, core.FieldError{Field: field, Error: "file is too large"})
	}
	src, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening upload")
	}
	defer func() { _ = src.Close() }()
	content, err := ioutil.ReadAll(src)
	if err != nil {
		return errors.Wrap(err, "reading upload")
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(content)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return core.NewValidationError(nil, core.FieldError{Field: field, Error: "upload an image"})
	}

	file := &admission.File{Name: fh.Filename, ContentType: contentType, Content: content}
	if err = wf.UpdateField(field, file); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, wf.State())
}

func (api *admissionApi) removeFile(ctx echo.Context) error {
	wf, err := api.workflow(ctx)
	if err != nil {
		return err
	}
	field := ctx.Param("field")
	if f, ok := wf.Schema().Field(field); !ok || f.Kind != admission.KindFile {
		return errors.Wrap(admission.ErrUnknownField, field)
	}
	if err = wf.UpdateField(field, nil); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, wf.State())
}

func (api *admissionApi) setTab(ctx echo.Context) error {
	wf, err := api.workflow(ctx)
	if err != nil {
		return err
	}
	var data tabRequest
	if err = api.bind(ctx, &data); err != nil {
		return err
	}
	if err = wf.SetActiveTab(data.Tab); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, wf.State())
}

func (api *admissionApi) next(ctx echo.Context) error {
	wf, err := api.workflow(ctx)
	if err != nil {
		return err
	}
	if _, err = wf.Next(); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, wf.State())
}

func (api *admissionApi) prev(ctx echo.Context) error {
	wf, err := api.workflow(ctx)
	if err != nil {
		return err
	}
	wf.Prev()
	return ctx.JSON(http.StatusOK, wf.State())
}

// search runs the search right away, or schedules it when debounce is set (202: poll the state).
func (api *admissionApi) search(ctx echo.Context) error {
	wf, err := api.workflow(ctx)
	if err != nil {
		return err
	}
	var data searchRequest
	if err = api.bind(ctx, &data); err != nil {
		return err
	}
	if data.Debounce {
		wf.Schedule(data.Query)
		return ctx.JSON(http.StatusAccepted, wf.State())
	}
	if _, err = wf.Search(ctx.Request().Context(), data.Query); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, wf.State())
}

func (api *admissionApi) selectCandidate(ctx echo.Context) error {
	wf, err := api.workflow(ctx)
	if err != nil {
		return err
	}
	var data selectRequest
	if err = api.bind(ctx, &data); err != nil {
		return err
	}
	if err = wf.Select(ctx.Request().Context(), data.ID); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, wf.State())
}

func (api *admissionApi) clearSelection(ctx echo.Context) error {
	wf, err := api.workflow(ctx)
	if err != nil {
		return err
	}
	wf.ClearSelection()
	return ctx.JSON(http.StatusOK, wf.State())
}

func (api *admissionApi) addQualification(ctx echo.Context) error {
	wf, err := api.workflow(ctx)
	if err != nil {
		return err
	}
	var data admission.Qualification
	if err = decode(ctx, &data); err != nil {
		return err
	}
	q, err := wf.AddQualification(data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, q)
}

func (api *admissionApi) updateQualification(ctx echo.Context) error {
	wf, err := api.workflow(ctx)
	if err != nil {
		return err
	}
	var data admission.QualificationPatch
	if err = decode(ctx, &data); err != nil {
		return err
	}
	q, err := wf.UpdateQualification(ctx.Param("qid"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *admissionApi) removeQualification(ctx echo.Context) error {
	wf, err := api.workflow(ctx)
	if err != nil {
		return err
	}
	if err = wf.RemoveQualification(ctx.Param("qid")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *admissionApi) submit(ctx echo.Context) error {
	wf, err := api.workflow(ctx)
	if err != nil {
		return err
	}
	mode := wf.State().Mode
	saved, err := wf.Submit(ctx.Request().Context())
	if err != nil {
		return err
	}

	code := http.StatusCreated
	if mode == admission.ModeUpdate {
		code = http.StatusOK
	}
	return ctx.JSON(code, submitResponse{Record: saved, State: wf.State()})
}

func (api *admissionApi) reset(ctx echo.Context) error {
	wf, err := api.workflow(ctx)
	if err != nil {
		return err
	}
	wf.Reset()
	return ctx.JSON(http.StatusOK, wf.State())
}
