package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/admission"
)

var (
	errSessionNotFound = errors.New("admission session not found")
	errBadSessionID    = errors.New("invalid session id")
	errNoFile          = errors.New("no file uploaded")
)

// submitErrorCodes maps submission failures to response codes.
var submitErrorCodes = map[admission.ErrorKind]int{
	admission.ClientValidation: http.StatusBadRequest,
	admission.ServerValidation: http.StatusBadRequest,
	admission.Rejected:         http.StatusUnprocessableEntity,
	admission.Transport:        http.StatusBadGateway,
}

// sentinelCodes maps workflow sentinel errors to response codes.
var sentinelCodes = map[error]int{
	errSessionNotFound:                 http.StatusNotFound,
	errBadSessionID:                    http.StatusBadRequest,
	errNoFile:                          http.StatusBadRequest,
	admission.ErrUnknownField:          http.StatusBadRequest,
	admission.ErrUnknownTab:            http.StatusBadRequest,
	admission.ErrFieldLocked:           http.StatusConflict,
	admission.ErrSubmitInFlight:        http.StatusConflict,
	admission.ErrNoCandidate:           http.StatusNotFound,
	admission.ErrQualificationNotFound: http.StatusNotFound,
	admission.ErrClosed:                http.StatusGone,
}

func sentinelCode(err error) (int, bool) {
	for sentinel, code := range sentinelCodes {
		if errors.Is(err, sentinel) {
			return code, true
		}
	}
	return 0, false
}

type submitErrorResponse struct {
	Kind   string                `json:"kind"`
	Errors admission.FieldErrors `json:"errors"`
	Tab    string                `json:"tab,omitempty"`
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *admission.SubmitError:
			code = submitErrorCodes[origErr.Kind]
			if code == 0 {
				code = http.StatusInternalServerError
			}
			message = submitErrorResponse{Kind: origErr.Kind.String(), Errors: origErr.Fields, Tab: origErr.Tab}
		default:
			if c, ok := sentinelCode(err); ok {
				code = c
				message = err.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			logger.Error(msg, errors.Wrap(err, msg), map[string]interface{}{
				"method": ctx.Request().Method,
				"path":   ctx.Request().URL.Path,
			})

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
