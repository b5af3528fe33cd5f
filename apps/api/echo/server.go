package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/admission"
)

type (
	// AdmissionOptions are applied to every workflow the API opens.
	AdmissionOptions struct {
		Debounce         time.Duration
		AutoSelectSingle bool
		Rank             bool
		Lookup           bool
		SpoofPut         bool
		JSONWire         bool
		Clock            admission.Clock
	}

	Deps struct {
		Debug          bool
		TestMode       bool
		DisableReqLogs bool

		Logger     core.Logger
		Backend    admission.Backend
		Drafts     admission.DraftStore
		Mailer     core.EmailService
		Validate   *validator.Validate
		Translator ut.Translator
		Admission  AdmissionOptions
	}

	Server interface {
		http.Handler
		Start()
		Shutdown(context.Context) error
		Close() error
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
	}

	server struct {
		address  string
		deps     *Deps
		app      *echo.Echo
		sessions *sessions
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

// NewServer builds the API. shutdown may be nil, in which case SIGINT & SIGTERM are listened to.
func NewServer(address string, shutdown chan os.Signal, deps *Deps) Server {
	if deps.Logger == nil {
		deps.Logger = core.NopLogger
	}
	if deps.Validate == nil || deps.Translator == nil {
		deps.Validate, deps.Translator = core.NewValidator()
	}
	if shutdown == nil {
		shutdown = make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	}

	s := &server{
		address:  address,
		deps:     deps,
		app:      echo.New(),
		sessions: newSessions(),
		errors:   make(chan error, 1),
		shutdown: shutdown,
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.deps.Debug || s.deps.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = s.deps.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	registerAdmissionAPI(v1, s.sessions, s.deps)
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *server) Start() {
	if err := s.app.Start(s.address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

// Shutdown stops the listener, then closes every open admission workflow. Drafts are kept.
func (s *server) Shutdown(ctx context.Context) error {
	defer s.sessions.closeAll()
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	defer s.sessions.closeAll()
	return s.app.Close()
}

func (s *server) Errors() <-chan error              { return s.errors }
func (s *server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Shule API!")
}
