package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"github.com/ulule/limiter/v3"

	"github.com/samaecole/backend/core"
	"github.com/samaecole/backend/core/access"
	"github.com/samaecole/backend/core/billing"
	"github.com/samaecole/backend/core/document"
	"github.com/samaecole/backend/core/identity"
	"github.com/samaecole/backend/core/invitation"
	"github.com/samaecole/backend/core/report"
	"github.com/samaecole/backend/core/school"
	"github.com/samaecole/backend/core/staff"
	"github.com/samaecole/backend/core/tenant"
	metricsvc "github.com/samaecole/backend/services/metrics"
)

type ServerDeps struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator

	Auth        *access.Authenticator
	Identities  *identity.Service
	Tenants     *tenant.Service
	Invitations *invitation.Service
	Staff       *staff.Service
	School      *school.Service
	Billing     *billing.Service
	Documents   *document.Service
	Reports     *report.Service
	Store       core.ObjectStore

	Metrics      *metricsvc.Collector // optional
	LimiterStore limiter.Store        // optional: in-memory store when nil

	DisableReqLogs bool
}

type Server struct {
	deps     ServerDeps
	app      *echo.Echo
	errors   chan error
	shutdown chan os.Signal
}

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if s.deps.Metrics != nil {
		s.app.Use(metricsMiddleware(s.deps.Metrics))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)
	if conf.Storage.Dir != "" {
		s.app.Static("/files", conf.Storage.Dir)
	}

	store := s.deps.LimiterStore
	if store == nil {
		store = newMemoryStore()
	}
	loginLimit := rateLimitMiddleware(store, conf.RateLimit.Login, "login", s.deps.Logger)
	publicLimit := rateLimitMiddleware(store, conf.RateLimit.Public, "public", s.deps.Logger)

	g := s.app.Group("/api")
	auth := newAuthenticator(s.deps.Conf, s.deps.Auth)
	authed := []echo.MiddlewareFunc{auth.jwt, auth.loadAccess}

	registerAuthAPI(g, authed, loginLimit, publicLimit, s.deps, auth)
	registerJoinAPI(g, publicLimit, s.deps)
	registerSignupAPI(g, publicLimit, s.deps)

	tg := g.Group("", append(authed, tenantMember)...)
	registerSchoolAPI(tg, s.deps)
	registerClassAPI(tg, s.deps)
	registerStudentAPI(tg, s.deps)
	registerFeeTypeAPI(tg, s.deps)
	registerInvoiceAPI(tg, s.deps)
	registerPaymentAPI(tg, s.deps)
	registerStaffAPI(tg, s.deps)
	registerInvitationAPI(tg, s.deps)
	registerReportAPI(tg, s.deps)

	ag := g.Group("/admin", append(authed, superAdmin)...)
	registerAdminAPI(ag, s.deps)
}

func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return errors.Wrap(s.app.Shutdown(ctx), "shutting down server")
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Bienvenue sur l'API Sama École !")
}
