package echoapi

import (
	"context"
	"net/http"
	"os"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/appointment"
	"github.com/trezcool/shule/core/fee"
	"github.com/trezcool/shule/core/leave"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/transfer"
	"github.com/trezcool/shule/core/user"
)

type (
	// RoomServer upgrades a request to a websocket listening to a relay room.
	RoomServer interface {
		ServeWS(w http.ResponseWriter, r *http.Request, room string) error
	}

	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool

		UserSvc        user.ServiceInterface
		SchoolSvc      *school.Service
		StudentSvc     *student.Service
		FeeSvc         *fee.Service
		TransferSvc    *transfer.Service
		LeaveSvc       *leave.Service
		AppointmentSvc *appointment.Service
		Rooms          RoomServer
	}

	Server struct {
		app      *echo.Echo
		addr     string
		deps     ServerDeps
		errors   chan error
		shutdown chan os.Signal
	}
)

// NewServer builds the API server. shutdown receives a signal when a handler hits a shutdown error;
// a new channel is made when it is nil.
func NewServer(addr string, shutdown chan os.Signal, deps ServerDeps) *Server {
	if shutdown == nil {
		shutdown = make(chan os.Signal, 1)
	}
	s := &Server{
		app:      echo.New(),
		addr:     addr,
		deps:     deps,
		errors:   make(chan error, 1),
		shutdown: shutdown,
	}
	s.setup()
	return s
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HideBanner = true
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(jwtConfig(conf))
	auth := authenticator{conf: conf, usrSvc: s.deps.UserSvc, students: s.deps.StudentSvc}

	registerUserAPI(v1, jwt, auth, s.deps.UserSvc, s.deps.Validate)
	registerSchoolAPI(v1, jwt, s.deps.SchoolSvc, s.deps.Validate)
	registerStudentAPI(v1, jwt, s.deps.StudentSvc, s.deps.UserSvc, s.deps.Validate)
	registerFeeAPI(v1, jwt, s.deps.FeeSvc)
	registerTransferAPI(v1, jwt, s.deps.TransferSvc, s.deps.Validate)
	registerLeaveAPI(v1, jwt, s.deps.LeaveSvc, s.deps.Validate)
	wsConf := jwtConfig(conf)
	wsConf.TokenLookup = "query:token"
	registerAppointmentAPI(v1, jwt, middleware.JWTWithConfig(wsConf), s.deps.AppointmentSvc, s.deps.Rooms, s.deps.Validate)
}

func (s *Server) Start() {
	if err := s.app.Start(s.addr); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

// Errors reports the error that stopped the server from listening.
func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
