package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/appointment"
	"github.com/trezcool/shule/core/fee"
	"github.com/trezcool/shule/core/leave"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/transfer"
	"github.com/trezcool/shule/core/user"
	appfs "github.com/trezcool/shule/fs"
	"github.com/trezcool/shule/services/email"
	"github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/services/payment"
	"github.com/trezcool/shule/services/relay"
	"github.com/trezcool/shule/storage/database"
	"github.com/trezcool/shule/storage/database/sqlboiler"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// set up the appointment rooms; redis shares them between instances
	hub := relaysvc.NewHub(logger)
	go hub.Run(ctx)
	var relay appointment.Relay = hub
	if conf.RedisAddr != "" {
		rdb, err := relaysvc.NewRedisClient(ctx, conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
		}
		defer rdb.Close()
		redisRelay := relaysvc.NewRedisRelay(rdb, hub, logger)
		go redisRelay.Run(ctx)
		relay = redisRelay
	}

	// set up repositories
	engine := conf.Database.Engine
	tx := database.NewTransactor(db)
	usrRepo := boiledrepos.NewUserRepository(db, engine)
	schoolRepo := boiledrepos.NewSchoolRepository(db, engine)
	studentRepo := boiledrepos.NewStudentRepository(db, engine)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	feeSvc := fee.NewService(tx, boiledrepos.NewFeeRepository(db, engine), studentRepo, usrRepo, paymentsvc.NewMidtransGateway(conf), logger)
	studentSvc := student.NewService(tx, studentRepo, usrSvc, schoolRepo, feeSvc)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, appfs.FS, appfs.EmailTemplatesDir, logger)

	user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswordsFile, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(
		conf.Server.Host,
		shutdown,
		echoapi.ServerDeps{
			Conf:           conf,
			Logger:         logger,
			Validate:       validate,
			Translator:     translator,
			UserSvc:        usrSvc,
			SchoolSvc:      school.NewService(schoolRepo),
			StudentSvc:     studentSvc,
			FeeSvc:         feeSvc,
			TransferSvc:    transfer.NewService(tx, boiledrepos.NewTransferRepository(db, engine), studentRepo, usrSvc, mailSvc, logger),
			LeaveSvc:       leave.NewService(tx, boiledrepos.NewLeaveRepository(db, engine), usrSvc, mailSvc, logger),
			AppointmentSvc: appointment.NewService(boiledrepos.NewAppointmentRepository(db, engine), studentRepo, usrSvc, relay, logger),
			Rooms:          hub,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db, conf.Database.Engine); err != nil {
		return nil, err
	}
	return db, nil
}
