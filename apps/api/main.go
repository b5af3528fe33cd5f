package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/admission"
	appfs "github.com/trezcool/shule/fs"
	emailsvc "github.com/trezcool/shule/services/email"
	logsvc "github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/storage/database"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
	"github.com/trezcool/shule/storage/localfs"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// =========================================================================
	// Set up Dependencies

	conf, err := core.NewConfig()
	if err != nil {
		log.Fatalf("loading config: %+v", err)
	}

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	defer logger.Close()

	drafts, closeDrafts, err := setUpDrafts(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up drafts store: %v", err), err)
	}
	defer closeDrafts()

	templates := core.NewEmailTemplates(appfs.FS, conf.AppName, "http://"+conf.Server.Host)
	mailOpts := emailsvc.OptionsFromConfig(conf, templates, logger)
	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(mailOpts, nil)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf.SendgridApiKey, mailOpts)
	}

	validate, translator := core.NewValidator()

	// =========================================================================
	// Start API Service

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	server := echoapi.NewServer(conf.Server.Address, nil, &echoapi.Deps{
		Debug:          conf.Debug,
		TestMode:       conf.TestMode,
		DisableReqLogs: conf.Server.DisableReqLogs,
		Logger:         logger,
		Backend:        admission.NewClient(conf.Backend.BaseURL, conf.Backend.Token, conf.Backend.Timeout),
		Drafts:         drafts,
		Mailer:         mailSvc,
		Validate:       validate,
		Translator:     translator,
		Admission: echoapi.AdmissionOptions{
			Debounce:         conf.Search.Debounce,
			AutoSelectSingle: conf.Search.AutoSelectSingle,
			Rank:             conf.Search.Rank,
			Lookup:           conf.Backend.Lookup,
			SpoofPut:         conf.Backend.SpoofPut,
			JSONWire:         conf.Backend.JSONWire,
		},
	})

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
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
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

// setUpDrafts opens the configured drafts store.
func setUpDrafts(conf *core.Config) (admission.DraftStore, func(), error) {
	switch conf.Drafts.Driver {
	case "", "memory":
		return inmemdb.NewDraftRepository(inmemdb.Open()), func() {}, nil
	case "file":
		store, err := localfs.NewDraftStore(conf.Drafts.Dir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case "postgres":
		if err := database.CreateIfNotExist(conf.Database); err != nil {
			return nil, nil, err
		}
		db, err := database.Open(conf.Database)
		if err != nil {
			return nil, nil, err
		}
		if err = database.Migrate(db.DB); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return sqlxrepos.NewDraftRepository(db), func() { _ = db.Close() }, nil
	default:
		return nil, nil, errors.Errorf("unknown drafts driver %q", conf.Drafts.Driver)
	}
}
