package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nvrengine/core/api"
	"github.com/nvrengine/core/capture"
	"github.com/nvrengine/core/clipindex"
	"github.com/nvrengine/core/gateway"
	"github.com/nvrengine/core/httpclient"
	"github.com/nvrengine/core/logging"
	"github.com/nvrengine/core/models"
	"github.com/nvrengine/core/objectindex"
	"github.com/nvrengine/core/responders"
	"github.com/nvrengine/core/responsedb"
	"github.com/nvrengine/core/search"
	"github.com/nvrengine/core/supervisor"
	"github.com/nvrengine/core/videotoolkit"
)

// engineVersion is reported to the push gateway as svversionstring.
const engineVersion = "nvrengine-core/1.0"

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addRootFlag(fs)
	fs.Parse(args)

	cfg := loadAppConfig()
	logger := logging.New(cfg.App.LogLevel)

	clips, err := clipindex.Open(cfg.Storage.ClipIndexPath, logging.Component(logger, "clipindex"))
	if err != nil {
		log.Fatalf("opening clip index: %v", err)
	}
	defer clips.Close()

	objects, err := objectindex.Open(cfg.Storage.ObjectIndexPath, logging.Component(logger, "objectindex"))
	if err != nil {
		log.Fatalf("opening object index: %v", err)
	}
	defer objects.Close()

	db, err := responsedb.Open(cfg.Storage.ResponseDBPath, logging.Component(logger, "responsedb"))
	if err != nil {
		log.Fatalf("opening response db: %v", err)
	}
	defer db.Close()

	toolkit := videotoolkit.NewFfmpegToolkit(cfg.VideoToolkit.FfmpegPath, cfg.VideoToolkit.ScratchDir, logging.Component(logger, "videotoolkit"))

	httpClient := httpclient.New(15*time.Second, false)
	pushClient := httpclient.New(15*time.Second, true)

	pushGateway := &gateway.PushGateway{
		Client:   pushClient,
		Host:     cfg.Notification.GatewayHost,
		GUID:     cfg.Notification.GatewayGUID,
		Password: cfg.Notification.GatewayPassword,
	}
	iftttGateway := &gateway.IFTTTGateway{
		Client:    httpClient,
		BaseURL:   cfg.IFTTT.BaseURL,
		AuthToken: cfg.IFTTT.ServicesAuthToken,
	}

	emailSender := &responders.EmailSender{
		Toolkit: toolkit,
		SMTP:    cfg.SMTP,
		Log:     logging.Component(logger, "responder.email"),
	}
	pushSender := &responders.PushSender{
		Gateway:       pushGateway,
		DB:            db,
		VersionString: engineVersion,
		Log:           logging.Component(logger, "responder.push"),
	}
	iftttSender := &responders.IFTTTSender{
		Gateway: iftttGateway,
		Log:     logging.Component(logger, "responder.ifttt"),
	}
	webhookSender := &responders.WebhookSender{
		Client: httpClient,
		Log:    logging.Component(logger, "responder.webhook"),
	}
	tagger := &responders.RecordTagResponder{
		Clips:         clips,
		Log:           logging.Component(logger, "responder.recordtag"),
		PreRecordSec:  10,
		PostRecordSec: 10,
	}

	// Deliverer settings closures read the supervisor's snapshot at
	// send time, so SetFtpSettings / SetLocalExportSettings messages
	// take effect on the next delivery. sup is assigned below, before
	// any sender thread starts.
	var sup *supervisor.Supervisor

	ftpSender := &responders.ClipSender{
		Protocol:   models.ProtocolFTP,
		Clips:      clips,
		Toolkit:    toolkit,
		Flush:      capture.NoopFlush,
		ConfigDir:  cfg.VideoToolkit.ConfigDir,
		ScratchDir: cfg.VideoToolkit.ScratchDir,
		Deliverer: &responders.FTPDeliverer{
			Settings: func() models.FtpSettings {
				return sup.CurrentSettings().Ftp
			},
		},
		Log: logging.Component(logger, "responder.ftp"),
	}
	localSender := &responders.ClipSender{
		Protocol:   models.ProtocolLocalExport,
		Clips:      clips,
		Toolkit:    toolkit,
		Flush:      capture.NoopFlush,
		ConfigDir:  cfg.VideoToolkit.ConfigDir,
		ScratchDir: cfg.VideoToolkit.ScratchDir,
		Deliverer: &responders.LocalExportDeliverer{
			Settings: func() models.LocalExportSettings {
				return sup.CurrentSettings().LocalExport
			},
		},
		Log: logging.Component(logger, "responder.localexport"),
	}

	sup = supervisor.New(logging.Component(logger, "supervisor"), supervisor.Config{
		MaxInFlightSlow:     cfg.Supervisor.MaxInFlightSlow,
		LivenessSec:         cfg.Supervisor.LivenessSec,
		PushPurgeMaxAgeDays: cfg.Supervisor.PushPurgeMaxAgeDays,
		PushPurgeMaxRows:    cfg.Supervisor.PushPurgeMaxRows,
	}, supervisor.Deps{
		Clips:       clips,
		Objects:     objects,
		DB:          db,
		Flush:       capture.NoopFlush,
		Email:       emailSender,
		Push:        pushSender,
		IFTTT:       iftttSender,
		Webhook:     webhookSender,
		Tagger:      tagger,
		FTPSender:   ftpSender,
		LocalSender: localSender,
	})

	sup.UpdateSettings(func(st *supervisor.Settings) {
		st.Ftp = models.FtpSettings{
			Host:      cfg.Ftp.Host,
			Port:      cfg.Ftp.Port,
			User:      cfg.Ftp.User,
			Password:  cfg.Ftp.Password,
			Directory: cfg.Ftp.Directory,
			IsPassive: cfg.Ftp.IsPassive,
		}
		st.LocalExport = models.LocalExportSettings(cfg.LocalExport)
		st.Notification = models.NotificationSettings{
			Enabled:         cfg.Notification.Enabled,
			GatewayGUID:     cfg.Notification.GatewayGUID,
			GatewayPassword: cfg.Notification.GatewayPassword,
		}
		st.ServicesToken = cfg.IFTTT.ServicesAuthToken
	})

	engine := &search.Engine{Clips: clips, Objects: objects, Flush: capture.NoopFlush}

	router := api.NewRouter(api.Handlers{
		Search:   api.NewSearchHandler(engine),
		Messages: api.NewMessagesHandler(sup),
		Health:   &api.HealthHandler{Sup: sup, Clips: clips, Objects: objects, DB: db},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go sup.Run(ctx)

	srv := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port), Handler: router}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("starting http server")
		serveErr <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Stringer("signal", sig).Msg("received signal, shutting down")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown did not complete cleanly")
	}
	sup.Shutdown()
}
