package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"iq-sync/internal/config"
	"iq-sync/internal/devops"
	"iq-sync/internal/httpclient"
	"iq-sync/internal/iq"
	"iq-sync/internal/organization"
	syncer "iq-sync/internal/sync"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("not loading from .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}

	err = config.Validate([]string{
		config.DevOpsOrganization,
		config.DevOpsToken,
		config.IQURL,
		config.IQUsername,
		config.IQPassword,
	})
	if err != nil {
		log.WithError(err).Fatal("validating configuration")
	}

	setupLogger(cfg)
	config.Print([]string{
		config.DevOpsToken,
		config.IQUsername,
		config.IQPassword,
	})

	mainLogger := log.WithFields(log.Fields{
		"component": "main",
	})

	mainLogger.Info("starting sync")

	ctx, signalStop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer signalStop()

	orgs, err := organization.Load(cfg.OrganizationsPath())
	if err != nil {
		mainLogger.WithError(err).Fatal("loading organizations")
	}
	mainLogger.Infof("found %d valid organizations", len(orgs))

	if cfg.InsecureSkipVerify {
		mainLogger.Warn("TLS certificate verification is disabled for outbound requests")
	}

	devopsClient := devops.NewClient(httpclient.New(cfg.InsecureSkipVerify), cfg.DevOps.Organization, cfg.DevOps.Token)
	iqClient := iq.NewClient(httpclient.New(cfg.InsecureSkipVerify), cfg.IQ.URL, cfg.IQ.Username, cfg.IQ.Password)

	metricsServer := serveMetrics(cfg.MetricsBindAddress, mainLogger)

	reconciler := syncer.NewReconciler(devopsClient, iqClient, cfg.DefaultBranch, cfg.StageID)
	reconciler.Run(ctx, orgs)

	shutdownMetrics(metricsServer, mainLogger)
	mainLogger.Info("sync finished")
}

func setupLogger(cfg *config.Config) {
	if cfg.DevelopmentMode {
		log.SetLevel(log.DebugLevel)
		formatter := &log.TextFormatter{
			ForceColors:            true,
			TimestampFormat:        "02-01-2006 15:04:05",
			FullTimestamp:          true,
			DisableLevelTruncation: true,
		}
		log.SetFormatter(formatter)
		return
	}

	formatter := log.JSONFormatter{
		TimestampFormat: time.RFC3339,
	}

	log.SetFormatter(&formatter)
	log.SetLevel(logLevel(cfg.LogLevel))
}

func logLevel(level string) log.Level {
	l, err := log.ParseLevel(level)
	if err != nil {
		l = log.InfoLevel
	}
	return l
}

func serveMetrics(addr string, logger *log.Entry) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server failed")
		}
	}()
	return server
}

func shutdownMetrics(server *http.Server, logger *log.Entry) {
	if server == nil {
		return
	}

	shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownRelease()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutting down metrics server")
	}
}
