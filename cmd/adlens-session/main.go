package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/adlens-labs/adlens-session/internal/common"
	"github.com/adlens-labs/adlens-session/internal/config"
	"github.com/adlens-labs/adlens-session/internal/deviceid"
	"github.com/adlens-labs/adlens-session/internal/docstore"
	"github.com/adlens-labs/adlens-session/internal/hintcache"
	"github.com/adlens-labs/adlens-session/internal/identity"
	"github.com/adlens-labs/adlens-session/internal/monitor"
	"github.com/adlens-labs/adlens-session/internal/registry"
	"github.com/adlens-labs/adlens-session/internal/server"
	"github.com/adlens-labs/adlens-session/internal/service"
	"github.com/adlens-labs/adlens-session/internal/storage/bolt"
	"github.com/adlens-labs/adlens-session/internal/token"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	standalone := flag.Bool("standalone", false, "Use an in-memory document store instead of the remote one")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		common.NewLogger("error").Fatal().Err(err).Msg("load config")
	}
	logger := common.NewLogger(cfg.Log.Level)

	local, err := bolt.New(cfg.Storage.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open local store")
	}
	defer local.Close()

	provider, err := identity.NewHTTPProvider(cfg.Identity.BaseURL, cfg.Identity.APIKey,
		identity.WithLogger(logger),
		identity.WithTimeout(cfg.Identity.RequestTimeout),
		identity.WithRateLimit(cfg.Identity.RateLimit),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("init identity provider")
	}

	var docs docstore.Client
	if *standalone {
		docs = docstore.NewMemoryClient()
	} else {
		docs, err = docstore.NewHTTPClient(cfg.Docstore.BaseURL, cfg.Docstore.APIKey,
			docstore.WithLogger(logger),
			docstore.WithTimeout(cfg.Docstore.RequestTimeout),
			docstore.WithRateLimit(cfg.Docstore.RateLimit),
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("init document store client")
		}
	}

	ids := deviceid.New(local, logger)
	reg := registry.New(docs, local, logger, cfg.Session.MaxDevices)
	tokens := token.New(local, reg, ids, logger, deviceName(cfg), cfg.Session.Duration, cfg.Session.WriteWindow)
	hints := hintcache.New(local, logger, cfg.Session.HintTTL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sessionSvc *service.SessionService
	mon := monitor.New(tokens, logger,
		monitor.WithInterval(cfg.Session.PollInterval),
		monitor.WithWarnThreshold(cfg.Session.WarnThreshold),
		monitor.WithOnExpired(func() {
			logger.Info().Msg("session expired, forcing sign-out")
			if err := sessionSvc.Logout(ctx); err != nil {
				logger.Warn().Err(err).Msg("forced sign-out")
			}
		}),
	)
	sessionSvc = service.NewSessionService(ids, tokens, reg, hints, mon, provider, local, logger)

	mon.Start(ctx)
	go sessionSvc.Run(ctx)

	srv := server.New(cfg, sessionSvc, tokens, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()
	logger.Info().Str("addr", cfg.HTTP.Addr).Str("device_id", ids.GetOrCreate(ctx)).Msg("session agent up")

	waitForSignal()
	logger.Info().Msg("shutting down")
	mon.Stop()
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.WriteTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
}

func deviceName(cfg *config.Config) string {
	if cfg.Session.DeviceNameLabel != "" {
		return cfg.Session.DeviceNameLabel
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown device"
	}
	return host
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
