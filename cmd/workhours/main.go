package main

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"workhours/internal/auth"
	"workhours/internal/backend"
	"workhours/internal/cache"
	"workhours/internal/cli"
	"workhours/internal/core"
	apphttp "workhours/internal/http"
	"workhours/internal/log"
	"workhours/internal/prefs"
	"workhours/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.ShutdownContext(logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldBackend, cfg.DataBackend, log.FieldError, err)
		os.Exit(1)
	}

	verifier, err := auth.New(cfg.EditPasswordHash, cfg.EditPassword)
	if err != nil {
		logger.Error("Failed to set up edit password", log.FieldError, err)
		os.Exit(1)
	}
	if _, disabled := verifier.(auth.Disabled); disabled {
		logger.Warn("No edit password configured, editing is disabled outside demo mode")
	}

	grants, err := auth.NewGrants(cfg.SessionSecret, cfg.UnlockTTL)
	if err != nil {
		logger.Error("Failed to set up unlock cookies", log.FieldError, err)
		os.Exit(1)
	}
	if cfg.SessionSecret == "" {
		logger.Info("SESSION_SECRET not set, unlocks end when the server restarts")
	}

	session := services.NewSession(services.SessionConfig{
		Store:    result.Backend,
		Verifier: verifier,
		Prefs:    prefs.NewFileStore(cfg.PreferencesPath, prefs.Defaults(core.NormalizeTarget(cfg.DefaultDailyTarget))),
		Logger:   logger,
		Demo:     cfg.DemoMode,
	})
	loadCtx, cancelLoad := context.WithTimeout(ctx, 30*time.Second)
	if err := session.Load(loadCtx); err != nil {
		logger.Error("Failed to load work log", log.FieldOperation, log.OpLoad, log.FieldError, err)
	}
	cancelLoad()

	caches := cache.NewManager()
	for name, c := range result.Caches {
		caches.Register(name, c)
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:                    ":" + cfg.Port,
		Session:                 session,
		Logger:                  logger,
		UnlockAttemptsPerMinute: cfg.UnlockAttemptsPerMinute,
		Grants:                  grants,
	})

	logger.Info("Starting workhours server",
		"port", cfg.Port,
		log.FieldBackend, cfg.DataBackend,
		log.FieldDemoMode, session.Snapshot(ctx).Demo)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx, 30*time.Second) })
	g.Go(func() error { return caches.Run(gctx, time.Minute) })
	g.Go(func() error { return session.RetryLoadEvery(gctx, time.Minute) })

	runErr := g.Wait()
	cli.RunCleanup(logger, 10*time.Second, func(context.Context) error { return result.Close() })
	if runErr != nil {
		logger.Error("Server error", log.FieldError, runErr)
		os.Exit(1)
	}
}
