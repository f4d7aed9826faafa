// Command gotokend serves the goToken lifecycle engine over HTTP.
//
// Configuration is read from GOTOKEN_* environment variables; see config.go.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	goToken "github.com/MrEthical07/goToken"
	tokenapi "github.com/MrEthical07/goToken/api/echo"
	"github.com/MrEthical07/goToken/internal/directory"
	promexport "github.com/MrEthical07/goToken/metrics/export/prometheus"
	"github.com/MrEthical07/goToken/records"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gotokend: %v\n", err)
		os.Exit(2)
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("gotokend stopped")
	}
}

func newLogger(cfg serverConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.LogPretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return logger.Level(level).With().Str("service", "gotokend").Logger()
}

func run(ctx context.Context, cfg serverConfig, logger zerolog.Logger) error {
	engineCfg, err := cfg.engineConfig()
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	builder := goToken.New().WithConfig(engineCfg).WithLogger(logger)
	if cfg.AuditLog {
		builder.WithAuditSink(goToken.NewLoggerSink(logger.With().Str("stream", "audit").Logger()))
	}

	closers, err := wireBackend(ctx, cfg, builder, logger)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()
	if err != nil {
		return err
	}

	var users *directory.Static
	if cfg.UsersFile != "" {
		users, err = directory.Load(cfg.UsersFile)
		if err != nil {
			return fmt.Errorf("load users: %w", err)
		}
		builder.WithDirectory(users)
		logger.Info().Int("users", users.Len()).Str("file", cfg.UsersFile).Msg("static directory loaded")
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	report := engine.SecurityReport()
	logger.Info().
		Str("backend", cfg.Backend).
		Str("alg", report.SigningAlgorithm).
		Dur("access_ttl", report.AccessTTL).
		Dur("refresh_ttl", report.RefreshTTL).
		Bool("family_revoke_on_replay", report.FamilyRevokeOnReplay).
		Bool("revoke_issued_access", report.RevokeIssuedAccess).
		Bool("refresh_throttle", report.RefreshThrottleActive).
		Msg("engine ready")

	stopCleanup := engine.StartCleanup(ctx)
	defer stopCleanup()

	if users != nil {
		go reloadOnHUP(ctx, users, cfg.UsersFile, logger)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	tokenapi.NewTokenAPI(engine, tokenapi.Options{IssueKey: cfg.IssueKey, Logger: logger}).RegisterRoutes(e)
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "OK") })

	metrics := promexport.Handler(promexport.NewCollector(engine))
	var metricsSrv *http.Server
	if cfg.MetricsAddr == "" {
		e.GET("/metrics", echo.WrapHandler(metrics))
	} else {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics)
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics listener failed")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("listening")
		errCh <- e.Start(cfg.Addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownWait)
	defer cancel()
	logger.Info().Msg("shutting down")
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return e.Shutdown(shutdownCtx)
}

// wireBackend attaches the record store and Redis client selected by cfg.
// Closers run in reverse order even when an error is returned.
func wireBackend(ctx context.Context, cfg serverConfig, b *goToken.Builder, logger zerolog.Logger) ([]func(), error) {
	var closers []func()

	if cfg.usesRedis() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		closers = append(closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return closers, fmt.Errorf("redis: %w", err)
		}
		b.WithRedis(rdb)
	}

	switch cfg.Backend {
	case "postgres":
		db, err := records.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return closers, fmt.Errorf("postgres: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })
		if err := records.Migrate(ctx, db); err != nil {
			return closers, err
		}
		b.WithRecordStore(records.NewPostgresStore(db))
		logger.Info().Msg("postgres record store ready")

	case "mongo":
		client, err := records.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return closers, fmt.Errorf("mongo: %w", err)
		}
		closers = append(closers, func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(dctx)
		})
		store := records.NewMongoStore(client.Database(cfg.MongoDB))
		if err := store.EnsureIndexes(ctx); err != nil {
			return closers, fmt.Errorf("mongo indexes: %w", err)
		}
		b.WithRecordStore(store)
		logger.Info().Str("db", cfg.MongoDB).Msg("mongo record store ready")
	}
	return closers, nil
}

func reloadOnHUP(ctx context.Context, users *directory.Static, path string, logger zerolog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := users.Reload(path); err != nil {
				logger.Error().Err(err).Msg("directory reload failed")
				continue
			}
			logger.Info().Int("users", users.Len()).Msg("directory reloaded")
		}
	}
}
