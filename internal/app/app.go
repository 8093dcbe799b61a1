// Package app assembles the server from configuration: database, Redis,
// storage, broker, lock gate, handlers and routes.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/imagelock/internal/catalog"
	"github.com/iliyamo/imagelock/internal/config"
	"github.com/iliyamo/imagelock/internal/database"
	"github.com/iliyamo/imagelock/internal/handler"
	"github.com/iliyamo/imagelock/internal/lockgate"
	"github.com/iliyamo/imagelock/internal/logging"
	"github.com/iliyamo/imagelock/internal/middleware"
	"github.com/iliyamo/imagelock/internal/passcode"
	"github.com/iliyamo/imagelock/internal/queue"
	"github.com/iliyamo/imagelock/internal/repository"
	"github.com/iliyamo/imagelock/internal/router"
	"github.com/iliyamo/imagelock/internal/sequence"
	"github.com/iliyamo/imagelock/internal/session"
	"github.com/iliyamo/imagelock/internal/storage"
	"github.com/iliyamo/imagelock/internal/unlock"
)

const shutdownTimeout = 10 * time.Second

// Server is a fully wired HTTP server and the resources it owns.
type Server struct {
	Echo *echo.Echo
	Cfg  config.Config
	Log  *logging.SlogLogger

	db     *sql.DB
	rdb    *redis.Client
	events queue.Publisher
}

// New wires every component from cfg. The returned server owns the database
// pool, the Redis client and the broker connection; Close releases them.
func New(ctx context.Context, cfg config.Config, log *logging.SlogLogger) (*Server, error) {
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := database.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}

	s := &Server{Cfg: cfg, Log: log, db: db}

	s.rdb = config.NewRedisClient(ctx)
	var (
		unlocked unlock.Cache
		ended    session.Revocations
	)
	if s.rdb != nil {
		unlocked = unlock.NewRedisCache(s.rdb, "unlock", cfg.UnlockTTL())
		ended = session.NewRedisRevocations(s.rdb, "revoked")
		log.Info(ctx, "redis connected")
	} else {
		unlocked = unlock.NewMemoryCache()
		ended = session.NewMemoryRevocations()
		log.Warn(ctx, "redis unavailable: in-process unlock records, no lockout, no rate limit, no cache")
	}

	s.events = newPublisher(ctx, cfg, log)

	store, err := storage.New(ctx, cfg.Storage, cfg.UploadDir)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}

	apps := repository.NewWebAppRepo(db)
	gate := lockgate.New(lockgate.Deps{
		Ended:     ended,
		Apps:      apps,
		Passcodes: passcode.NewStore(repository.NewPasscodeRepo(db), sequence.NewCodec(cfg.BcryptCost)),
		Catalog:   catalog.NewDirProvider(cfg.ImagesDir),
		Unlocked:  unlocked,
		Lockout:   lockgate.NewLockout(s.rdb, config.LoadLockoutConfig()),
		Events:    s.events,
		Log:       log.With("component", "lockgate"),
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(requestLogger(log))

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db), unlocked, ended, log), cfg.JWTSecret, ended)
	router.RegisterApps(e, handler.NewWebAppHandler(apps, store, gate, cfg.UploadMaxBytes, log), cfg.JWTSecret, ended)
	router.RegisterLock(e, handler.NewLockHandler(gate, log), cfg.JWTSecret, ended,
		middleware.NewRedisCache(config.LoadCacheConfig(), s.rdb),
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), s.rdb))

	s.Echo = e
	return s, nil
}

// newPublisher dials the broker when one is configured and falls back to
// logging events when it is not reachable.
func newPublisher(ctx context.Context, cfg config.Config, log logging.Logger) queue.Publisher {
	fallback := queue.LogPublisher{Log: log}
	if cfg.RabbitMQURL == "" {
		return fallback
	}
	p, err := queue.NewAMQPPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Warn(ctx, "rabbitmq unavailable, audit events go to the log", "err", err)
		return fallback
	}
	log.Info(ctx, "rabbitmq publisher ready", "queue", queue.AuditQueue)
	return p
}

func requestLogger(log *logging.SlogLogger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			level := slog.LevelInfo
			if v.Error != nil {
				level = slog.LevelError
				attrs = append(attrs, slog.String("err", v.Error.Error()))
			}
			log.Slog().LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully. When a
// broker is configured the audit consumer runs alongside the server.
func (s *Server) Run(ctx context.Context) error {
	if s.Cfg.RabbitMQURL != "" {
		go func() {
			err := queue.StartAuditConsumer(ctx, s.Cfg.RabbitMQURL, s.Cfg.AuditLogDir, s.Log.With("component", "audit-consumer"))
			if err != nil && !errors.Is(err, context.Canceled) {
				s.Log.Error(ctx, "audit consumer stopped", "err", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + s.Cfg.Port
		s.Log.Info(ctx, "listening", "addr", addr, "env", s.Cfg.Env)
		if err := s.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.Log.Info(shutdownCtx, "shutting down")
	if err := s.Echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Close releases the broker, Redis and database connections.
func (s *Server) Close() {
	if s.events != nil {
		s.events.Close()
	}
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

// NewLogger builds the process logger writing to stderr.
func NewLogger(env string) *logging.SlogLogger {
	return logging.New(env, os.Stderr)
}
