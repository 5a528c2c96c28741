package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"taskadmin/admin-console/internal/audit"
	"taskadmin/admin-console/internal/auth"
	"taskadmin/admin-console/internal/config"
	"taskadmin/admin-console/internal/console"
	"taskadmin/admin-console/internal/dbconn"
	"taskadmin/admin-console/internal/httpserver"
	"taskadmin/admin-console/internal/jobs"
	"taskadmin/admin-console/internal/migrations"
	"taskadmin/admin-console/internal/observability"
	"taskadmin/admin-console/internal/pages"
	"taskadmin/admin-console/internal/sessionstore"
	"taskadmin/admin-console/internal/store"
)

const redisStatePrefix = "console:state:"

type App struct {
	cfg       config.Config
	log       *logrus.Logger
	db        *dbconn.Manager
	audit     *audit.Logger
	scheduler *jobs.Scheduler
	server    *httpserver.Server
	closers   []io.Closer
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)

	db, err := dbconn.Connect(ctx, cfg.DBConnConfig(), dbconn.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a := &App{cfg: cfg, log: logger, db: db}
	if err := a.build(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg

	migrationService, err := migrations.NewService(a.db, a.log)
	if err != nil {
		return fmt.Errorf("create migration service: %w", err)
	}
	if cfg.DB.AutoMigrate {
		applied, err := migrationService.Apply(ctx)
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		a.log.WithField("applied", applied).Info("migrations applied")
	}

	records, err := store.New(a.db, store.ConsoleSchema())
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	admins, err := auth.NewAdminStore(records)
	if err != nil {
		return fmt.Errorf("create admin store: %w", err)
	}
	if err := a.seedBootstrapAdmin(ctx, admins); err != nil {
		return err
	}

	tokens, err := newTokens(cfg.Auth)
	if err != nil {
		return fmt.Errorf("create token issuer: %w", err)
	}
	if cfg.Auth.LegacyTokens {
		a.log.Warn("legacy tokens enabled: a bare username resumes a session")
	}

	a.audit = audit.NewLogger(cfg.AuditLogFile)
	a.closers = append(a.closers, a.audit)

	machine, err := console.NewMachine(records, console.MachineConfig{
		Tokens: tokens,
		Audit:  a.audit,
		Logger: a.log,
	})
	if err != nil {
		return fmt.Errorf("create console machine: %w", err)
	}
	router, err := pages.NewRouter(pages.Deps{
		Records:  records,
		Profiles: admins,
		Audit:    a.audit,
		Logger:   a.log,
	})
	if err != nil {
		return fmt.Errorf("create page router: %w", err)
	}

	states, err := a.newStateStore(ctx, records)
	if err != nil {
		return fmt.Errorf("create client state store: %w", err)
	}
	if purger, ok := states.(sessionstore.Purger); ok {
		a.scheduler, err = jobs.NewScheduler(purger, cfg.State.PurgeSchedule, a.log)
		if err != nil {
			return fmt.Errorf("create scheduler: %w", err)
		}
	}

	a.server = httpserver.New(cfg.HTTP, httpserver.Deps{
		Console:      machine,
		Pages:        router,
		States:       states,
		Cookies:      sessions.NewCookieStore([]byte(cfg.HTTP.CookieSecret)),
		DB:           a.db,
		Migrations:   migrationService,
		Audit:        a.audit,
		Logger:       a.log,
		CookieSecure: cfg.HTTP.CookieSecure,
		CookieMaxAge: int(cfg.State.TTL.Seconds()),
	})
	return nil
}

// seedBootstrapAdmin creates the configured admin when no row has its
// username. Without a password or hash there is nothing to seed.
func (a *App) seedBootstrapAdmin(ctx context.Context, admins *auth.AdminStore) error {
	hash, err := bootstrapHash(a.cfg.Auth)
	if err != nil {
		return err
	}
	if hash == "" {
		a.log.Warn("no bootstrap admin password configured, skipping seed")
		return nil
	}
	created, err := admins.EnsureAdmin(ctx, a.cfg.Auth.BootstrapUsername, hash, a.cfg.Auth.BootstrapEmail)
	if err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}
	if created {
		a.log.WithField("username", a.cfg.Auth.BootstrapUsername).Info("bootstrap admin created")
	}
	return nil
}

func bootstrapHash(cfg config.AuthConfig) (string, error) {
	if cfg.BootstrapPasswordHash != "" {
		return cfg.BootstrapPasswordHash, nil
	}
	if cfg.BootstrapPassword == "" {
		return "", nil
	}
	if err := auth.CheckPasswordPolicy(cfg.BootstrapPassword); err != nil {
		return "", fmt.Errorf("bootstrap password: %w", err)
	}
	hash, err := auth.HashPassword(cfg.BootstrapPassword)
	if err != nil {
		return "", fmt.Errorf("hash bootstrap password: %w", err)
	}
	return hash, nil
}

func newTokens(cfg config.AuthConfig) (console.Tokens, error) {
	if cfg.LegacyTokens {
		return auth.LegacyTokens{}, nil
	}
	return auth.NewTokenSigner(cfg.TokenSecret, cfg.TokenTTL)
}

func (a *App) newStateStore(ctx context.Context, records sessionstore.Records) (sessionstore.Store, error) {
	sc := a.cfg.State
	switch sc.Backend {
	case config.StateMemory:
		return sessionstore.NewMemoryStore(sc.TTL), nil
	case config.StateSQL:
		return sessionstore.NewSQLStore(records, sc.TTL)
	case config.StateRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPassword,
			DB:       sc.RedisDB,
		})
		a.closers = append(a.closers, client)
		rs, err := sessionstore.NewRedisStore(client, redisStatePrefix, sc.TTL)
		if err != nil {
			return nil, err
		}
		if err := rs.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return rs, nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", sc.Backend)
	}
}

func (a *App) Run(ctx context.Context) error {
	defer a.close()

	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer a.scheduler.Stop()
	}

	errCh := make(chan error, 1)

	go func() {
		a.log.WithField("addr", a.cfg.HTTP.Addr).Info("http server starting")
		errCh <- a.server.Start()
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server exited: %w", err)
	}
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.WithError(err).Warn("close resource failed")
		}
	}
	a.closers = nil
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("close database failed")
		}
	}
}
