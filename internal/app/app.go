// Package app is the process lifecycle shared by the service binaries: config, logging,
// telemetry, Postgres with migrations, Redis, the event channel, and graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/ariefcatur/go-saga-commerce/internal/config"
	"github.com/ariefcatur/go-saga-commerce/internal/events"
	"github.com/ariefcatur/go-saga-commerce/internal/httpx"
	"github.com/ariefcatur/go-saga-commerce/internal/logx"
	"github.com/ariefcatur/go-saga-commerce/internal/postgres"
	"github.com/ariefcatur/go-saga-commerce/internal/redisx"
	"github.com/ariefcatur/go-saga-commerce/internal/telemetry"
	"github.com/ariefcatur/go-saga-commerce/internal/transport"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Process struct {
	Cfg      config.Config
	Log      *zap.Logger
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Channel  events.Channel
	Pub      *events.Publisher
	Consumer *events.Consumer

	shutdownTelemetry telemetry.ShutdownFunc
}

// Start brings up every dependency of a service process. migrations is the service's
// embedded migrations directory; it is applied when MIGRATE_ON_START is set.
func Start(ctx context.Context, service string, migrations fs.FS) (*Process, error) {
	cfg := config.Load(service)
	log, err := logx.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	p := &Process{Cfg: cfg, Log: log}

	p.shutdownTelemetry, err = telemetry.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	if cfg.MigrateOnStart {
		if err := postgres.Migrate(cfg.PostgresDSN, migrations, "migrations"); err != nil {
			p.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("migrations applied")
	}
	p.DB, err = postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("db connect: %w", err)
	}

	p.Redis = redisx.New(cfg.RedisAddr)
	if err := redisx.Ping(ctx, p.Redis); err != nil {
		log.Warn("redis not reachable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	p.Channel, err = transport.Open(cfg, p.Redis, log)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("event transport: %w", err)
	}
	p.Pub = events.NewPublisher(p.Channel, cfg.ServiceName, log)
	p.Consumer = events.NewConsumer(p.Channel, log)
	return p, nil
}

// Run subscribes the registered handlers, serves HTTP until ctx is done, then shuts
// everything down.
func (p *Process) Run(ctx context.Context, router chi.Router) error {
	router.Get("/readyz", p.ready)

	if err := p.Consumer.Start(ctx); err != nil {
		p.Close()
		return err
	}

	srv := httpx.NewServer(p.Cfg.HTTPAddr, p.Cfg.ServiceName, router)
	errCh := make(chan error, 1)
	go func() {
		p.Log.Info("HTTP listening", zap.String("addr", p.Cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		p.Log.Info("shutting down")
	case runErr = <-errCh:
		p.Log.Error("http server stopped", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		p.Log.Warn("http shutdown", zap.Error(err))
	}
	if err := p.Consumer.Stop(shutdownCtx); err != nil {
		p.Log.Warn("unsubscribe", zap.Error(err))
	}
	p.Close()
	return runErr
}

// Close releases whatever Start managed to open.
func (p *Process) Close() {
	if p.Channel != nil {
		if err := p.Channel.Close(); err != nil {
			p.Log.Warn("close event channel", zap.Error(err))
		}
	}
	if p.Redis != nil {
		_ = p.Redis.Close()
	}
	if p.DB != nil {
		p.DB.Close()
	}
	if p.shutdownTelemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.shutdownTelemetry(ctx); err != nil {
			p.Log.Warn("telemetry shutdown", zap.Error(err))
		}
	}
	_ = p.Log.Sync()
}

func (p *Process) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := p.DB.Ping(ctx); err != nil {
		http.Error(w, "postgres: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err := redisx.Ping(ctx, p.Redis); err != nil {
		http.Error(w, "redis: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
