// Package control wires configuration into running coordinators: backends,
// change-channel transports, circuit tracker, snapshot store and the health
// server, with graceful startup and shutdown.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/vietddude/feedsync/internal/core/config"
	"github.com/vietddude/feedsync/internal/core/domain"
	"github.com/vietddude/feedsync/internal/feed/breaker"
	"github.com/vietddude/feedsync/internal/feed/channel"
	"github.com/vietddude/feedsync/internal/feed/fetch"
	"github.com/vietddude/feedsync/internal/feed/health"
	"github.com/vietddude/feedsync/internal/feed/refresh"
	"github.com/vietddude/feedsync/internal/feed/snapshot"
	"github.com/vietddude/feedsync/internal/infra/backend"
	"github.com/vietddude/feedsync/internal/infra/realtime"
)

// App is the daemon: one coordinator per configured resource plus the shared
// tracker, snapshot store and health surface.
type App struct {
	cfg config.AppConfig

	tracker   *breaker.Tracker
	snapshots *snapshot.Store
	monitor   *health.Monitor
	server    *health.Server

	rest     *backend.RESTBackend
	sql      *backend.SQLBackend
	redisTr  *realtime.RedisTransport
	runtimes map[string]*resourceRuntime

	log *slog.Logger
}

// NewApp builds the full object graph from configuration. Backends and the
// redis transport are only constructed when configured; every resource must
// end up with at least one usable query path.
func NewApp(cfg config.AppConfig) (*App, error) {
	app := &App{
		cfg:      cfg,
		tracker:  breaker.NewTracker(),
		runtimes: make(map[string]*resourceRuntime),
		log:      slog.Default(),
	}

	store, err := snapshot.NewStore(cfg.Snapshot.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to init snapshot store: %w", err)
	}
	app.snapshots = store
	app.monitor = health.NewMonitor(app.tracker)

	if cfg.Primary.BaseURL != "" {
		app.rest = backend.NewRESTBackend("rest", cfg.Primary.BaseURL, cfg.Primary.APIKey, cfg.Primary.Timeout.Duration())
		slog.Info("Using REST primary backend", "base_url", cfg.Primary.BaseURL)
	}

	if cfg.Database.URL != "" {
		sqlb, err := backend.NewSQLBackend("sql", cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to init sql backend: %w", err)
		}
		app.sql = sqlb

		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(sqlb.DB().DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		slog.Info("Using direct SQL secondary backend")
	}

	if cfg.Redis.URL != "" {
		if err := app.connectRedis(cfg.Redis); err != nil {
			return nil, err
		}
	}

	for _, rc := range cfg.Resources {
		rt, err := app.buildResource(rc)
		if err != nil {
			return nil, err
		}
		app.runtimes[rc.Name] = rt
		app.monitor.Register(rc.Name, rt)
	}

	app.server = health.NewServer(app.monitor, app, cfg.Server.Port)
	return app, nil
}

// connectRedis dials with bounded exponential backoff so a daemon starting
// before its redis does not give up immediately.
func (a *App) connectRedis(cfg realtime.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	backoff := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		tr, err := realtime.NewRedisTransport(cfg)
		if err != nil {
			slog.Warn("Redis not reachable yet, retrying", "error", err)
			return retry.RetryableError(err)
		}
		a.redisTr = tr
		return nil
	})
}

func (a *App) buildResource(rc config.ResourceConfig) (*resourceRuntime, error) {
	var primary, secondary fetch.Query[domain.Row]

	if rc.Path != "" && a.rest != nil {
		primary = a.rest.Rows(rc.Path)
	}
	if rc.Query != "" && a.sql != nil {
		secondary = a.sql.Rows(rc.Query)
	}

	switch {
	case primary == nil && secondary == nil:
		return nil, fmt.Errorf("resource %s: no usable backend (need path+primary or query+database)", rc.Name)
	case primary == nil:
		slog.Warn("Resource has no REST path, SQL serves both backends", "resource", rc.Name)
		primary = secondary
	case secondary == nil:
		slog.Warn("Resource has no SQL query, REST serves both backends", "resource", rc.Name)
		secondary = primary
	}

	transport, err := a.buildTransport(rc)
	if err != nil {
		return nil, err
	}

	rt := &resourceRuntime{cfg: rc, app: a}
	fetcher := &fetch.Fetcher[domain.Row]{
		Resource:  rc.Name,
		Group:     rc.Group,
		Tracker:   a.tracker,
		Primary:   primary,
		Secondary: secondary,
		Timeout:   a.cfg.Primary.Timeout.Duration(),
	}
	rt.coord = refresh.New(rc.Name, rc.Interval.Duration(), fetcher, refresh.Options[domain.Row]{
		OnResult:  rt.onResult,
		Transport: transport,
	})
	return rt, nil
}

func (a *App) buildTransport(rc config.ResourceConfig) (channel.Transport, error) {
	switch rc.Channel.Transport {
	case "":
		return nil, nil
	case "websocket":
		if rc.Channel.URL == "" {
			return nil, fmt.Errorf("resource %s: websocket channel requires url", rc.Name)
		}
		return realtime.NewWebsocketTransport(rc.Channel.URL), nil
	case "postgres":
		if a.cfg.Database.URL == "" {
			return nil, fmt.Errorf("resource %s: postgres channel requires database.url", rc.Name)
		}
		tr := realtime.NewPostgresTransport(a.cfg.Database.URL)
		if name := rc.Channel.Name; name != "" {
			tr.ChannelName = func(string) string { return name }
		}
		return tr, nil
	case "redis":
		if a.redisTr == nil {
			return nil, fmt.Errorf("resource %s: redis channel requires redis.url", rc.Name)
		}
		if name := rc.Channel.Name; name != "" {
			return a.redisTr.WithTopic(name), nil
		}
		return a.redisTr, nil
	default:
		return nil, fmt.Errorf("resource %s: unknown channel transport %q", rc.Name, rc.Channel.Transport)
	}
}

// Start launches every coordinator and the health server.
func (a *App) Start(ctx context.Context) error {
	for name, rt := range a.runtimes {
		if err := rt.coord.Start(ctx); err != nil {
			return fmt.Errorf("failed to start coordinator %s: %w", name, err)
		}
		slog.Info("Coordinator started",
			"resource", name, "group", rt.cfg.Group, "interval", rt.cfg.Interval)
	}

	go func() {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Health server failed", "error", err)
		}
	}()
	slog.Info("Health server listening", "port", a.cfg.Server.Port)
	return nil
}

// Stop shuts everything down: coordinators first so no fetch races a closing
// backend, then the HTTP server and connections.
func (a *App) Stop(ctx context.Context) error {
	for _, rt := range a.runtimes {
		rt.coord.Stop()
	}

	var errs []error
	if err := a.server.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.sql != nil {
		if err := a.sql.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.redisTr != nil {
		if err := a.redisTr.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Snapshots exposes the last-good outcomes, stale-but-present.
func (a *App) Snapshots() *snapshot.Store { return a.snapshots }

// ProbePrimary force-restores the primary backend for a group and kicks the
// group's coordinators so the probe result shows up immediately.
func (a *App) ProbePrimary(group string) error {
	found := false
	for _, rt := range a.runtimes {
		if rt.cfg.Group == group {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("unknown resource group %q", group)
	}

	a.tracker.RestorePrimary(group)
	for _, rt := range a.runtimes {
		if rt.cfg.Group == group {
			rt.coord.Kick()
		}
	}
	return nil
}

// Reconnect drops and redials the change channel for a resource.
func (a *App) Reconnect(resource string) error {
	rt, ok := a.runtimes[resource]
	if !ok {
		return fmt.Errorf("unknown resource %q", resource)
	}
	ch := rt.coord.Channel()
	if ch == nil {
		return fmt.Errorf("resource %q has no change channel", resource)
	}
	ch.Reconnect()
	return nil
}
