// cmd/web/main.go
//
// Civitas entry-point.
//
// Boot sequence:
//
//  1. Config              – defaults → .env → conf/global.yaml → CIVITAS_ env,
//                           vault: references resolved.
//  2. Logger              – zap JSON file sink, console tee on a TTY.
//  3. Control plane       – MySQL pool with retries, goose migrations.
//  4. Tenancy             – city directory, domain map, anomaly tracker,
//                           resolver, middleware.
//  5. Caches              – tenantcache over the configured store, module
//                           resolver on top.
//  6. Jobs                – queue transport, dispatcher, registry, worker
//                           pool, periodic scheduler.
//  7. Invalidation        – local or Redis bus feeding the applier.
//  8. Components + router – component.InitAll, server.Router.
//  9. Serve               – graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yanizio/civitas/internal/acl"
	"github.com/yanizio/civitas/internal/cache"
	"github.com/yanizio/civitas/internal/city"
	"github.com/yanizio/civitas/internal/component"
	"github.com/yanizio/civitas/internal/config"
	"github.com/yanizio/civitas/internal/database"
	"github.com/yanizio/civitas/internal/form"
	"github.com/yanizio/civitas/internal/invalidation"
	"github.com/yanizio/civitas/internal/jobs"
	"github.com/yanizio/civitas/internal/logger"
	"github.com/yanizio/civitas/internal/module"
	"github.com/yanizio/civitas/internal/notify"
	"github.com/yanizio/civitas/internal/report"
	"github.com/yanizio/civitas/internal/requestinfo"
	"github.com/yanizio/civitas/internal/resident"
	"github.com/yanizio/civitas/internal/server"
	"github.com/yanizio/civitas/internal/session"
	"github.com/yanizio/civitas/internal/tasks"
	"github.com/yanizio/civitas/internal/tenant"
	"github.com/yanizio/civitas/internal/tenantcache"
	"github.com/yanizio/civitas/internal/weather"

	_ "github.com/yanizio/civitas/components/reports"
	_ "github.com/yanizio/civitas/components/weather"
)

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("civitas: %v", err)
	}
}

func run(ctx context.Context) error {
	//
	// ── 1.  Config ──────────────────────────────────────────────────────
	//
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	//
	// ── 2.  Logger ──────────────────────────────────────────────────────
	//
	zl, err := logger.New(cfg.Log.Dir, runningInTTY(), cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	if cfg.GeoIP.Path != "" {
		if err := requestinfo.InitGeo(cfg.GeoIP.Path); err != nil {
			zl.Warn("geoip database unavailable", zap.String("path", cfg.GeoIP.Path), zap.Error(err))
		}
		defer requestinfo.CloseGeo()
	}

	//
	// ── 3.  Control plane ───────────────────────────────────────────────
	//
	dsn, err := cfg.Database.DSNWithPassword()
	if err != nil {
		return err
	}
	db, err := database.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db.DB, zl); err != nil {
		return err
	}
	store := city.NewStore(db)

	//
	// ── 4.  Tenancy ─────────────────────────────────────────────────────
	//
	dir := city.NewDirectory(store, cfg.Tenancy.CityConfigTTL, 30*time.Minute, 5*time.Minute, zl)
	defer dir.Close()
	domains := tenant.NewDomainMap(store, cfg.Tenancy.DomainMapTTL, zl)

	var alerter tenant.Alerter = tenant.NopAlerter{}
	if cfg.Notify.SlackWebhook != "" {
		alerter = notify.NewSlackAlerter(cfg.Notify.SlackWebhook, zl)
	}
	tracker := tenant.NewTracker(cfg.Tenancy.MismatchThreshold, cfg.Tenancy.MismatchWindow, alerter, zl)

	resolver := tenant.NewResolver(dir, domains, tenant.Options{
		Hosts:               tenant.NewHostPolicy(cfg.Tenancy.TrustedHosts),
		AllowHeaderOverride: cfg.Tenancy.AllowHeaderOverride,
		DefaultCitySlug:     cfg.Tenancy.DefaultCitySlug,
		Strict:              cfg.Tenancy.Strict,
	}, tracker, zl)
	tenantMW := tenant.NewMiddleware(resolver, cfg.Tenancy.HeaderName, zl)

	//
	// ── 5.  Caches ──────────────────────────────────────────────────────
	//
	var rdb *redis.Client
	redisClient := func() (*redis.Client, error) {
		if rdb != nil {
			return rdb, nil
		}
		c, err := cache.Connect(ctx, cfg.Cache.RedisURL, 5, 2*time.Second)
		if err != nil {
			return nil, err
		}
		rdb = c
		return rdb, nil
	}
	defer func() {
		if rdb != nil {
			_ = rdb.Close()
		}
	}()

	cstore, err := buildStore(cfg.Cache, redisClient)
	if err != nil {
		return err
	}
	tc := tenantcache.New(cstore, zl)
	modules := module.NewResolver(store, tc, cfg.Tenancy.ModuleStatusTTL, module.NewAliases(cfg.Modules.Aliases, zl), zl)

	//
	// ── 6.  Jobs ────────────────────────────────────────────────────────
	//
	var queue jobs.Queue
	switch cfg.Queue.Driver {
	case "nats":
		nq, err := jobs.ConnectNATS(ctx, cfg.Queue.NATSURL, jobs.NATSOptions{Stream: cfg.Queue.Stream}, zl)
		if err != nil {
			return err
		}
		defer nq.Close()
		queue = nq
	default:
		queue = jobs.NewMemoryQueue(1024, 5, zl)
	}
	dispatcher := jobs.NewDispatcher(queue, zl)

	var mailer notify.Mailer = notify.LogMailer{Log: zl}
	if cfg.Notify.PostmarkServerToken != "" {
		pm, err := notify.NewPostmark(cfg.Notify.PostmarkServerToken, cfg.Notify.PostmarkAccountToken, cfg.Notify.From)
		if err != nil {
			return err
		}
		mailer = pm
	}

	registry := jobs.NewRegistry()
	if err := tasks.Register(registry, &tasks.Deps{
		Cache:      tc,
		Weather:    weather.NewOpenMeteo(cfg.Weather.RequestsPerSecond, cfg.Weather.Burst),
		WeatherTTL: cfg.Weather.SnapshotTTL,
		Reports:    report.NewStore(db),
		Mailer:     mailer,
		Log:        zl,
	}); err != nil {
		return err
	}
	if vs := jobs.Conformance(registry); len(vs) > 0 {
		for _, v := range vs {
			zl.Error("job contract violation", zap.String("violation", v.String()))
		}
		return jobs.ErrContractViolation
	}

	handler := jobs.Chain(jobs.Run,
		jobs.Recover(zl),
		jobs.Instrument(zl),
		jobs.EnsureTenantContext(dir, zl),
	)
	pool := jobs.NewPool(queue, registry, handler, cfg.Queue.Workers, zl)
	scheduler := tasks.NewScheduler(dispatcher, store, modules, zl)

	//
	// ── 7.  Invalidation ────────────────────────────────────────────────
	//
	var bus invalidation.Bus = invalidation.NewLocalBus()
	if cfg.Invalidation.Driver == "redis" {
		c, err := redisClient()
		if err != nil {
			return err
		}
		bus = invalidation.NewRedisBus(c, cfg.Invalidation.Channel, zl)
	}
	applier := &invalidation.Applier{Domains: domains, Modules: modules, Cities: dir, Namespaces: tc, Log: zl}

	//
	// ── 8.  Components + router ─────────────────────────────────────────
	//
	validate := form.NewValidator()
	if err := component.InitAll(component.Deps{
		DB:            db,
		Neighborhoods: store,
		Jobs:          dispatcher,
		Cache:         tc,
		Validate:      validate,
		Log:           zl,
	}); err != nil {
		return err
	}

	deps := server.Deps{
		HTTP:         cfg.HTTP,
		TenantHeader: cfg.Tenancy.HeaderName,
		Tenants:      tenantMW,
		Domains:      domains,
		Modules:      modules,
		Register:     resident.NewHandler(resident.NewStore(db), store, validate, zl),
		Bus:          bus,
		Ping:         db.PingContext,
		Log:          zl,
	}
	if cfg.Session.Secret != "" {
		sessions := session.NewManager(cfg.Session.Secret, cfg.Session.TTL)
		checker := acl.NewChecker(db.DB)
		deps.Sessions = sessions
		deps.ACL = checker
		deps.Admin = tenant.NewAdmin(dir, checker, nil, sessions, zl)
		deps.CSRF = form.NewCSRF([]byte(cfg.Session.Secret))
	}

	srv := server.New(cfg.HTTP, server.Router(ctx, deps))

	//
	// ── 9.  Serve ───────────────────────────────────────────────────────
	//
	var wg sync.WaitGroup
	background := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
			zl.Debug("background task stopped", zap.String("task", name))
		}()
	}
	background("workers", func() {
		if err := pool.Run(ctx); err != nil {
			zl.Error("job workers failed", zap.Error(err))
		}
	})
	background("scheduler", func() {
		scheduler.Run(ctx, tasks.Intervals{
			Weather: cfg.Schedule.Weather,
			Digest:  cfg.Schedule.Digest,
			Purge:   cfg.Schedule.Purge,
		})
	})
	background("invalidation", func() {
		if err := bus.Subscribe(ctx, applier.Apply); err != nil && !errors.Is(err, context.Canceled) {
			zl.Error("invalidation subscriber failed", zap.Error(err))
		}
	})

	errc := make(chan error, 1)
	go func() {
		zl.Info("listening", zap.String("addr", cfg.HTTP.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	wg.Wait()
	return err
}

// buildStore picks the cache.Store named by cfg.Driver.
func buildStore(cfg config.Cache, redisClient func() (*redis.Client, error)) (cache.Store, error) {
	switch cfg.Driver {
	case "ristretto":
		r, err := cache.NewRistretto(cfg.MaxCostBytes)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "redis":
		c, err := redisClient()
		if err != nil {
			return nil, err
		}
		return cache.NewRedis(c), nil
	case "tiered":
		c, err := redisClient()
		if err != nil {
			return nil, err
		}
		return cache.NewTiered(cache.NewMemory(cfg.MaxEntries), cache.NewRedis(c), 30*time.Second), nil
	default:
		return cache.NewMemory(cfg.MaxEntries), nil
	}
}
