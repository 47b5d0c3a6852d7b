// Package runtime assembles configuration, storage, services and the HTTP
// stack into a runnable process.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/gridwise/utility-rates/internal/app"
	"github.com/gridwise/utility-rates/internal/app/domain/provider"
	"github.com/gridwise/utility-rates/internal/app/domain/rate"
	"github.com/gridwise/utility-rates/internal/app/httpapi"
	"github.com/gridwise/utility-rates/internal/app/metrics"
	ratesvc "github.com/gridwise/utility-rates/internal/app/services/rates"
	"github.com/gridwise/utility-rates/internal/app/storage/memory"
	"github.com/gridwise/utility-rates/internal/app/storage/postgres"
	"github.com/gridwise/utility-rates/internal/app/storage/rediscache"
	"github.com/gridwise/utility-rates/internal/config"
	"github.com/gridwise/utility-rates/internal/httpserver"
	"github.com/gridwise/utility-rates/internal/middleware"
	"github.com/gridwise/utility-rates/pkg/logger"
)

// Runtime owns every process-level resource: config, stores, the application
// and the HTTP server.
type Runtime struct {
	cfg *config.Config
	log *logger.Logger

	app    *app.Application
	server *httpserver.Server

	db    *sql.DB
	redis *redis.Client
}

// New assembles a runtime from configuration. Startup failures (bad DSN,
// unreachable redis, missing JWT secret) surface here so the process fails
// fast.
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("AUTH_JWT_SECRET is required")
	}

	rt := &Runtime{cfg: cfg, log: log}

	stores, err := rt.buildStores(ctx)
	if err != nil {
		return nil, err
	}

	var cache ratesvc.UserRatesCache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		rt.redis = client
		cache = rediscache.NewUserRates(client, time.Duration(cfg.Redis.TTL)*time.Second, log)
		log.WithField("addr", cfg.Redis.Addr).Info("user rates cache enabled")
	}

	application, err := app.New(stores, app.Options{
		UserRatesCache:    cache,
		RecomputeSchedule: cfg.Forecast.RecomputeSchedule,
		Workers:           cfg.Server.Workers,
		BillingPeriodDays: cfg.Forecast.BillingPeriodDays,
	}, log)
	if err != nil {
		return nil, err
	}
	rt.app = application

	if rt.db == nil && cfg.Forecast.TariffSeedFile != "" {
		if err := rt.seedTariffs(ctx, cfg.Forecast.TariffSeedFile); err != nil {
			return nil, err
		}
	}

	rt.server = httpserver.New(cfg.Server, rt.buildHandler(), log)
	if err := application.Attach(rt.server); err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) buildStores(ctx context.Context) (app.Stores, error) {
	if rt.cfg.Database.DSN == "" {
		rt.log.Info("no DATABASE_URL configured, using in-memory store")
		mem := memory.New()
		return app.Stores{Providers: mem, Rates: mem, Associations: mem, Forecasts: mem}, nil
	}

	db, err := openDatabase(ctx, rt.cfg.Database)
	if err != nil {
		return app.Stores{}, err
	}
	if err := postgres.Migrate(db); err != nil {
		db.Close()
		return app.Stores{}, fmt.Errorf("run migrations: %w", err)
	}
	rt.db = db

	st := postgres.New(db)
	return app.Stores{Providers: st, Rates: st, Associations: st, Forecasts: st}, nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// seedTariffs loads the YAML tariff file into the in-memory store through the
// services, so seed data passes the same validation as API input.
func (rt *Runtime) seedTariffs(ctx context.Context, path string) error {
	seed, err := config.LoadTariffSeed(path)
	if err != nil {
		return err
	}

	for _, sp := range seed.Providers {
		created, err := rt.app.Providers.Create(ctx, provider.Provider{
			Name:     sp.Name,
			Region:   sp.Region,
			Website:  sp.Website,
			Metadata: sp.Metadata,
		})
		if err != nil {
			return fmt.Errorf("seed provider %q: %w", sp.Name, err)
		}

		for _, sr := range sp.Rates {
			tiers := make([]rate.Tier, 0, len(sr.Tiers))
			for _, t := range sr.Tiers {
				tiers = append(tiers, rate.Tier{UpToKWh: t.UpToKWh, PricePerKWh: t.PricePerKWh})
			}
			tou := make([]rate.TOUPeriod, 0, len(sr.TimeOfUse))
			for _, p := range sr.TimeOfUse {
				tou = append(tou, rate.TOUPeriod{
					Label:       p.Label,
					StartHour:   p.StartHour,
					EndHour:     p.EndHour,
					PricePerKWh: p.PricePerKWh,
				})
			}

			if _, err := rt.app.Rates.Create(ctx, rate.Structure{
				ProviderID:         created.ID,
				Name:               sr.Name,
				Kind:               rate.Kind(sr.Kind),
				Currency:           sr.Currency,
				FixedMonthlyCharge: sr.FixedMonthlyCharge,
				PricePerKWh:        sr.PricePerKWh,
				Tiers:              tiers,
				TimeOfUse:          tou,
				EffectiveFrom:      sr.EffectiveFrom,
				EffectiveUntil:     sr.EffectiveUntil,
			}); err != nil {
				return fmt.Errorf("seed rate %q for provider %q: %w", sr.Name, sp.Name, err)
			}
		}
	}

	rt.log.WithField("providers", len(seed.Providers)).
		WithField("file", path).
		Info("tariff seed loaded")
	return nil
}

// buildHandler composes the middleware chain around the API handler.
// Authentication runs before rate limiting so limits key on the user, not the
// remote address.
func (rt *Runtime) buildHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", httpapi.NewHandler(rt.app, rt.log))

	auth := middleware.NewAuthMiddleware(
		[]byte(rt.cfg.Auth.JWTSecret),
		rt.cfg.Auth.Issuer,
		rt.log,
		[]string{"/healthz", "/metrics"},
	)
	limiter := middleware.NewRateLimiter(rt.cfg.Server.RateLimitRPS, rt.cfg.Server.RateLimitBurst, rt.log)
	cors := middleware.NewCORSMiddleware(splitOrigins(rt.cfg.Server.CORSAllowedOrigins))

	var handler http.Handler = limiter.Handler(mux)
	handler = auth.Handler(handler)
	handler = cors.Handler(handler)
	if rt.cfg.Server.AccessLog {
		handler = middleware.AccessLog(rt.log, handler)
	}
	return metrics.InstrumentHandler(handler)
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Run starts every managed service and blocks until the context is cancelled,
// then shuts down with the configured grace period.
func (rt *Runtime) Run(ctx context.Context) error {
	if err := rt.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	rt.log.WithField("addr", rt.server.Addr()).
		WithField("workers", rt.cfg.Server.Workers).
		Info("service started")

	<-ctx.Done()
	return rt.Shutdown()
}

// Shutdown stops services in reverse start order and releases process
// resources.
func (rt *Runtime) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(rt.cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	err := rt.app.Stop(ctx)

	if rt.redis != nil {
		if cerr := rt.redis.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if rt.db != nil {
		if cerr := rt.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	rt.log.Info("service stopped")
	return err
}
