// cmd/web/main.go
//
// knit – HTTP entry point.
//
// Start-up sequence
// -----------------
//
//  1. Load env vars (jail-wide file, then conf/.env via the config loader).
//
//  2. Load and validate configuration (YAML, KNIT_ env, Vault secrets).
//
//  3. Start daily rotating logger (tees to console when configured).
//
//  4. Open the optional GeoLite2 database and submission archive.
//
//  5. Load form definitions from conf/forms.
//
//  6. Build the session store (memory or Redis), instance registry,
//     analytics emitters, and controller options.
//
//  7. Serve the chi router until SIGINT/SIGTERM, then drain requests and
//     tear every live form down so abandonment still reaches analytics.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yanizio/knit/internal/analytics"
	"github.com/yanizio/knit/internal/api"
	"github.com/yanizio/knit/internal/config"
	"github.com/yanizio/knit/internal/database"
	"github.com/yanizio/knit/internal/form"
	"github.com/yanizio/knit/internal/logger"
	"github.com/yanizio/knit/internal/middleware"
	"github.com/yanizio/knit/internal/requestinfo"
	"github.com/yanizio/knit/internal/server"
	"github.com/yanizio/knit/internal/session"
	"github.com/yanizio/knit/internal/submit"
)

const serverEnvPath = "/usr/local/etc/knit/global.env"

// loadEnv applies the jail-wide env file when present.
func loadEnv() {
	if _, err := os.Stat(serverEnvPath); err == nil {
		_ = godotenv.Load(serverEnvPath)
	}
}

func init() { loadEnv() }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//
	// ── 1.  Configuration ───────────────────────────────────────────────
	//
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	//
	// ── 2.  Logger ──────────────────────────────────────────────────────
	//
	logOut, err := logger.New(cfg.Paths.Root, cfg.Log.Tee)
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}
	defer func() { _ = logOut.Sync() }()

	if err := run(ctx, cfg, logOut); err != nil {
		logOut.Errorw("knit stopped", "err", err)
		_ = logOut.Sync()
		os.Exit(1)
	}
	logOut.Infow("knit stopped cleanly")
}

// run wires every component from cfg and serves until ctx ends.
func run(ctx context.Context, cfg *config.Config, logOut *zap.SugaredLogger) error {
	//
	// ── 3.  Optional geo + archive ──────────────────────────────────────
	//
	if cfg.Geo.DBPath != "" {
		if err := requestinfo.InitGeo(cfg.Geo.DBPath); err != nil {
			logOut.Warnw("geo lookup disabled", "err", err)
		} else {
			defer requestinfo.CloseGeo()
		}
	}

	var archive *submit.Store
	if cfg.Database.DSN != "" {
		db, err := database.Open(ctx, cfg.Database.ConnString())
		if err != nil {
			return err
		}
		defer db.Close()
		archive = &submit.Store{DB: db, Table: cfg.Database.Table}
		logOut.Infow("submission archive online", "table", archive.Table)
	}

	//
	// ── 4.  Form definitions ────────────────────────────────────────────
	//
	catalog := form.NewCatalog()
	if err := catalog.LoadDir(cfg.Forms.Dir); err != nil {
		return err
	}
	logOut.Infow("forms loaded", "count", len(catalog.List()), "dir", cfg.Forms.Dir)

	//
	// ── 5.  Sessions, registry, analytics ───────────────────────────────
	//
	store, closeStore, err := sessionStore(ctx, cfg.Session)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := form.NewRegistry(
		form.NewSigner([]byte(cfg.Forms.InstanceKey), 0),
		form.RegistryOptions{
			IdleTTL:    cfg.Forms.IdleTTL,
			MaxEntries: cfg.Forms.MaxInstances,
			Logger:     logOut,
		},
	)

	emitters := analytics.Multi{analytics.NewPrometheus(prometheus.DefaultRegisterer)}
	if cfg.Log.Analytics {
		emitters = append(emitters, analytics.Log{L: logOut})
	}

	var limiter *middleware.RateLimiter
	if cfg.HTTP.SubmitRate > 0 {
		limiter = middleware.NewRateLimiter(cfg.HTTP.SubmitRate, max(cfg.HTTP.SubmitBurst, 1))
	}

	handler := api.New(api.Config{
		Catalog:       catalog,
		Registry:      registry,
		Sessions:      session.NewManager(store, cfg.Session.Secure, logOut),
		Options:       controllerOptions(cfg.Forms, emitters, archive, logOut),
		Metrics:       promhttp.Handler(),
		CORSOrigins:   cfg.HTTP.CORSOrigins,
		ForceHTTPS:    cfg.HTTP.ForceHTTPS,
		SubmitLimiter: limiter,
		Logger:        logOut,
	})

	go housekeeping(ctx, store, limiter)

	//
	// ── 6.  Serve, then drain ───────────────────────────────────────────
	//
	err = server.Run(ctx, server.New(cfg.HTTP.ListenAddr, handler), cfg.HTTP.ShutdownTimeout)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	registry.Close(closeCtx)
	return err
}

// controllerOptions returns the per-instance option factory.  Each form
// posts to its own endpoint, else to the configured fallback, else
// simulates the round trip.  The archive, when present, runs after the
// primary sink succeeds.
func controllerOptions(fc config.Forms, em analytics.Emitter, archive *submit.Store, log *zap.SugaredLogger) func(*form.Definition) form.Options {
	return func(def *form.Definition) form.Options {
		endpoint := def.Endpoint
		if endpoint == "" {
			endpoint = fc.Endpoint
		}

		var primary submit.Sink = submit.Simulated{Delay: fc.SimulatedDelay}
		if endpoint != "" {
			primary = &submit.HTTP{URL: endpoint}
		}

		sink := primary
		if archive != nil {
			a := *archive
			a.FormID = def.ID
			sink = submit.Multi{primary, &a}
		}

		return form.Options{
			Emitter:        em,
			Sink:           sink,
			Endpoint:       endpoint,
			SimulatedDelay: fc.SimulatedDelay,
			Logger:         log,
		}
	}
}

// sessionStore builds the configured store.  The returned func releases
// any connection it holds.
func sessionStore(ctx context.Context, sc config.Session) (session.Store, func(), error) {
	if sc.Store != "redis" {
		return session.NewMemory(sc.TTL), func() {}, nil
	}
	cli := redis.NewClient(&redis.Options{Addr: sc.RedisAddr, Password: sc.RedisPassword})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := cli.Ping(pingCtx).Err(); err != nil {
		_ = cli.Close()
		return nil, nil, err
	}
	return &session.Redis{Client: cli, TTL: sc.TTL}, func() { _ = cli.Close() }, nil
}

// housekeeping sweeps expired memory sessions and idle rate-limit buckets.
func housekeeping(ctx context.Context, store session.Store, limiter *middleware.RateLimiter) {
	mem, _ := store.(*session.Memory)
	if mem == nil && limiter == nil {
		return
	}
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if mem != nil {
				mem.Sweep()
			}
			if limiter != nil {
				limiter.Sweep()
			}
		}
	}
}
