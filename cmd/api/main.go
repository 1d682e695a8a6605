package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/civichub/internal/auth"
	"github.com/geocoder89/civichub/internal/classify"
	"github.com/geocoder89/civichub/internal/config"
	"github.com/geocoder89/civichub/internal/db"
	httpx "github.com/geocoder89/civichub/internal/http"
	"github.com/geocoder89/civichub/internal/http/handlers"
	"github.com/geocoder89/civichub/internal/http/middlewares"
	"github.com/geocoder89/civichub/internal/observability"
	"github.com/geocoder89/civichub/internal/queue/redisclient"
	"github.com/geocoder89/civichub/internal/realtime"
	"github.com/geocoder89/civichub/internal/repo/memory"
	"github.com/geocoder89/civichub/internal/repo/postgres"
	"github.com/geocoder89/civichub/internal/security"
	"github.com/geocoder89/civichub/internal/service"
	"github.com/geocoder89/civichub/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// stores bundles whichever backend STORE_DRIVER selected.
type stores struct {
	users     service.UserStore
	issues    service.IssueStore
	jobs      service.JobEnqueuer
	adminJobs handlers.AdminJobsRepo
	checks    map[string]handlers.Check
	close     func()
}

func openStores(ctx context.Context, cfg config.Config, prom *observability.Prom, log *slog.Logger) (stores, error) {
	if cfg.UsesMemoryStore() {
		log.Warn("using in-memory store; data is lost on restart")
		users := memory.NewUsersRepo()
		return stores{
			users:  users,
			issues: memory.NewIssuesRepo(users),
			checks: map[string]handlers.Check{},
			close:  func() {},
		}, nil
	}

	if err := db.RunMigrations(cfg.DBURL); err != nil {
		return stores{}, fmt.Errorf("migrations: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.DBURL, "civichub-api")
	if err != nil {
		return stores{}, fmt.Errorf("db connect: %w", err)
	}

	jobsRepo := postgres.NewJobsRepo(pool, prom)

	return stores{
		users:     postgres.NewUsersRepo(pool, prom),
		issues:    postgres.NewIssuesRepo(pool, jobsRepo, prom),
		jobs:      jobsRepo,
		adminJobs: jobsRepo,
		checks:    map[string]handlers.Check{"db": pool.Ping},
		close:     pool.Close,
	}, nil
}

func main() {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env, "civichub-api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
			ServiceName: "civichub-api",
			Env:         cfg.Env,
			Endpoint:    cfg.OTLPEndpoint,
			SampleRatio: cfg.TraceSampleRatio,
		})
		if err != nil {
			log.Error("tracer init failed", "err", err)
		} else {
			defer func() {
				tctx, cancel := config.WithTimeout(5 * time.Second)
				defer cancel()
				_ = shutdownTracer(tctx)
			}()
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	st, err := openStores(ctx, cfg, prom, log)
	if err != nil {
		log.Error("store setup failed", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	defer st.close()

	seedCtx, cancelSeed := context.WithTimeout(ctx, 5*time.Second)
	if err := db.EnsureAdminUser(seedCtx, st.users, cfg); err != nil {
		log.Error("admin seed failed", "err", err)
	}
	cancelSeed()

	uploader, err := storage.FromConfig(ctx, cfg)
	if err != nil {
		log.Error("image store setup failed", "err", err)
		os.Exit(1)
	}

	hub := realtime.NewHub(32, prom)
	defer hub.Close()

	var publisher service.Publisher = hub

	if rcfg, ok := redisclient.ConfigFrom(cfg); ok {
		rc := redisclient.New(rcfg)
		defer rc.Close()

		bridge := realtime.NewRedisBridge(rc.Raw(), rcfg.Channel, hub, log)
		publisher = bridge
		st.checks["redis"] = rc.Ping
		st.checks["redis_relay"] = bridge.Ready

		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("redis bridge stopped", "err", err)
			}
		}()
	}

	tokens := auth.NewManager(cfg.JWTSecret, cfg.JWTAccessTTL)

	issueSvc := service.NewIssueService(st.issues, service.IssueDeps{
		Uploader:        uploader,
		Classifier:      classify.FromConfig(cfg),
		Publisher:       publisher,
		Jobs:            st.jobs,
		Prom:            prom,
		Log:             log,
		UploadTimeout:   cfg.UploadTimeout,
		ClassifyTimeout: cfg.ClassifierTimeout,
	})
	authSvc := service.NewAuthService(st.users, security.Hasher{}, tokens)

	if err := handlers.RegisterValidators(); err != nil {
		log.Error("validator setup failed", "err", err)
		os.Exit(1)
	}

	limiter := middlewares.NewRateLimiter(20, time.Minute)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := limiter.Sweep(now); n > 0 {
					log.Debug("rate limiter swept", "visitors", n)
				}
			}
		}
	}()

	router := httpx.NewRouter(httpx.Deps{
		Config:      cfg,
		Log:         log,
		Prom:        prom,
		Gatherer:    reg,
		Tokens:      tokens,
		Auth:        authSvc,
		Issues:      issueSvc,
		Hub:         hub,
		AdminJobs:   st.adminJobs,
		Checks:      st.checks,
		RateLimiter: limiter,
	})

	// no WriteTimeout: it would cut off the event stream
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreDriver)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("server shutting down")

	// end open streams so Shutdown does not wait on them
	hub.Close()

	shutdownCtx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
		return
	}
	log.Info("shutdown complete")
}
