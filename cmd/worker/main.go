package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/geocoder89/civichub/internal/classify"
	"github.com/geocoder89/civichub/internal/config"
	"github.com/geocoder89/civichub/internal/db"
	"github.com/geocoder89/civichub/internal/observability"
	"github.com/geocoder89/civichub/internal/queue/redisclient"
	"github.com/geocoder89/civichub/internal/queue/worker"
	"github.com/geocoder89/civichub/internal/realtime"
	"github.com/geocoder89/civichub/internal/repo/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env, "civichub-worker")

	if cfg.UsesMemoryStore() {
		log.Error("the worker needs STORE_DRIVER=postgres; the memory store has no job queue")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
			ServiceName: "civichub-worker",
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

	if err := db.RunMigrations(cfg.DBURL); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, cfg.DBURL, "civichub-worker")
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	jobsRepo := postgres.NewJobsRepo(pool, prom)
	issuesRepo := postgres.NewIssuesRepo(pool, jobsRepo, prom)

	checks := map[string]func(context.Context) error{"db": pool.Ping}

	// without redis, category updates made here reach no stream clients
	var publisher worker.Publisher
	if rcfg, ok := redisclient.ConfigFrom(cfg); ok {
		rc := redisclient.New(rcfg)
		defer rc.Close()

		publisher = realtime.NewRedisBridge(rc.Raw(), rcfg.Channel, nil, log)
		checks["redis"] = rc.Ping
	}

	host, _ := os.Hostname()
	workerID := host + "-" + strconv.Itoa(os.Getpid())

	w := worker.New(worker.Config{
		PollInterval:  500 * time.Millisecond,
		WorkerID:      workerID,
		Concurrency:   4,
		ShutdownGrace: 10 * time.Second,
		LockTTL:       time.Minute,
	}, jobsRepo, worker.Deps{
		Issues:     issuesRepo,
		Classifier: classify.FromConfig(cfg),
		Publisher:  publisher,
		Prom:       prom,
		Metrics:    observability.NewJobMetrics(),
		Gatherer:   reg,
		Log:        log,
		Checks:     checks,
	})

	healthSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerPort),
		Handler:           w.HealthHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("worker health server starting", "port", cfg.WorkerPort)
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("worker health server failed", "err", err)
		}
	}()

	if err := w.Run(ctx); err != nil {
		log.Error("worker stopped with error", "err", err)
	}

	shutdownCtx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)

	log.Info("worker shutdown complete")
}
