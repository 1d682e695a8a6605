package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/civichub/internal/classify"
	"github.com/geocoder89/civichub/internal/domain/issue"
	"github.com/geocoder89/civichub/internal/domain/job"
	"github.com/geocoder89/civichub/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
)

type JobsRepository interface {
	ClaimNext(ctx context.Context, workerID string) (job.Job, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
	RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error)
}

// IssueStore is the part of the issue store the job handlers touch.
type IssueStore interface {
	GetByID(ctx context.Context, id string) (issue.Issue, error)
	SetCategory(ctx context.Context, id, category string) (issue.Issue, error)
	AwardPoints(ctx context.Context, issueID string) (issue.Award, error)
}

type Publisher interface {
	Publish(ctx context.Context, name string, payload any) error
}

type Config struct {
	PollInterval  time.Duration
	WorkerID      string
	Concurrency   int
	ShutdownGrace time.Duration
	// processing jobs locked longer than this are handed back to pending
	LockTTL    time.Duration
	JobTimeout time.Duration
}

type Deps struct {
	Issues     IssueStore
	Classifier classify.Classifier
	Publisher  Publisher // optional
	Prom       *observability.Prom
	Metrics    *observability.JobMetrics
	Gatherer   prometheus.Gatherer
	Log        *slog.Logger
	// readiness checks, e.g. the database ping
	Checks map[string]func(ctx context.Context) error
}

type Worker struct {
	cfg  Config
	repo JobsRepository
	deps Deps
	log  *slog.Logger

	readyMu sync.RWMutex
	ready   bool

	now func() time.Time
}

func New(cfg Config, repo JobsRepository, deps Deps) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewJobMetrics()
	}

	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	return &Worker{
		cfg:  cfg,
		repo: repo,
		deps: deps,
		log:  log.With("worker_id", cfg.WorkerID),
		now:  time.Now,
	}
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) Ready() bool {
	w.readyMu.RLock()
	defer w.readyMu.RUnlock()
	return w.ready
}

// Run polls for jobs with cfg.Concurrency loops until ctx is cancelled.
// Jobs already executing get ShutdownGrace to finish.
func (w *Worker) Run(ctx context.Context) error {
	// execution outlives ctx by the grace period
	execCtx, cancelExec := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelExec()

	w.requeueStale(ctx)
	w.setReady(true)
	w.log.Info("worker started", "concurrency", w.cfg.Concurrency, "poll_interval", w.cfg.PollInterval)

	var wg sync.WaitGroup

	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx, execCtx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.reaper(ctx)
	}()

	<-ctx.Done()
	w.setReady(false)
	w.log.Info("worker received shutdown signal")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(w.cfg.ShutdownGrace):
		w.log.Warn("shutdown grace expired, cancelling running jobs")
		cancelExec()
		<-done
	}
	return nil
}

func (w *Worker) loop(ctx, execCtx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		worked, err := w.step(ctx, execCtx)
		if err != nil {
			w.log.Error("worker step failed", "err", err)
		}
		if worked {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

func (w *Worker) reaper(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.LockTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.requeueStale(ctx)
		}
	}
}

func (w *Worker) requeueStale(ctx context.Context) {
	n, err := w.repo.RequeueStaleProcessing(ctx, w.cfg.LockTTL)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error("requeue stale jobs failed", "err", err)
		}
		return
	}
	if n > 0 {
		w.log.Warn("requeued stale jobs", "count", n)
	}
}
